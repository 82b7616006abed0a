package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/thavlik/foldy-array/artifact"
	"github.com/thavlik/foldy-array/fasta"
)

// ScriptName is the batch script written into each job directory.
const ScriptName = "sub_fold.sh"

// Job is the array job of one sequence file.
type Job struct {
	Name      string
	FileIndex int
	File      string
	Entries   int
	// Dir is the working directory of every task of the array.
	Dir string
	// Executable and Args start one task; the task index and file
	// index are appended.
	Executable string
	Args       []string
}

// LastIndex is the highest array index.
func (j *Job) LastIndex() int {
	return j.Entries - 1
}

// Argv returns the command line of the task with the given index.
func (j *Job) Argv(taskIndex string) []string {
	argv := append([]string{j.Executable}, j.Args...)
	return append(argv, "task", taskIndex, fmt.Sprintf("%d", j.FileIndex))
}

// Command is Argv as a shell line.
func (j *Job) Command(taskIndex string) string {
	return strings.Join(j.Argv(taskIndex), " ")
}

// Backend hands a rendered job to a cluster scheduler.
type Backend interface {
	Submit(ctx context.Context, job *Job) error
}

// DirName is the per-file job directory, e.g. F007.
func DirName(fileIndex int) string {
	return fmt.Sprintf("F%03d", fileIndex)
}

// Submitter creates one array job per input file.
type Submitter struct {
	Backend    Backend
	Profile    Profile
	Root       string
	DataDir    string
	Executable string
	Args       []string
}

// Run submits a job for every .faa file of DataDir. Files without
// entries are skipped. A failed submission is logged and the loop
// goes on; nothing checks that a job was accepted.
func (s *Submitter) Run(ctx context.Context) ([]*Job, error) {
	files, err := artifact.ListFiles(s.DataDir, ".faa")
	if err != nil {
		return nil, err
	}
	var jobs []*Job
	for j, file := range files {
		if err := ctx.Err(); err != nil {
			return jobs, err
		}
		log.Infof("j = %d, submitting jobs for file = %s", j, file)
		n, err := fasta.Count(file)
		if err != nil {
			return jobs, err
		}
		log.Infof("Number of entries in file: %d", n)
		if n == 0 {
			log.Warnf("No entries in %s, nothing to submit", file)
			continue
		}
		job := &Job{
			Name:       fmt.Sprintf("fold_%d", j),
			FileIndex:  j,
			File:       file,
			Entries:    n,
			Dir:        filepath.Join(s.Root, DirName(j)),
			Executable: s.Executable,
			Args:       s.Args,
		}
		if err := s.prepare(job); err != nil {
			return jobs, err
		}
		if err := s.Backend.Submit(ctx, job); err != nil {
			log.Errorf("Submitting %s failed: %v", job.Name, err)
		} else {
			log.Infof("Submitted jobs for file in folder %s", job.Dir)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// prepare creates the job directory and writes the batch script.
func (s *Submitter) prepare(job *Job) error {
	if _, err := os.Stat(job.Dir); err == nil {
		log.Infof("Folder %s already exists, skipping creation.", job.Dir)
	} else if err := os.MkdirAll(job.Dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", job.Dir, err)
	}
	script, err := Render(job, s.Profile)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(job.Dir, ScriptName), script, 0755); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	return nil
}
