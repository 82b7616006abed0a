// Package collector gathers the folded structures and scores of every
// sequence entry into one table.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/Jeffail/tunny"
	"github.com/charmbracelet/log"

	"github.com/thavlik/foldy-array/artifact"
	"github.com/thavlik/foldy-array/fasta"
)

// Row is one collected entry. Absent values stay absent: a Metric
// with Valid unset, or HasPDB false.
type Row struct {
	Description string
	Sequence    string
	PTM         artifact.Metric
	PLDDT       artifact.Metric
	PDB         string
	HasPDB      bool
	File        string
}

// Resolver finds the artifacts of the entries of one sequence file.
// entries is the number of sequences the file holds; a Resolver never
// needs to describe more than that many entries.
type Resolver interface {
	Select(ctx context.Context, fileIndex int, source string, entries int) (artifact.Selection, error)
}

type snapshotResolver struct {
	snap *artifact.Snapshot
}

func (r snapshotResolver) Select(_ context.Context, fileIndex int, _ string, _ int) (artifact.Selection, error) {
	return r.snap.Select(fileIndex), nil
}

// FromSnapshot resolves artifacts by file name against snap.
func FromSnapshot(snap *artifact.Snapshot) Resolver {
	return snapshotResolver{snap: snap}
}

// FileSummary counts what was found for one sequence file.
type FileSummary struct {
	Path       string
	Entries    int
	Structures int
	Scores     int
}

// Collector assembles Rows. Entries of a file are processed on a
// fixed-size worker pool; files are processed one after another.
type Collector struct {
	resolver Resolver
	fields   artifact.ScoreFields
	workers  int
}

// New returns a Collector. workers <= 0 selects one worker per CPU.
func New(resolver Resolver, fields artifact.ScoreFields, workers int) *Collector {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Collector{
		resolver: resolver,
		fields:   fields,
		workers:  workers,
	}
}

type job struct {
	description string
	sequence    string
	file        string
	set         artifact.Set
}

type result struct {
	row *Row
	err error
}

func (c *Collector) process(payload interface{}) interface{} {
	j := payload.(*job)
	row := &Row{
		Description: j.description,
		Sequence:    j.sequence,
		File:        j.file,
	}
	// A recorded artifact that has since disappeared stays absent.
	if j.set.HasStructure() {
		pdb, err := artifact.ReadStructure(j.set.StructurePath)
		if errors.Is(err, os.ErrNotExist) {
			log.Warnf("%s: structure %s is missing", j.description, j.set.StructurePath)
		} else if err != nil {
			return &result{err: err}
		} else {
			row.PDB, row.HasPDB = pdb, true
		}
	}
	if j.set.HasScores() {
		scores, err := artifact.ReadScores(j.set.ScorePath, c.fields)
		if errors.Is(err, os.ErrNotExist) {
			log.Warnf("%s: scores %s are missing", j.description, j.set.ScorePath)
		} else if err != nil {
			return &result{err: err}
		} else {
			row.PTM, row.PLDDT = scores.PTM, scores.PLDDT
		}
	}
	return &result{row: row}
}

// Collect processes files in order and returns their rows, grouped by
// file and ordered by entry within each file.
func (c *Collector) Collect(ctx context.Context, files []string) ([]*Row, []FileSummary, error) {
	pool := tunny.NewFunc(c.workers, c.process)
	defer pool.Close()
	var rows []*Row
	var summaries []FileSummary
	for i, file := range files {
		fileRows, summary, err := c.collectFile(ctx, pool, i, file)
		if err != nil {
			return nil, nil, err
		}
		if summary.Entries == 0 {
			log.Debugf("No entries in %s, skipping", file)
			continue
		}
		rows = append(rows, fileRows...)
		summaries = append(summaries, summary)
		log.Infof(
			"Processed FAA file %d/%d: %s with %d entries",
			i+1,
			len(files),
			file,
			len(fileRows),
		)
	}
	return rows, summaries, nil
}

func (c *Collector) collectFile(
	ctx context.Context,
	pool *tunny.Pool,
	fileIndex int,
	file string,
) ([]*Row, FileSummary, error) {
	summary := FileSummary{Path: file}
	descriptions, sequences, err := fasta.Load(file)
	if err != nil {
		return nil, summary, err
	}
	if len(sequences) == 0 {
		return nil, summary, nil
	}
	sel, err := c.resolver.Select(ctx, fileIndex, filepath.Base(file), len(sequences))
	if err != nil {
		return nil, summary, fmt.Errorf("select artifacts of %s: %w", file, err)
	}
	summary.Entries = len(sequences)
	rows := make([]*Row, len(sequences))
	errs := make([]error, len(sequences))
	var wg sync.WaitGroup
	for j := range sequences {
		set := sel.At(j)
		if set.HasStructure() {
			summary.Structures++
		}
		if set.HasScores() {
			summary.Scores++
		}
		wg.Add(1)
		go func(j int, set artifact.Set) {
			defer wg.Done()
			out, err := pool.ProcessCtx(ctx, &job{
				description: descriptions[j],
				sequence:    sequences[j],
				file:        file,
				set:         set,
			})
			if err != nil {
				errs[j] = err
				return
			}
			res := out.(*result)
			rows[j], errs[j] = res.row, res.err
		}(j, set)
	}
	wg.Wait()
	for j, err := range errs {
		if err != nil {
			return nil, summary, fmt.Errorf("%s entry %d: %w", file, j, err)
		}
	}
	return rows, summary, nil
}
