package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// Slurm submits the rendered script with sbatch from the job directory.
type Slurm struct {
	// Command defaults to "sbatch".
	Command string
}

// Submit runs sbatch. Its output is logged, not interpreted.
func (s *Slurm) Submit(ctx context.Context, job *Job) error {
	command := s.Command
	if command == "" {
		command = "sbatch"
	}
	cmd := exec.CommandContext(ctx, command, ScriptName)
	cmd.Dir = job.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if msg := strings.TrimSpace(out.String()); msg != "" {
		log.Infof("%s: %s", command, msg)
	}
	if err != nil {
		return fmt.Errorf("%s: %v", command, err)
	}
	return nil
}
