// Package fold runs one array task: it folds a single sequence entry,
// publishes the artifacts under their collectable names and records
// the result.
package fold

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"text/template"

	"github.com/charmbracelet/log"
)

// Input is what a Folder is asked to fold.
type Input struct {
	Description string
	Sequence    string
	Entry       int
	FileIndex   int
	// Structure and Scores are the paths the folder must write.
	Structure string
	Scores    string
}

// Folder predicts the structure of one sequence.
type Folder interface {
	Fold(ctx context.Context, in *Input) error
}

// Command folds by running an external program. Each argument is a
// text/template rendered against the Input, so {{.Sequence}},
// {{.Structure}} and {{.Scores}} may appear anywhere in Argv.
type Command struct {
	Argv []string
	Dir  string

	tpls []*template.Template
}

var errEmptyCommand = errors.New("no arguments")

// NewCommand parses argv once so malformed templates fail early.
func NewCommand(argv []string, dir string) (*Command, error) {
	tpls, err := parseArgs(argv)
	if err != nil {
		return nil, fmt.Errorf("fold command: %w", err)
	}
	return &Command{Argv: argv, Dir: dir, tpls: tpls}, nil
}

func parseArgs(argv []string) ([]*template.Template, error) {
	if len(argv) == 0 {
		return nil, errEmptyCommand
	}
	tpls := make([]*template.Template, len(argv))
	for i, arg := range argv {
		tpl, err := template.New("arg").Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		tpls[i] = tpl
	}
	return tpls, nil
}

func (c *Command) render(in *Input) ([]string, error) {
	tpls := c.tpls
	if tpls == nil {
		// built without NewCommand
		var err error
		if tpls, err = parseArgs(c.Argv); err != nil {
			return nil, err
		}
	}
	argv := make([]string, len(tpls))
	for i, tpl := range tpls {
		var b strings.Builder
		if err := tpl.Execute(&b, in); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		argv[i] = b.String()
	}
	return argv, nil
}

// Fold runs the command and waits for it to exit.
func (c *Command) Fold(ctx context.Context, in *Input) error {
	argv, err := c.render(in)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	log.Debugf("Running %s", strings.Join(argv, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(out.String()))
	}
	if out.Len() > 0 {
		log.Debugf("%s", strings.TrimSpace(out.String()))
	}
	return nil
}
