package collector

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/thavlik/foldy-array/artifact"
)

// DefaultOutput is the name of the collected table.
const DefaultOutput = "collected_results.csv.gz"

// Options configure a collection run.
type Options struct {
	// Root holds one sub-directory per submitted file plus DataDir.
	Root string
	// DataDir holds the .faa inputs.
	DataDir string
	// Output is the table path.
	Output  string
	Workers int
	Scheme  artifact.Scheme
	Fields  artifact.ScoreFields
	// Resolver overrides file name matching, e.g. with a manifest.
	Resolver Resolver
}

// Run collects every input under DataDir and writes the table. The
// artifact pools are scanned and checked before any entry is read.
func Run(ctx context.Context, opts Options) ([]FileSummary, error) {
	files, err := artifact.ListFiles(opts.DataDir, ".faa")
	if err != nil {
		return nil, err
	}
	resolver := opts.Resolver
	if resolver == nil {
		snap, err := artifact.Scan(ctx, opts.Root, opts.DataDir, opts.Scheme)
		if err != nil {
			return nil, err
		}
		log.Infof("Total folded structure/score file pairs: %d", snap.Len())
		resolver = FromSnapshot(snap)
	}
	log.Infof("Total FAA files: %d", len(files))
	rows, summaries, err := New(resolver, opts.Fields, opts.Workers).Collect(ctx, files)
	if err != nil {
		return nil, err
	}
	log.Infof("Data gathering done!")
	output := opts.Output
	if output == "" {
		output = filepath.Join(opts.Root, DefaultOutput)
	}
	log.Infof("Compressing collected results...")
	if err := Save(output, rows); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	log.Infof("Collected results saved to %s", output)
	return summaries, nil
}
