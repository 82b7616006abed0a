package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/thavlik/foldy-array/collector"
	"github.com/thavlik/foldy-array/fasta"
)

var goodFlags struct {
	table    string
	output   string
	minPTM   float64
	minPLDDT float64
	width    int
}

var goodCmd = &cobra.Command{
	Use:   "good",
	Short: "Write the confidently folded entries of a collected table as FASTA",
	Args:  cobra.NoArgs,
	RunE:  runGood,
}

func init() {
	f := goodCmd.Flags()
	f.StringVar(&goodFlags.table, "table", "", "collected table (default <root>/collected_results.csv.gz)")
	f.StringVarP(&goodFlags.output, "output", "o", "", "FASTA output (default stdout)")
	f.Float64Var(&goodFlags.minPTM, "min-ptm", 0.7, "minimum pTM")
	f.Float64Var(&goodFlags.minPLDDT, "min-plddt", 70, "minimum mean pLDDT")
	f.IntVar(&goodFlags.width, "width", 60, "residues per line, 0 for one line")
}

func runGood(cmd *cobra.Command, _ []string) error {
	path := goodFlags.table
	if path == "" {
		path = filepath.Join(cfg.Root, collector.DefaultOutput)
	}
	rows, err := collector.Load(path)
	if err != nil {
		return err
	}
	good := collector.Good(rows, collector.Threshold{PTM: goodFlags.minPTM, PLDDT: goodFlags.minPLDDT})
	log.Infof("%d of %d entries pass pTM >= %g and pLDDT >= %g", len(good), len(rows), goodFlags.minPTM, goodFlags.minPLDDT)
	records := make([]*fasta.Record, len(good))
	for i, row := range good {
		records[i] = &fasta.Record{Description: row.Description, Sequence: row.Sequence}
	}
	var w io.Writer = cmd.OutOrStdout()
	if goodFlags.output != "" {
		f, err := os.Create(goodFlags.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := fasta.Write(w, records, goodFlags.width); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
