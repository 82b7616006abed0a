package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/thavlik/foldy-array/sharedlog"
)

var inspectFlags struct {
	format string
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.fdat>",
	Short: "Summarize the records of a shared log",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFlags.format, "format", "", "legacy or jsonl (default from config)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	format := cfg.LogFormat
	if inspectFlags.format != "" {
		f, err := sharedlog.ParseFormat(inspectFlags.format)
		if err != nil {
			return err
		}
		format = f
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	records, readErr := sharedlog.ReadRecords(f, format)
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"#", "Description", "Length", "pTM", "pLDDT", "Atoms"})
	for i, rec := range records {
		t.AppendRow(table.Row{i, rec.Description, len(rec.Sequence), rec.PTM, rec.MeanPLDDT, countAtoms(rec.Structure)})
	}
	t.AppendFooter(table.Row{"", "Total", len(records), "", "", ""})
	t.Render()
	if readErr != nil {
		return fmt.Errorf("%s: %w", args[0], readErr)
	}
	return nil
}

func countAtoms(pdb string) int {
	n := 0
	for _, line := range strings.Split(pdb, "\n") {
		if strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM") {
			n++
		}
	}
	return n
}
