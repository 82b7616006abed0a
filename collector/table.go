package collector

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Columns of the collected table, in order.
var Columns = []string{
	"Description",
	"Sequence",
	"pTM_Score",
	"pLDDT_Score",
	"PDB",
	"FAA_File",
}

// WriteTable writes rows to w as gzip-compressed CSV. Absent values
// become empty cells.
func WriteTable(w io.Writer, rows []*Row) error {
	zw := gzip.NewWriter(w)
	cw := csv.NewWriter(zw)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, row := range rows {
		pdb := ""
		if row.HasPDB {
			pdb = row.PDB
		}
		if err := cw.Write([]string{
			row.Description,
			row.Sequence,
			row.PTM.String(),
			row.PLDDT.String(),
			pdb,
			row.File,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return zw.Close()
}

// Save writes the table to path.
func Save(path string, rows []*Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteTable(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// RenderSummary prints a per-file count table.
func RenderSummary(w io.Writer, summaries []FileSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "File", "Entries", "Structures", "Scores"})
	var entries, structures, scores int
	for i, s := range summaries {
		t.AppendRow(table.Row{i, s.Path, s.Entries, s.Structures, s.Scores})
		entries += s.Entries
		structures += s.Structures
		scores += s.Scores
	}
	t.AppendFooter(table.Row{"", "Total", entries, structures, scores})
	t.Render()
}
