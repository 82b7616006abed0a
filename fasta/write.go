package fasta

import (
	"bufio"
	"fmt"
	"io"
)

// Write renders records as FASTA, wrapping sequences every width
// residues. A width of zero keeps each sequence on one line.
func Write(w io.Writer, records []*Record, width int) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, ">%s\n", rec.Description); err != nil {
			return err
		}
		seq := rec.Sequence
		for width > 0 && len(seq) > width {
			if _, err := fmt.Fprintln(bw, seq[:width]); err != nil {
				return err
			}
			seq = seq[width:]
		}
		if _, err := fmt.Fprintln(bw, seq); err != nil {
			return err
		}
	}
	return bw.Flush()
}
