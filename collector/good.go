package collector

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/thavlik/foldy-array/artifact"
)

// ReadTable decodes a table written by WriteTable. Columns are looked
// up by name, so extra columns are ignored.
func ReadTable(r io.Reader) ([]*Row, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	cr := csv.NewReader(zr)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	for _, name := range Columns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	var rows []*Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return rows, err
		}
		pdb := rec[index["PDB"]]
		rows = append(rows, &Row{
			Description: rec[index["Description"]],
			Sequence:    rec[index["Sequence"]],
			PTM:         artifact.ParseMetric(rec[index["pTM_Score"]]),
			PLDDT:       artifact.ParseMetric(rec[index["pLDDT_Score"]]),
			PDB:         pdb,
			HasPDB:      pdb != "",
			File:        rec[index["FAA_File"]],
		})
	}
	return rows, nil
}

// Load reads the table at path.
func Load(path string) ([]*Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f)
}

// Threshold is the minimum confidence of a good fold.
type Threshold struct {
	PTM   float64
	PLDDT float64
}

// Good returns the rows with a structure whose metrics are present and
// meet t, best pTM first. Ties keep table order.
func Good(rows []*Row, t Threshold) []*Row {
	var good []*Row
	for _, row := range rows {
		if !row.HasPDB || !row.PTM.Valid || !row.PLDDT.Valid {
			continue
		}
		if row.PTM.Value < t.PTM || row.PLDDT.Value < t.PLDDT {
			continue
		}
		good = append(good, row)
	}
	sort.SliceStable(good, func(i, j int) bool {
		return good[i].PTM.Value > good[j].PTM.Value
	})
	return good
}
