package artifact

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Metric is a confidence value that may be absent.
type Metric struct {
	Value float64
	Valid bool
}

// Present wraps v as a valid Metric.
func Present(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// String renders the metric, or "" when absent.
func (m Metric) String() string {
	if !m.Valid {
		return ""
	}
	return strconv.FormatFloat(m.Value, 'g', -1, 64)
}

// ScoreFields names the score table columns to read.
type ScoreFields struct {
	PTM   string `yaml:"ptm"`
	PLDDT string `yaml:"plddt"`
}

// DefaultScoreFields are the column names written by the fold task.
func DefaultScoreFields() ScoreFields {
	return ScoreFields{PTM: "pTM_Score", PLDDT: "pLDDT_Score"}
}

// Scores are the two confidence metrics of one folded entry.
type Scores struct {
	PTM   Metric
	PLDDT Metric
}

// ReadScores reads the first data row of the score table at path.
// Missing columns, empty or malformed tables and unparsable values
// all yield absent metrics; only failing to open the file is an error.
func ReadScores(path string, fields ScoreFields) (Scores, error) {
	row, err := ReadRow(path)
	if err != nil {
		return Scores{}, err
	}
	return Scores{
		PTM:   ParseMetric(row[fields.PTM]),
		PLDDT: ParseMetric(row[fields.PLDDT]),
	}, nil
}

// ReadRow returns the first data row of the CSV table at path keyed by
// column name. A table without a data row yields an empty map.
func ReadRow(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scores: %w", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	row := make(map[string]string)
	header, err := r.Read()
	if err != nil {
		log.Debugf("%s: no header: %v", path, err)
		return row, nil
	}
	values, err := r.Read()
	if err != nil {
		log.Debugf("%s: no data row: %v", path, err)
		return row, nil
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, seen := row[name]; seen || i >= len(values) {
			continue
		}
		row[name] = values[i]
	}
	return row, nil
}

// ParseMetric parses a table cell. Empty, NaN and unparsable cells
// are absent.
func ParseMetric(s string) Metric {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return Metric{}
	}
	return Present(v)
}

// ReadStructure returns the structure text at path with invalid UTF-8
// replaced.
func ReadStructure(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read structure: %w", err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}
