package sharedlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/thavlik/foldy-array/artifact"
)

// Format selects the on-disk framing of records.
type Format string

const (
	// Legacy joins fields with ";;; " and ends each record with " ~~~\n".
	// A structure line that itself ends in " ~~~" is read back as a
	// record boundary; use JSONLines when that matters.
	Legacy Format = "legacy"

	// JSONLines writes one JSON object per line.
	JSONLines Format = "jsonl"
)

const (
	separator  = ";;; "
	terminator = " ~~~"
	numFields  = 7
)

// ParseFormat validates a format name. Empty selects Legacy.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", Legacy:
		return Legacy, nil
	case JSONLines:
		return JSONLines, nil
	}
	return "", fmt.Errorf("unknown log format %q", s)
}

// Record is the result of folding one entry.
type Record struct {
	File        string          `json:"file"`
	Description string          `json:"description"`
	Sequence    string          `json:"sequence"`
	PTM         artifact.Metric `json:"ptm"`
	PLDDT       string          `json:"plddt"`
	MeanPLDDT   artifact.Metric `json:"mean_plddt"`
	Structure   string          `json:"structure"`
}

// Encode renders rec in the given format, terminator included.
func Encode(rec *Record, format Format) ([]byte, error) {
	switch format {
	case Legacy:
		fields := []string{
			rec.File,
			rec.Description,
			rec.Sequence,
			rec.PTM.String(),
			rec.PLDDT,
			rec.MeanPLDDT.String(),
			rec.Structure,
		}
		return []byte(strings.Join(fields, separator) + terminator + "\n"), nil
	case JSONLines:
		body, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal: %v", err)
		}
		return append(body, '\n'), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

const maxRecordSize = 256 * 1024 * 1024

// ReadRecords decodes every record of r. A trailing legacy record with
// no terminator yields io.ErrUnexpectedEOF along with the records read
// so far.
func ReadRecords(r io.Reader, format Format) ([]*Record, error) {
	switch format {
	case Legacy:
		return readLegacy(r)
	case JSONLines:
		return readJSONLines(r)
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

func readJSONLines(r io.Reader) ([]*Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	var records []*Record
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		rec := &Record{}
		if err := json.Unmarshal(data, rec); err != nil {
			return records, fmt.Errorf("line %d: %v", line, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func readLegacy(r io.Reader) ([]*Record, error) {
	br := bufio.NewReader(r)
	var records []*Record
	var pending strings.Builder
	for {
		line, err := br.ReadString('\n')
		pending.WriteString(line)
		if strings.HasSuffix(strings.TrimRight(line, "\r\n"), terminator) {
			rec, perr := decodeLegacy(pending.String())
			if perr != nil {
				return records, perr
			}
			records = append(records, rec)
			pending.Reset()
		}
		if err == io.EOF {
			break
		} else if err != nil {
			return records, err
		}
	}
	if strings.TrimSpace(pending.String()) != "" {
		return records, io.ErrUnexpectedEOF
	}
	return records, nil
}

func decodeLegacy(text string) (*Record, error) {
	text = strings.TrimRight(text, "\r\n")
	text = strings.TrimSuffix(text, terminator)
	fields := strings.SplitN(text, separator, numFields)
	if len(fields) != numFields {
		return nil, fmt.Errorf("malformed record: expected %d fields, got %d", numFields, len(fields))
	}
	return &Record{
		File:        fields[0],
		Description: fields[1],
		Sequence:    fields[2],
		PTM:         artifact.ParseMetric(fields[3]),
		PLDDT:       fields[4],
		MeanPLDDT:   artifact.ParseMetric(fields[5]),
		Structure:   fields[6],
	}, nil
}
