package fasta

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// Record a FASTA record
type Record struct {
	Description string
	Sequence    string
}

// ErrSuccessfullyStopped returned by ReadRecords when
// the reader thread was successfully stopped.
var ErrSuccessfullyStopped = errors.New("stopped successfully")

const maxLineSize = 16 * 1024 * 1024

// ReadRecords streams the records of r onto results, closing
// the channel when the input is exhausted or stop fires.
func ReadRecords(
	r io.Reader,
	results chan<- *Record,
	stop <-chan int,
) error {
	defer close(results)
	stopped := false
	err := scan(r, func(rec *Record) bool {
		select {
		case results <- rec:
			return true
		case <-stop:
			stopped = true
			return false
		}
	})
	if stopped {
		return ErrSuccessfullyStopped
	}
	return err
}

// Parse reads every record of r into two parallel slices.
func Parse(r io.Reader) (descriptions []string, sequences []string, err error) {
	descriptions = []string{}
	sequences = []string{}
	err = scan(r, func(rec *Record) bool {
		descriptions = append(descriptions, rec.Description)
		sequences = append(sequences, rec.Sequence)
		return true
	})
	return descriptions, sequences, err
}

// Load parses the FASTA file at path. The returned error wraps
// os.ErrNotExist when path is not an existing regular file.
func Load(path string) (descriptions []string, sequences []string, err error) {
	f, err := open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	descriptions, sequences, err = Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return descriptions, sequences, nil
}

// Count returns the number of records in the file at path.
func Count(path string) (int, error) {
	f, err := open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	if err := scan(f, func(*Record) bool {
		n++
		return true
	}); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

func open(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("fasta file not found: %s: %w", path, os.ErrNotExist)
	}
	return os.Open(path)
}

func scan(r io.Reader, emit func(*Record) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	scanner.Split(scanLines)
	var next *Record
	var chunks []string
	flush := func() bool {
		if next == nil {
			return true
		}
		next.Sequence = stripSpace(strings.Join(chunks, ""))
		rec := next
		next, chunks = nil, nil
		return emit(rec)
	}
	for scanner.Scan() {
		line := strings.TrimSpace(strings.ToValidUTF8(scanner.Text(), "�"))
		switch {
		case line == "", line[0] == ';', line[0] == '#':
			continue
		case line[0] == '>':
			if !flush() {
				return nil
			}
			next = &Record{Description: strings.TrimSpace(line[1:])}
		default:
			if next == nil {
				// Sequence data before the first header has no owner
				continue
			}
			chunks = append(chunks, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	flush()
	return nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// scanLines splits on \n, \r\n and a lone \r.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if !atEOF {
			// Need one more byte to tell \r from \r\n
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
