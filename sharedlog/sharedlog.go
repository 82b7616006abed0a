// Package sharedlog appends fold results to a file shared by every
// array task of one input, one record per task.
package sharedlog

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Suffix is appended to an input path to name its log.
const Suffix = ".fdat"

// PathFor returns the log path of an input sequence file.
func PathFor(input string) string {
	return input + Suffix
}

// Append writes rec to the file at path under an exclusive advisory
// lock so records from concurrent processes never interleave. The
// record is written with a single write call. Errors are returned
// as-is; callers do not retry.
func Append(path string, rec *Record, format Format) error {
	line, err := Encode(rec, format)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}
