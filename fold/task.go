package fold

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/thavlik/foldy-array/artifact"
	"github.com/thavlik/foldy-array/fasta"
	"github.com/thavlik/foldy-array/manifest"
	"github.com/thavlik/foldy-array/sharedlog"
)

// PerResidueColumn holds the per-residue pLDDT vector in score tables.
const PerResidueColumn = "pLDDT"

// Sink receives the record of a finished task.
type Sink interface {
	Emit(ctx context.Context, logPath string, rec *sharedlog.Record) error
}

// FileSink appends records straight to the shared log.
type FileSink struct {
	Format sharedlog.Format
}

// Emit appends rec to logPath under the file lock.
func (s FileSink) Emit(_ context.Context, logPath string, rec *sharedlog.Record) error {
	return sharedlog.Append(logPath, rec, s.Format)
}

// Recorder stores where an entry's artifacts were written.
type Recorder interface {
	Put(ctx context.Context, e *manifest.Entry) error
}

// Task folds one entry of one input file.
type Task struct {
	DataDir string
	// WorkDir receives the artifacts.
	WorkDir  string
	Scheme   artifact.Scheme
	Fields   artifact.ScoreFields
	Folder   Folder
	Sink     Sink
	Manifest Recorder
}

// Run folds entry of the fileIndex-th input and emits its record.
func (t *Task) Run(ctx context.Context, entry, fileIndex int) (*sharedlog.Record, error) {
	files, err := artifact.ListFiles(t.DataDir, ".faa")
	if err != nil {
		return nil, err
	}
	if fileIndex < 0 || fileIndex >= len(files) {
		return nil, fmt.Errorf("file index %d out of range, %d files in %s", fileIndex, len(files), t.DataDir)
	}
	file := files[fileIndex]
	descs, seqs, err := fasta.Load(file)
	if err != nil {
		return nil, err
	}
	if entry < 0 || entry >= len(seqs) {
		return nil, fmt.Errorf("entry %d out of range, %s has %d entries", entry, file, len(seqs))
	}
	// The manifest is read from other working directories.
	workDir, err := filepath.Abs(t.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}
	log.Infof("Folding entry %d of %s: %s", entry, file, descs[entry])

	structure := filepath.Join(workDir, t.Scheme.StructureName(entry, fileIndex))
	scores := filepath.Join(workDir, t.Scheme.ScoreName(entry, fileIndex))
	in := &Input{
		Description: descs[entry],
		Sequence:    seqs[entry],
		Entry:       entry,
		FileIndex:   fileIndex,
		Structure:   partial(structure),
		Scores:      partial(scores),
	}
	defer os.Remove(in.Structure)
	defer os.Remove(in.Scores)
	if err := t.Folder.Fold(ctx, in); err != nil {
		return nil, fmt.Errorf("fold: %w", err)
	}
	// Hidden partial names keep a concurrent collection from picking
	// up half written files. Scores go first so a visible structure
	// always has its scores next to it.
	if err := os.Rename(in.Scores, scores); err != nil {
		return nil, fmt.Errorf("publish scores: %w", err)
	}
	if err := os.Rename(in.Structure, structure); err != nil {
		os.Remove(scores)
		return nil, fmt.Errorf("publish structure: %w", err)
	}

	row, err := artifact.ReadRow(scores)
	if err != nil {
		return nil, err
	}
	text, err := artifact.ReadStructure(structure)
	if err != nil {
		return nil, err
	}
	rec := &sharedlog.Record{
		File:        file,
		Description: descs[entry],
		Sequence:    seqs[entry],
		PTM:         artifact.ParseMetric(row[t.Fields.PTM]),
		PLDDT:       row[PerResidueColumn],
		MeanPLDDT:   artifact.ParseMetric(row[t.Fields.PLDDT]),
		Structure:   text,
	}

	if t.Manifest != nil {
		if err := t.Manifest.Put(ctx, &manifest.Entry{
			Source:        filepath.Base(file),
			FileIndex:     fileIndex,
			Entry:         entry,
			StructurePath: structure,
			ScorePath:     scores,
		}); err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
	}
	if err := t.Sink.Emit(ctx, sharedlog.PathFor(file), rec); err != nil {
		return nil, fmt.Errorf("emit: %w", err)
	}
	log.Infof("Recorded entry %d of %s (pTM=%s, pLDDT=%s)", entry, file, rec.PTM, rec.MeanPLDDT)
	return rec, nil
}

func partial(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".part")
}
