package fold

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thavlik/foldy-array/artifact"
	"github.com/thavlik/foldy-array/manifest"
	"github.com/thavlik/foldy-array/sharedlog"
)

const stubFolder = `printf 'ATOM %s\nEND\n' "$0" > "$1"
printf 'pTM_Score,pLDDT_Score,pLDDT\n0.75,81.5,[80 83]\n' > "$2"`

func stubCommand(t *testing.T) *Command {
	cmd, err := NewCommand([]string{"sh", "-c", stubFolder, "{{.Sequence}}", "{{.Structure}}", "{{.Scores}}"}, "")
	require.NoError(t, err)
	return cmd
}

func layout(t *testing.T) (data, work string) {
	root := t.TempDir()
	data = filepath.Join(root, "data")
	work = filepath.Join(root, "F001")
	require.NoError(t, os.MkdirAll(data, 0755))
	require.NoError(t, os.MkdirAll(work, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "a.faa"), []byte(">skip\nAAA\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(data, "b.faa"), []byte(">first\nMK\n>second\nMKV\nLL\n"), 0644))
	return data, work
}

type memSink struct {
	paths   []string
	records []*sharedlog.Record
}

func (m *memSink) Emit(_ context.Context, logPath string, rec *sharedlog.Record) error {
	m.paths = append(m.paths, logPath)
	m.records = append(m.records, rec)
	return nil
}

func TestTaskRun(t *testing.T) {
	data, work := layout(t)
	m, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	defer m.Close()
	task := &Task{
		DataDir:  data,
		WorkDir:  work,
		Scheme:   artifact.DefaultScheme(),
		Fields:   artifact.DefaultScoreFields(),
		Folder:   stubCommand(t),
		Sink:     FileSink{Format: sharedlog.Legacy},
		Manifest: m,
	}
	rec, err := task.Run(context.Background(), 1, 1)
	require.NoError(t, err)

	input := filepath.Join(data, "b.faa")
	assert.Equal(t, input, rec.File)
	assert.Equal(t, "second", rec.Description)
	assert.Equal(t, "MKVLL", rec.Sequence)
	assert.Equal(t, artifact.Present(0.75), rec.PTM)
	assert.Equal(t, artifact.Present(81.5), rec.MeanPLDDT)
	assert.Equal(t, "[80 83]", rec.PLDDT)
	assert.Equal(t, "ATOM MKVLL\nEND\n", rec.Structure)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"folded_1_1.pdb", "tmp_1_1.csv"}, names)

	f, err := os.Open(sharedlog.PathFor(input))
	require.NoError(t, err)
	defer f.Close()
	logged, err := sharedlog.ReadRecords(f, sharedlog.Legacy)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, rec, logged[0])

	sel, err := m.Select(context.Background(), 1, "b.faa", 2)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "folded_1_1.pdb"), sel.At(1).StructurePath)
	assert.False(t, sel.At(0).HasStructure())
}

func TestTaskRunOutOfRange(t *testing.T) {
	data, work := layout(t)
	sink := &memSink{}
	task := &Task{
		DataDir: data,
		WorkDir: work,
		Scheme:  artifact.DefaultScheme(),
		Fields:  artifact.DefaultScoreFields(),
		Folder:  stubCommand(t),
		Sink:    sink,
	}
	_, err := task.Run(context.Background(), 0, 2)
	assert.Error(t, err)
	_, err = task.Run(context.Background(), 2, 1)
	assert.Error(t, err)
	assert.Empty(t, sink.records)
}

func TestTaskRunFolderFails(t *testing.T) {
	data, work := layout(t)
	sink := &memSink{}
	folder, err := NewCommand([]string{"sh", "-c", "echo boom >&2; exit 3"}, "")
	require.NoError(t, err)
	task := &Task{
		DataDir: data,
		WorkDir: work,
		Scheme:  artifact.DefaultScheme(),
		Fields:  artifact.DefaultScoreFields(),
		Folder:  folder,
		Sink:    sink,
	}
	_, err = task.Run(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, sink.records)
	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTaskRunMissingScores(t *testing.T) {
	data, work := layout(t)
	sink := &memSink{}
	folder, err := NewCommand([]string{"sh", "-c", `echo END > "$0"; : > "$1"`, "{{.Structure}}", "{{.Scores}}"}, "")
	require.NoError(t, err)
	task := &Task{
		DataDir: data,
		WorkDir: work,
		Scheme:  artifact.DefaultScheme(),
		Fields:  artifact.DefaultScoreFields(),
		Folder:  folder,
		Sink:    sink,
	}
	rec, err := task.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.False(t, rec.PTM.Valid)
	assert.False(t, rec.MeanPLDDT.Valid)
	require.Len(t, sink.paths, 1)
	assert.Equal(t, filepath.Join(data, "a.faa.fdat"), sink.paths[0])
}

func TestTaskRunWithoutScoresPublishesNothing(t *testing.T) {
	data, work := layout(t)
	sink := &memSink{}
	folder, err := NewCommand([]string{"sh", "-c", `echo END > "$0"`, "{{.Structure}}", "{{.Scores}}"}, "")
	require.NoError(t, err)
	task := &Task{
		DataDir: data,
		WorkDir: work,
		Scheme:  artifact.DefaultScheme(),
		Fields:  artifact.DefaultScoreFields(),
		Folder:  folder,
		Sink:    sink,
	}
	_, err = task.Run(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Empty(t, sink.records)
	// a structure without scores would be matched against the wrong row
	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTaskRunRelativeWorkDir(t *testing.T) {
	data, work := layout(t)
	m, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	defer m.Close()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(work))
	defer os.Chdir(wd)

	task := &Task{
		DataDir:  data,
		WorkDir:  ".",
		Scheme:   artifact.DefaultScheme(),
		Fields:   artifact.DefaultScoreFields(),
		Folder:   stubCommand(t),
		Sink:     &memSink{},
		Manifest: m,
	}
	_, err = task.Run(context.Background(), 1, 1)
	require.NoError(t, err)

	entries, err := m.Entries(context.Background(), "b.faa")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	for _, path := range []string{entries[0].StructurePath, entries[0].ScorePath} {
		assert.True(t, filepath.IsAbs(path), path)
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestNewCommand(t *testing.T) {
	_, err := NewCommand(nil, "")
	assert.Error(t, err)
	_, err = NewCommand([]string{"fold", "{{.Sequence"}, "")
	assert.Error(t, err)

	cmd, err := NewCommand([]string{"fold", "--seq={{.Sequence}}", "{{.Entry}}-{{.FileIndex}}"}, "")
	require.NoError(t, err)
	require.Len(t, cmd.tpls, 3)
	for _, in := range []*Input{{Sequence: "MKV", Entry: 4, FileIndex: 2}, {Sequence: "GG", Entry: 0, FileIndex: 7}} {
		argv, err := cmd.render(in)
		require.NoError(t, err)
		assert.Equal(t, []string{"fold", "--seq=" + in.Sequence, fmt.Sprintf("%d-%d", in.Entry, in.FileIndex)}, argv)
	}

	// parsed templates are reused, Argv is not consulted again
	cmd.Argv = []string{"{{.Broken"}
	argv, err := cmd.render(&Input{Sequence: "MKV", Entry: 4, FileIndex: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"fold", "--seq=MKV", "4-2"}, argv)

	literal := &Command{Argv: []string{"echo", "{{.Sequence}}"}}
	argv, err = literal.render(&Input{Sequence: "LL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "LL"}, argv)
	_, err = (&Command{}).render(&Input{})
	assert.ErrorIs(t, err, errEmptyCommand)

	bad, err := NewCommand([]string{"{{.Missing}}"}, "")
	require.NoError(t, err)
	_, err = bad.render(&Input{})
	assert.Error(t, err)
}
