package collector

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thavlik/foldy-array/artifact"
)

func touch(t *testing.T, path, body string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

// layout builds a work directory with two inputs. The first has six
// entries but only three were folded; the second is fully folded.
func layout(t *testing.T) string {
	root := t.TempDir()
	touch(t, filepath.Join(root, "data", "a.faa"), ">a0\nMKV\n>a1\nLLT\n>a2\nQQ\n>a3\nW\n>a4\nY\n>a5\nH\n")
	touch(t, filepath.Join(root, "data", "b.faa"), ">b0\nAC\nDE\n>b1\nFG\n")
	touch(t, filepath.Join(root, "data", "c.faa"), "; nothing here\n")
	for j := 0; j < 3; j++ {
		touch(t, filepath.Join(root, "F000", fmt.Sprintf("folded_%d_0.pdb", j)), fmt.Sprintf("ATOM a%d\nEND\n", j))
		touch(t, filepath.Join(root, "F000", fmt.Sprintf("tmp_%d_0.csv", j)),
			fmt.Sprintf("pTM_Score,pLDDT_Score\n0.%d,7%d\n", j+1, j))
	}
	for j := 0; j < 2; j++ {
		touch(t, filepath.Join(root, "F001", fmt.Sprintf("folded_%d_1.pdb", j)), fmt.Sprintf("ATOM b%d\n", j))
	}
	// second score table is schema-mismatched
	touch(t, filepath.Join(root, "F001", "tmp_0_1.csv"), "pTM_Score,pLDDT_Score\n0.9,91\n")
	touch(t, filepath.Join(root, "F001", "tmp_1_1.csv"), "other\n1\n")
	return root
}

func TestRun(t *testing.T) {
	root := layout(t)
	summaries, err := Run(context.Background(), Options{
		Root:    root,
		DataDir: filepath.Join(root, "data"),
		Workers: 3,
		Scheme:  artifact.DefaultScheme(),
		Fields:  artifact.DefaultScoreFields(),
	})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, FileSummary{Path: filepath.Join(root, "data", "a.faa"), Entries: 6, Structures: 3, Scores: 3}, summaries[0])
	assert.Equal(t, 2, summaries[1].Structures)

	f, err := os.Open(filepath.Join(root, DefaultOutput))
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	records, err := csv.NewReader(zr).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1+8)
	assert.Equal(t, Columns, records[0])

	a := filepath.Join(root, "data", "a.faa")
	assert.Equal(t, []string{"a0", "MKV", "0.1", "70", "ATOM a0\nEND\n", a}, records[1])
	assert.Equal(t, []string{"a2", "QQ", "0.3", "72", "ATOM a2\nEND\n", a}, records[3])
	// entries 3..5 have no artifacts
	assert.Equal(t, []string{"a5", "H", "", "", "", a}, records[6])
	assert.Equal(t, []string{"b0", "ACDE", "0.9", "91", "ATOM b0\n", filepath.Join(root, "data", "b.faa")}, records[7])
	assert.Equal(t, []string{"b1", "FG", "", "", "ATOM b1\n", filepath.Join(root, "data", "b.faa")}, records[8])
}

func TestRunPoolMismatchBeforeProcessing(t *testing.T) {
	root := layout(t)
	touch(t, filepath.Join(root, "F001", "folded_2_1.pdb"), "extra")
	_, err := Run(context.Background(), Options{
		Root:    root,
		DataDir: filepath.Join(root, "data"),
		Scheme:  artifact.DefaultScheme(),
		Fields:  artifact.DefaultScoreFields(),
	})
	assert.ErrorIs(t, err, artifact.ErrPoolMismatch)
	_, err = os.Stat(filepath.Join(root, DefaultOutput))
	assert.True(t, os.IsNotExist(err))
}

type stubResolver map[string]artifact.Selection

func (s stubResolver) Select(_ context.Context, _ int, source string, _ int) (artifact.Selection, error) {
	return s[source], nil
}

func TestCollectWithResolver(t *testing.T) {
	root := layout(t)
	pdb := filepath.Join(root, "F001", "folded_1_1.pdb")
	c := New(stubResolver{
		"b.faa": {Structures: []string{"", pdb}},
	}, artifact.DefaultScoreFields(), 1)
	rows, summaries, err := c.Collect(context.Background(), []string{filepath.Join(root, "data", "b.faa")})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.False(t, rows[0].HasPDB)
	assert.True(t, rows[1].HasPDB)
	assert.Equal(t, "ATOM b1\n", rows[1].PDB)
	assert.Equal(t, 1, summaries[0].Structures)
}

func TestCollectStaleArtifactsAreAbsent(t *testing.T) {
	root := layout(t)
	pdb := filepath.Join(root, "F001", "folded_1_1.pdb")
	c := New(stubResolver{
		"b.faa": {
			Structures: []string{filepath.Join(root, "F001", "moved.pdb"), pdb},
			Scores:     []string{filepath.Join(root, "F001", "moved.csv"), ""},
		},
	}, artifact.DefaultScoreFields(), 2)
	rows, _, err := c.Collect(context.Background(), []string{filepath.Join(root, "data", "b.faa")})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.False(t, rows[0].HasPDB)
	assert.False(t, rows[0].PTM.Valid)
	assert.False(t, rows[0].PLDDT.Valid)
	assert.True(t, rows[1].HasPDB)
}

func TestCollectUnreadableStructureFails(t *testing.T) {
	root := layout(t)
	// a directory cannot be read as a structure
	c := New(stubResolver{
		"b.faa": {Structures: []string{filepath.Join(root, "F001")}},
	}, artifact.DefaultScoreFields(), 1)
	_, _, err := c.Collect(context.Background(), []string{filepath.Join(root, "data", "b.faa")})
	assert.Error(t, err)
}

func TestCollectMissingInput(t *testing.T) {
	c := New(stubResolver{}, artifact.DefaultScoreFields(), 2)
	_, _, err := c.Collect(context.Background(), []string{filepath.Join(t.TempDir(), "gone.faa")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteTableAbsentValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []*Row{
		{Description: "x", Sequence: "M", PTM: artifact.Present(0), File: "f"},
	}))
	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	records, err := csv.NewReader(zr).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "M", "0", "", "", "f"}, records[1])
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	RenderSummary(&buf, []FileSummary{{Path: "data/a.faa", Entries: 6, Structures: 3, Scores: 3}})
	out := buf.String()
	assert.True(t, strings.Contains(out, "data/a.faa"))
	assert.True(t, strings.Contains(strings.ToUpper(out), "TOTAL"))
}

func TestReadTableAndGood(t *testing.T) {
	root := layout(t)
	_, err := Run(context.Background(), Options{
		Root:    root,
		DataDir: filepath.Join(root, "data"),
		Scheme:  artifact.DefaultScheme(),
		Fields:  artifact.DefaultScoreFields(),
	})
	require.NoError(t, err)
	rows, err := Load(filepath.Join(root, DefaultOutput))
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, artifact.Present(0.2), rows[1].PTM)
	assert.False(t, rows[3].HasPDB)

	good := Good(rows, Threshold{PTM: 0.2, PLDDT: 70})
	var descs []string
	for _, row := range good {
		descs = append(descs, row.Description)
	}
	// b1 has a structure but no readable scores
	assert.Equal(t, []string{"b0", "a2", "a1"}, descs)
}

func TestReadTableMissingColumn(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("Description,Sequence\nx,M\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	_, err = ReadTable(&buf)
	assert.Error(t, err)
}
