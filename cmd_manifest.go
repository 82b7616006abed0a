package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/thavlik/foldy-array/artifact"
	"github.com/thavlik/foldy-array/fasta"
	"github.com/thavlik/foldy-array/manifest"
)

var errNoManifest = errors.New("manifest path is not configured")

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect or rebuild the artifact manifest",
}

var manifestListCmd = &cobra.Command{
	Use:   "list [source]",
	Short: "List recorded artifacts, optionally of one .faa file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runManifestList,
}

var manifestImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Record artifacts found by file name in the manifest",
	Args:  cobra.NoArgs,
	RunE:  runManifestImport,
}

func init() {
	manifestCmd.AddCommand(manifestListCmd)
	manifestCmd.AddCommand(manifestImportCmd)
}

func runManifestList(cmd *cobra.Command, args []string) error {
	m, err := openManifest()
	if err != nil {
		return err
	}
	defer m.Close()
	source := ""
	if len(args) == 1 {
		source = args[0]
	}
	entries, err := m.Entries(cmd.Context(), source)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Source", "File", "Entry", "Structure", "Scores", "Recorded"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Source, e.FileIndex, e.Entry, e.StructurePath, e.ScorePath, e.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	t.AppendFooter(table.Row{"", "", len(entries), "", "", ""})
	t.Render()
	return nil
}

// runManifestImport backfills the manifest from a file name scan, for
// runs that were folded without one.
func runManifestImport(cmd *cobra.Command, _ []string) error {
	m, err := openManifest()
	if err != nil {
		return err
	}
	defer m.Close()
	ctx := cmd.Context()
	files, err := artifact.ListFiles(dataDir(), ".faa")
	if err != nil {
		return err
	}
	snap, err := artifact.Scan(ctx, cfg.Root, dataDir(), cfg.Scheme)
	if err != nil {
		return err
	}
	imported := 0
	for i, file := range files {
		n, err := fasta.Count(file)
		if err != nil {
			return err
		}
		sel := snap.Select(i)
		for j := 0; j < n; j++ {
			set := sel.At(j)
			if !set.HasStructure() && !set.HasScores() {
				continue
			}
			if err := m.Put(ctx, &manifest.Entry{
				Source:        filepath.Base(file),
				FileIndex:     i,
				Entry:         j,
				StructurePath: set.StructurePath,
				ScorePath:     set.ScorePath,
			}); err != nil {
				return err
			}
			imported++
		}
		log.Infof("Imported %s", file)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d entries\n", imported)
	return nil
}
