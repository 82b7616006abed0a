package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thavlik/foldy-array/aggregator"
	"github.com/thavlik/foldy-array/fold"
	"github.com/thavlik/foldy-array/manifest"
	"github.com/thavlik/foldy-array/sharedlog"
)

var taskCmd = &cobra.Command{
	Use:   "task <entry> <file>",
	Short: "Fold one entry of one sequence file (run by each array task)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTask,
}

func runTask(cmd *cobra.Command, args []string) error {
	entry, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("entry index: %w", err)
	}
	fileIndex, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("file index: %w", err)
	}
	folder, err := fold.NewCommand(cfg.Fold.Command, "")
	if err != nil {
		return err
	}
	workDir := cfg.Fold.WorkDir
	if workDir == "" {
		workDir = "."
	}
	task := &fold.Task{
		DataDir: dataDir(),
		WorkDir: workDir,
		Scheme:  cfg.Scheme,
		Fields:  cfg.Scores,
		Folder:  folder,
		Sink:    fold.FileSink{Format: cfg.LogFormat},
	}
	if cfg.Redis.URI != "" {
		client, err := aggregator.NewClient(cfg.Redis.URI)
		if err != nil {
			return err
		}
		defer client.Close()
		task.Sink = &aggregator.Publisher{
			Client:  client,
			Channel: cfg.Redis.Channel,
			TTL:     cfg.Redis.TTL,
			Format:  cfg.LogFormat,
		}
	}
	if cfg.Manifest != "" {
		m, err := manifest.Open(cfg.Manifest)
		if err != nil {
			return err
		}
		defer m.Close()
		task.Manifest = m
	}
	rec, err := task.Run(cmd.Context(), entry, fileIndex)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s entry %d -> %s\n", rec.File, entry, sharedlog.PathFor(rec.File))
	return nil
}
