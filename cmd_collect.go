package main

import (
	"github.com/spf13/cobra"

	"github.com/thavlik/foldy-array/collector"
	"github.com/thavlik/foldy-array/manifest"
)

var collectFlags struct {
	output      string
	workers     int
	useManifest bool
	summary     bool
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Gather folded structures and scores into collected_results.csv.gz",
	Args:  cobra.NoArgs,
	RunE:  runCollect,
}

func init() {
	f := collectCmd.Flags()
	f.StringVarP(&collectFlags.output, "output", "o", "", "table path (default <root>/collected_results.csv.gz)")
	f.IntVar(&collectFlags.workers, "workers", 0, "entry workers (default from config, then number of CPUs)")
	f.BoolVar(&collectFlags.useManifest, "manifest", false, "resolve artifacts through the manifest instead of file names")
	f.BoolVar(&collectFlags.summary, "summary", true, "print a per-file summary table")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	opts := collector.Options{
		Root:    cfg.Root,
		DataDir: dataDir(),
		Output:  cfg.Output,
		Workers: cfg.Workers,
		Scheme:  cfg.Scheme,
		Fields:  cfg.Scores,
	}
	if collectFlags.output != "" {
		opts.Output = collectFlags.output
	}
	if collectFlags.workers > 0 {
		opts.Workers = collectFlags.workers
	}
	if collectFlags.useManifest {
		m, err := openManifest()
		if err != nil {
			return err
		}
		defer m.Close()
		opts.Resolver = m
	}
	summaries, err := collector.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if collectFlags.summary {
		collector.RenderSummary(cmd.OutOrStdout(), summaries)
	}
	return nil
}

func openManifest() (*manifest.Manifest, error) {
	if cfg.Manifest == "" {
		return nil, errNoManifest
	}
	return manifest.Open(cfg.Manifest)
}
