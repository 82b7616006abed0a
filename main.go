package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/thavlik/foldy-array/config"
)

var rootFlags struct {
	config   string
	root     string
	logLevel string
}

// cfg is loaded before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "foldy",
	Short: "Fold FASTA inputs as cluster job arrays and collect the results",
	Long: "foldy submits one job array per .faa file in the data directory,\n" +
		"folds each entry in its own array task and collects the structures\n" +
		"and confidence scores into collected_results.csv.gz.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.config, "config", "", "path to foldy.yaml")
	f.StringVar(&rootFlags.root, "root", "", "working directory holding data/ and the job folders (overrides config)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(goodCmd)
}

func loadConfig() error {
	c, err := config.Load(rootFlags.config)
	if err != nil {
		return err
	}
	if rootFlags.root != "" {
		c.Root = rootFlags.root
	}
	// Array tasks run from their job folders, so every path handed to
	// them or stored in the manifest is anchored at the root.
	if c.Root, err = filepath.Abs(c.Root); err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if c.Manifest != "" && !filepath.IsAbs(c.Manifest) {
		c.Manifest = filepath.Join(c.Root, c.Manifest)
	}
	level := c.LogLevel
	if rootFlags.logLevel != "" {
		level = rootFlags.logLevel
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)
	cfg = c
	return nil
}

// dataDir resolves the data directory against the root.
func dataDir() string {
	if filepath.IsAbs(cfg.DataDir) {
		return cfg.DataDir
	}
	return filepath.Join(cfg.Root, cfg.DataDir)
}

func entry() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	if err := entry(); err != nil {
		log.Fatal(err)
	}
}
