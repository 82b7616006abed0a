package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thavlik/foldy-array/config"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished task pods (kubernetes backend)",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, _ []string) error {
	if cfg.Scheduler.Backend != config.BackendKubernetes {
		return errors.New("prune needs the kubernetes scheduler backend")
	}
	profile, err := cfg.Profile()
	if err != nil {
		return err
	}
	k, err := newKubernetes(profile)
	if err != nil {
		return err
	}
	n, err := k.Prune(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d pods\n", n)
	return nil
}
