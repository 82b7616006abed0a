package main

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/thavlik/foldy-array/aggregator"
	"github.com/thavlik/foldy-array/sharedlog"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Append results published by array tasks to their shared logs",
	Args:  cobra.NoArgs,
	RunE:  runAggregate,
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	if cfg.Redis.URI == "" {
		return errors.New("redis.uri (or REDIS_URI) is required")
	}
	client, err := aggregator.NewClient(cfg.Redis.URI)
	if err != nil {
		return err
	}
	defer client.Close()
	s := &aggregator.Subscriber{
		Client:  client,
		Channel: cfg.Redis.Channel,
		Append:  sharedlog.Append,
	}
	if err := s.Run(cmd.Context()); err != nil {
		return err
	}
	log.Infof("Aggregator stopped")
	return nil
}
