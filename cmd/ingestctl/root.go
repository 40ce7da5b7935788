package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"pricewatch/internal/app"
	"pricewatch/internal/config"
)

var outputFmt string

// openRuntime loads configuration and connects to the database. Commands call
// it only after their own arguments validate.
var openRuntime = func(ctx context.Context) (*app.Runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, app.NewLogger(os.Stderr, cfg.LogLevel))
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ingestctl",
		Short: "Operate the price ingestion queue",
		Long: `ingestctl drives the price ingestion engine from the shell.

It enqueues and inspects jobs, runs provider workers in process, backfills
monthly price history and launches worker processes with a scrubbed
environment. Configuration comes from the same environment variables the
workers read (DATABASE_URL, FEED_BASE_URL, ...).`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	root.AddCommand(
		newEnqueueCmd(),
		newStatusCmd(),
		newBackfillCmd(),
		newSpawnCmd(),
		newRunCmd(),
		newMigrateCmd(),
	)
	return root
}
