package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pricewatch/internal/ingest"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [KIND...]",
		Short: "Run provider workers once in this process",
		Long: `Run builds a provider worker for each KIND (default: PROVIDERS) and runs
them concurrently until each has drained its queue. The command fails when
any worker failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			kinds := args
			if len(kinds) == 0 {
				kinds = rt.Config.Ingest.Providers
			}
			workers, err := rt.Workers(kinds)
			if err != nil {
				return err
			}

			outcomes, runErr := rt.Manager().Run(cmd.Context(), workers)
			if err := printOutcomes(cmd.OutOrStdout(), outcomes); err != nil {
				return err
			}
			return runErr
		},
	}
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ingestion tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

type outcomeView struct {
	Worker   string `json:"worker"`
	Result   string `json:"result"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

func outcomeViews(outcomes []ingest.Outcome) []outcomeView {
	views := make([]outcomeView, 0, len(outcomes))
	for _, o := range outcomes {
		v := outcomeView{
			Worker:   o.Worker,
			Result:   ingest.ResultSuccess,
			Duration: o.Duration.String(),
		}
		switch {
		case o.Panicked:
			v.Result = ingest.ResultPanicked
		case o.Err != nil:
			v.Result = ingest.ResultFailed
		}
		if o.Err != nil {
			v.Error = o.Err.Error()
		}
		views = append(views, v)
	}
	return views
}

func printOutcomes(w io.Writer, outcomes []ingest.Outcome) error {
	views := outcomeViews(outcomes)
	if structured() {
		return printOutput(w, views)
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.Worker, v.Result, v.Duration, v.Error})
	}
	printTable(w, []string{"Worker", "Result", "Duration", "Error"}, rows)
	return nil
}
