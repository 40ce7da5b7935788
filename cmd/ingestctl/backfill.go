package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pricewatch/internal/backfill"
	"pricewatch/internal/types"
)

func newBackfillCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Carry prices forward into past months",
		Long: `Backfill writes one row per offer for every month in [--from, --to),
carrying forward the latest price observed before each month. Rows are
appended; running the same window twice writes it twice.`,
		Example: `  ingestctl backfill --from 2024-01 --to 2024-04   # Jan, Feb, Mar`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseWindow(from, to)
			if err != nil {
				return err
			}

			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			total, err := rt.Backfill().BackfillSpan(cmd.Context(), start, end, backfill.CarryForward(rt.Store))
			if err != nil {
				return fmt.Errorf("backfill stopped after %d rows: %w", total, err)
			}

			if structured() {
				return printOutput(cmd.OutOrStdout(), map[string]any{
					"from": start.String(), "to": to, "rows": total,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backfilled %d rows for %s through %s\n", total, start, end)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First month to fill (YYYY-MM)")
	cmd.Flags().StringVar(&to, "to", "", "Month to stop before (YYYY-MM)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// parseWindow turns the half-open [from, to) month window into the first and
// last month to fill.
func parseWindow(from, to string) (types.MonthRange, types.MonthRange, error) {
	start, err := types.ParseMonth(from)
	if err != nil {
		return types.MonthRange{}, types.MonthRange{}, err
	}
	stop, err := types.ParseMonth(to)
	if err != nil {
		return types.MonthRange{}, types.MonthRange{}, err
	}
	if !stop.Start.After(start.Start) {
		return types.MonthRange{}, types.MonthRange{}, types.NewAppError(
			types.ErrCodeValidationInvalidRange,
			fmt.Sprintf("--to %s must be after --from %s", stop, start),
			nil,
		)
	}

	last := types.MonthRangeFor(stop.Start.Year(), stop.Start.Month()-1)
	return start, last, nil
}
