// Package backfill re-populates price history one calendar month at a time.
// The month loop and persistence live here; what rows a month gets is decided
// by an injected Generator.
package backfill

import (
	"context"
	"log/slog"
	"time"

	"pricewatch/internal/types"
)

// Generator produces the rows for one month. It is called synchronously
// once per bucket and may perform I/O.
type Generator func(ctx context.Context, month types.MonthRange) ([]types.PriceRow, error)

// Inserter bulk-writes rows. db.PriceRepository implements it with COPY, so
// writes are append-only and re-running a span duplicates its rows.
type Inserter interface {
	InsertPrices(ctx context.Context, rows []types.PriceRow) (int64, error)
}

// Engine runs backfills against one Inserter.
type Engine struct {
	store  Inserter
	logger *slog.Logger
}

// NewEngine creates an Engine writing to store.
func NewEngine(store Inserter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// BackfillMonth calls gen once for the given month and persists a non-empty
// result with a single bulk insert. It returns the number of rows inserted.
func (e *Engine) BackfillMonth(ctx context.Context, year int, month time.Month, gen Generator) (int64, error) {
	return e.fill(ctx, types.MonthRangeFor(year, month), gen)
}

// BackfillSpan walks months oldest first from start's month, stopping at the
// first month that does not begin before end.End. Months are processed one
// at a time; the first error aborts the span and months already written stay
// written. It returns the total number of rows inserted.
func (e *Engine) BackfillSpan(ctx context.Context, start, end types.MonthRange, gen Generator) (int64, error) {
	var total int64
	for r := types.MonthRangeOf(start.Start); r.Start.Before(end.End); r = r.Next() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := e.fill(ctx, r, gen)
		if err != nil {
			e.logger.ErrorContext(ctx, "backfill aborted",
				"month", r.String(),
				"rows_so_far", total,
				"error", err,
			)
			return total, err
		}
		total += n
	}

	e.logger.InfoContext(ctx, "backfill span complete",
		"from", types.MonthRangeOf(start.Start).String(),
		"until", end.End.Format("2006-01"),
		"rows", total,
	)
	return total, nil
}

func (e *Engine) fill(ctx context.Context, r types.MonthRange, gen Generator) (int64, error) {
	rows, err := gen(ctx, r)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		e.logger.DebugContext(ctx, "backfill month empty", "month", r.String())
		return 0, nil
	}

	n, err := e.store.InsertPrices(ctx, rows)
	if err != nil {
		return 0, err
	}
	e.logger.InfoContext(ctx, "backfill month written", "month", r.String(), "rows", n)
	return n, nil
}
