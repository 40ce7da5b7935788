package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"pricewatch/internal/types"
)

// priceColumns is the COPY column order used by InsertPrices.
var priceColumns = []string{"offer_jurisdiction_id", "amount_minor", "currency", "observed_at", "source"}

// PriceRepository writes and reads the price_history table.
type PriceRepository struct {
	db DBTX
}

// NewPriceRepository creates a new PriceRepository backed by the given
// database connection (pool or transaction).
func NewPriceRepository(db DBTX) *PriceRepository {
	return &PriceRepository{db: db}
}

// InsertPrices appends rows to price_history with a single COPY and returns
// the number of rows written. The insert is append-only: rows that duplicate
// an earlier observation are stored again. An empty batch is a no-op that
// does not touch the database.
func (r *PriceRepository) InsertPrices(ctx context.Context, rows []types.PriceRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"price_history"},
		priceColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			p := rows[i]
			return []any{p.OfferJurisdictionID, p.AmountMinor, p.Currency, p.ObservedAt.UTC(), p.Source}, nil
		}),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to bulk insert prices", err)
	}
	return n, nil
}

// LatestBefore returns, for every offer with at least one observation before
// the given instant, its most recent such observation.
func (r *PriceRepository) LatestBefore(ctx context.Context, before time.Time) ([]types.PriceRow, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT ON (offer_jurisdiction_id)
		        offer_jurisdiction_id, amount_minor, currency, observed_at, source
		   FROM price_history
		  WHERE observed_at < $1
		  ORDER BY offer_jurisdiction_id, observed_at DESC`,
		before.UTC(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query latest prices", err)
	}
	defer rows.Close()

	var result []types.PriceRow
	for rows.Next() {
		var p types.PriceRow
		if err := rows.Scan(&p.OfferJurisdictionID, &p.AmountMinor, &p.Currency, &p.ObservedAt, &p.Source); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan price row", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating price rows", err)
	}
	return result, nil
}
