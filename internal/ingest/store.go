package ingest

import (
	"context"

	"pricewatch/internal/db"
	"pricewatch/internal/types"
)

// Store is the storage handle shared by every worker in a process. It must
// be safe for concurrent use.
type Store interface {
	Claim(ctx context.Context, kind, workerID string) (*types.IngestionJob, error)
	Complete(ctx context.Context, id int64, workerID string) error
	Fail(ctx context.Context, id int64, workerID string, jobErr error) error
	InsertPrices(ctx context.Context, rows []types.PriceRow) (int64, error)
	ListActiveForOffers(ctx context.Context, offerIDs []string) ([]types.PricedAlertRule, error)
}

var _ Store = (*db.Store)(nil)
