package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/types"
)

func TestPriceRepository_InsertPrices_EmptyBatchSkipsDB(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPriceRepository(db)

	n, err := repo.InsertPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	db.AssertNotCalled(t, "CopyFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPriceRepository_InsertPrices_CopiesRows(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPriceRepository(db)
	ctx := context.Background()

	observed := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := []types.PriceRow{
		{OfferJurisdictionID: "oj-1", AmountMinor: 1999, Currency: "USD", ObservedAt: observed, Source: "steam"},
		{OfferJurisdictionID: "oj-2", AmountMinor: 4999, Currency: "EUR", ObservedAt: observed, Source: "steam"},
	}

	var copied [][]any
	db.On("CopyFrom", ctx, pgx.Identifier{"price_history"}, priceColumns, mock.Anything).
		Run(func(args mock.Arguments) {
			src := args.Get(3).(pgx.CopyFromSource)
			for src.Next() {
				vals, err := src.Values()
				require.NoError(t, err)
				copied = append(copied, vals)
			}
		}).
		Return(int64(2), nil)

	n, err := repo.InsertPrices(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.Len(t, copied, 2)
	assert.Equal(t, []any{"oj-1", int64(1999), "USD", observed, "steam"}, copied[0])
	db.AssertExpectations(t)
}

func TestPriceRepository_InsertPrices_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPriceRepository(db)

	db.On("CopyFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(int64(0), errors.New("unique violation"))

	_, err := repo.InsertPrices(context.Background(), []types.PriceRow{{OfferJurisdictionID: "oj-1"}})
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestPriceRepository_LatestBefore(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPriceRepository(db)
	ctx := context.Background()

	before := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	seen := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)
	db.On("Query", ctx, sqlContains("DISTINCT ON (offer_jurisdiction_id)"), []any{before}).
		Return(newMockRows([][]any{{"oj-1", int64(1500), "USD", seen, "psstore"}}), nil)

	got, err := repo.LatestBefore(ctx, before)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.PriceRow{OfferJurisdictionID: "oj-1", AmountMinor: 1500, Currency: "USD", ObservedAt: seen, Source: "psstore"}, got[0])
}
