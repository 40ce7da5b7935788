package backfill

import (
	"context"
	"time"

	"pricewatch/internal/types"
)

// CarryForwardSource is the label written on rows produced by CarryForward.
const CarryForwardSource = "backfill.carry_forward"

// LatestReader returns, per offer, the most recent observation strictly
// before a given instant. db.PriceRepository implements it.
type LatestReader interface {
	LatestBefore(ctx context.Context, before time.Time) ([]types.PriceRow, error)
}

// CarryForward fills a month with one row per offer stamped at the month's
// start, carrying the last price known before that instant. Offers with no
// earlier observation get nothing.
func CarryForward(reader LatestReader) Generator {
	return func(ctx context.Context, month types.MonthRange) ([]types.PriceRow, error) {
		latest, err := reader.LatestBefore(ctx, month.Start)
		if err != nil {
			return nil, err
		}
		rows := make([]types.PriceRow, 0, len(latest))
		for _, p := range latest {
			rows = append(rows, types.PriceRow{
				OfferJurisdictionID: p.OfferJurisdictionID,
				AmountMinor:         p.AmountMinor,
				Currency:            p.Currency,
				ObservedAt:          month.Start,
				Source:              CarryForwardSource,
			})
		}
		return rows, nil
	}
}
