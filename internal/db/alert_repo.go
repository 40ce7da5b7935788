package db

import (
	"context"

	"pricewatch/internal/types"
)

// AlertRepository reads price_alerts joined with the current_prices view.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new AlertRepository backed by the given
// database connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// ListActiveForOffers returns every active alert on the given offers together
// with each offer's current price. Offers without any price row are skipped
// by the inner join, so their alerts are not evaluated.
func (r *AlertRepository) ListActiveForOffers(ctx context.Context, offerIDs []string) ([]types.PricedAlertRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.alert_id, a.user_id, a.offer_jurisdiction_id, a.threshold_minor, a.op, a.active,
		        cp.amount_minor
		   FROM price_alerts a
		   JOIN current_prices cp ON cp.offer_jurisdiction_id = a.offer_jurisdiction_id
		  WHERE a.active AND a.offer_jurisdiction_id = ANY($1)
		  ORDER BY a.alert_id`,
		offerIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load active alerts", err)
	}
	defer rows.Close()

	var result []types.PricedAlertRule
	for rows.Next() {
		var rule types.PricedAlertRule
		var op string
		if err := rows.Scan(
			&rule.AlertID,
			&rule.UserID,
			&rule.OfferJurisdictionID,
			&rule.ThresholdMinor,
			&op,
			&rule.Active,
			&rule.CurrentAmountMinor,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert row", err)
		}
		rule.Op = types.AlertOperator(op)
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alert rows", err)
	}
	return result, nil
}
