// Package alerts compares freshly ingested prices against stored user alert
// thresholds. Evaluation is a pure read: it never marks alerts as fired, so
// repeated evaluations over unchanged data produce the same triggers.
package alerts

import (
	"context"
	"time"

	"pricewatch/internal/types"
)

// RuleLoader loads the active rules on the given offers, each joined with the
// offer's current price. db.AlertRepository implements it.
type RuleLoader interface {
	ListActiveForOffers(ctx context.Context, offerIDs []string) ([]types.PricedAlertRule, error)
}

// Evaluator decides which alert rules currently hold.
type Evaluator struct {
	rules RuleLoader
	now   func() time.Time
}

// NewEvaluator creates an Evaluator backed by rules.
func NewEvaluator(rules RuleLoader) *Evaluator {
	return &Evaluator{rules: rules, now: func() time.Time { return time.Now().UTC() }}
}

// Evaluate returns one trigger per active rule on offerIDs whose operator
// holds against the offer's current price. Empty and duplicate IDs are
// dropped; if nothing is left, storage is not queried.
func (e *Evaluator) Evaluate(ctx context.Context, offerIDs []string) ([]types.AlertTrigger, error) {
	ids := uniqueNonEmpty(offerIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	rules, err := e.rules.ListActiveForOffers(ctx, ids)
	if err != nil {
		return nil, err
	}
	return Match(rules, e.now()), nil
}

// Match applies each rule's operator and returns the triggers stamped with
// at. Inactive rules and unknown operators never match.
func Match(rules []types.PricedAlertRule, at time.Time) []types.AlertTrigger {
	var triggers []types.AlertTrigger
	for _, r := range rules {
		if !r.Active || !r.Op.Compare(r.CurrentAmountMinor, r.ThresholdMinor) {
			continue
		}
		triggers = append(triggers, types.AlertTrigger{
			AlertID:             r.AlertID,
			UserID:              r.UserID,
			OfferJurisdictionID: r.OfferJurisdictionID,
			ThresholdMinor:      r.ThresholdMinor,
			CurrentAmountMinor:  r.CurrentAmountMinor,
			Op:                  r.Op,
			TriggeredAt:         at,
		})
	}
	return triggers
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
