package types

import (
	"strings"
	"time"
)

// AlertOperator is the comparison applied between the current price and an
// alert threshold. Storage values are matched case-insensitively.
type AlertOperator string

const (
	OpBelow AlertOperator = "below"
	OpLT    AlertOperator = "lt"
	OpLTE   AlertOperator = "lte"
	OpAbove AlertOperator = "above"
	OpGT    AlertOperator = "gt"
	OpGTE   AlertOperator = "gte"
)

// Compare reports whether current satisfies the operator against threshold.
// An unrecognized operator never matches.
func (op AlertOperator) Compare(current, threshold int64) bool {
	switch AlertOperator(strings.ToLower(strings.TrimSpace(string(op)))) {
	case OpBelow, OpLT:
		return current < threshold
	case OpLTE:
		return current <= threshold
	case OpAbove, OpGT:
		return current > threshold
	case OpGTE:
		return current >= threshold
	default:
		return false
	}
}

// AlertRule is a standing user preference on one priced offer.
type AlertRule struct {
	AlertID             string        `json:"alert_id"`
	UserID              string        `json:"user_id"`
	OfferJurisdictionID string        `json:"offer_jurisdiction_id"`
	ThresholdMinor      int64         `json:"threshold_minor"`
	Op                  AlertOperator `json:"op"`
	Active              bool          `json:"active"`
}

// PricedAlertRule pairs a rule with the offer's current price as loaded by
// the evaluator's single join query.
type PricedAlertRule struct {
	AlertRule
	CurrentAmountMinor int64
}

// AlertTrigger records that a rule's condition holds against live data. It
// is produced fresh on every evaluation and not persisted here.
type AlertTrigger struct {
	AlertID             string        `json:"alert_id"`
	UserID              string        `json:"user_id"`
	OfferJurisdictionID string        `json:"offer_jurisdiction_id"`
	ThresholdMinor      int64         `json:"threshold_minor"`
	CurrentAmountMinor  int64         `json:"current_amount_minor"`
	Op                  AlertOperator `json:"op"`
	TriggeredAt         time.Time     `json:"triggered_at"`
}
