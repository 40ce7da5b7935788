package types

import (
	"fmt"
	"time"
)

// PriceRow is one price observation written in bulk to price_history.
type PriceRow struct {
	OfferJurisdictionID string    `json:"offer_jurisdiction_id"`
	AmountMinor         int64     `json:"amount_minor"`
	Currency            string    `json:"currency"`
	ObservedAt          time.Time `json:"observed_at"`
	Source              string    `json:"source"`
}

// MonthRange is the half-open interval [Start, End) covering one calendar
// month in UTC. End is always the first instant of the following month.
type MonthRange struct {
	Start time.Time
	End   time.Time
}

// MonthRangeFor returns the range for the given calendar month. Out-of-range
// months are normalized the same way time.Date normalizes them, so month 13
// of 2024 is January 2025.
func MonthRangeFor(year int, month time.Month) MonthRange {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return MonthRange{Start: start, End: start.AddDate(0, 1, 0)}
}

// MonthRangeOf returns the range containing t.
func MonthRangeOf(t time.Time) MonthRange {
	t = t.UTC()
	return MonthRangeFor(t.Year(), t.Month())
}

// Next returns the range for the following month, wrapping December into
// January of the next year.
func (r MonthRange) Next() MonthRange {
	return MonthRangeOf(r.End)
}

// String renders the range as YYYY-MM.
func (r MonthRange) String() string {
	return fmt.Sprintf("%04d-%02d", r.Start.Year(), int(r.Start.Month()))
}

// ParseMonth parses a YYYY-MM string into its MonthRange.
func ParseMonth(s string) (MonthRange, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthRange{}, NewAppError(ErrCodeValidationInvalidValue, fmt.Sprintf("invalid month %q, expected YYYY-MM", s), err)
	}
	return MonthRangeOf(t), nil
}
