package ingest

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"pricewatch/internal/external"
	"pricewatch/internal/types"
)

// Source fetches the price observations for one claimed job. Provider
// specific request building and payload parsing live behind this interface.
type Source interface {
	Kind() string
	Fetch(ctx context.Context, job *types.IngestionJob) ([]types.PriceRow, error)
}

// JSONGetter is the subset of *external.Client a source needs.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

var _ JSONGetter = (*external.Client)(nil)

// feedDocument is the normalized price feed every provider adapter serves.
type feedDocument struct {
	Prices []feedPrice `json:"prices"`
}

type feedPrice struct {
	OfferJurisdictionID string    `json:"offer_jurisdiction_id"`
	AmountMinor         int64     `json:"amount_minor"`
	Currency            string    `json:"currency"`
	ObservedAt          time.Time `json:"observed_at"`
}

// HTTPSource reads a normalized JSON price feed. The request URL is the
// job payload's "url" entry when present, otherwise the configured feed URL
// with the remaining payload entries added as query parameters in key order.
type HTTPSource struct {
	kind    string
	feedURL string
	client  JSONGetter
	now     func() time.Time
}

// NewHTTPSource creates a source for kind served at feedURL.
func NewHTTPSource(kind, feedURL string, client JSONGetter) *HTTPSource {
	return &HTTPSource{
		kind:    kind,
		feedURL: feedURL,
		client:  client,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Kind implements Source.
func (s *HTTPSource) Kind() string { return s.kind }

// Fetch implements Source. Rows without an offer ID or currency make the
// whole response invalid; rows without observed_at are stamped with the
// fetch time.
func (s *HTTPSource) Fetch(ctx context.Context, job *types.IngestionJob) ([]types.PriceRow, error) {
	target, err := s.requestURL(job.Payload)
	if err != nil {
		return nil, err
	}

	var doc feedDocument
	if err := s.client.GetJSON(ctx, target, &doc); err != nil {
		return nil, err
	}

	fetchedAt := s.now()
	rows := make([]types.PriceRow, 0, len(doc.Prices))
	for i, p := range doc.Prices {
		if p.OfferJurisdictionID == "" || p.Currency == "" {
			return nil, types.NewAppError(types.ErrCodeUpstreamBadResponse, "price entry missing offer or currency", nil).
				WithDetails(map[string]any{"index": i, "kind": s.kind})
		}
		observed := p.ObservedAt
		if observed.IsZero() {
			observed = fetchedAt
		}
		rows = append(rows, types.PriceRow{
			OfferJurisdictionID: p.OfferJurisdictionID,
			AmountMinor:         p.AmountMinor,
			Currency:            strings.ToUpper(p.Currency),
			ObservedAt:          observed.UTC(),
			Source:              s.kind,
		})
	}
	return rows, nil
}

func (s *HTTPSource) requestURL(payload types.JobPayload) (string, error) {
	if raw, ok := payload.String("url"); ok && raw != "" {
		return raw, nil
	}
	if s.feedURL == "" {
		return "", types.NewAppError(types.ErrCodeConfigMissing, "no feed url configured for "+s.kind, nil)
	}

	u, err := url.Parse(s.feedURL)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeConfigMissing, "invalid feed url for "+s.kind, err)
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := u.Query()
	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			q.Set(k, v)
		case float64, int, int64, bool:
			q.Set(k, fmt.Sprint(v))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
