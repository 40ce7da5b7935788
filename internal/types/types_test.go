package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertOperator_Compare(t *testing.T) {
	tests := []struct {
		op        AlertOperator
		current   int64
		threshold int64
		want      bool
	}{
		{OpBelow, 499, 500, true},
		{OpBelow, 500, 500, false},
		{OpLT, 499, 500, true},
		{OpLTE, 500, 500, true},
		{OpLTE, 501, 500, false},
		{OpAbove, 501, 500, true},
		{OpAbove, 500, 500, false},
		{OpGT, 501, 500, true},
		{OpGTE, 500, 500, true},
		{OpGTE, 499, 500, false},
		{" BELOW ", 1, 2, true},
		{"between", 1, 2, false},
		{"", 1, 2, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d/%d", tt.op, tt.current, tt.threshold), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Compare(tt.current, tt.threshold))
		})
	}
}

func TestMonthRange(t *testing.T) {
	r := MonthRangeFor(2024, time.February)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), r.End)
	assert.Equal(t, "2024-02", r.String())


	dec := MonthRangeFor(2023, time.December)
	assert.Equal(t, "2024-01", dec.Next().String())
	assert.Equal(t, "2025-01", MonthRangeFor(2024, 13).String())
	assert.Equal(t, "2023-12", MonthRangeFor(2024, 0).String())

	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "2024-03", MonthRangeOf(time.Date(2024, 2, 29, 22, 0, 0, 0, est)).String())
}

func TestParseMonth(t *testing.T) {
	r, err := ParseMonth("2024-07")
	require.NoError(t, err)
	assert.Equal(t, MonthRangeFor(2024, time.July), r)

	for _, bad := range []string{"", "2024-13", "2024/07", "July"} {
		_, err := ParseMonth(bad)
		assert.Equal(t, ErrCodeValidationInvalidValue, CodeOf(err), bad)
	}
}

func TestJobPayload_ScanAndValue(t *testing.T) {
	var p JobPayload
	require.NoError(t, p.Scan([]byte(`{"region":"en-us","pages":2}`)))
	region, ok := p.String("region")
	assert.True(t, ok)
	assert.Equal(t, "en-us", region)
	pages, ok := p.Int("pages")
	assert.True(t, ok)
	assert.Equal(t, 2, pages)

	_, ok = p.String("pages")
	assert.False(t, ok)
	_, ok = p.Int("missing")
	assert.False(t, ok)

	require.NoError(t, p.Scan(`{"k":"v"}`))
	assert.Equal(t, JobPayload{"k": "v"}, p)

	require.NoError(t, p.Scan(nil))
	assert.Nil(t, p)
	assert.Error(t, p.Scan(42))

	v, err := JobPayload(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
}

func TestJobStatus(t *testing.T) {
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobQueued.Valid())
	assert.False(t, JobStatus("paused").Valid())
}

func TestAppError(t *testing.T) {
	root := errors.New("connection refused")
	err := NewAppError(ErrCodeInternalDB, "failed to claim job", root)

	assert.Equal(t, "internal_database_error: failed to claim job: connection refused", err.Error())
	assert.ErrorIs(t, err, root)
	assert.Equal(t, ErrCodeInternalDB, CodeOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ErrorCode(""), CodeOf(root))

	detailed := err.WithDetails(map[string]any{"kind": "steam.catalog"})
	assert.Equal(t, "steam.catalog", detailed.Details["kind"])
	assert.Nil(t, err.Details)

	assert.True(t, ErrCodeUpstreamRateLimited.Retryable())
	assert.False(t, ErrCodeInternalDB.Retryable())
}

func TestSecretString(t *testing.T) {
	s := SecretString("postgres://u:hunter2@db/prices")

	assert.Equal(t, redactedPlaceholder, s.String())
	assert.Equal(t, redactedPlaceholder, fmt.Sprintf("%v", s))
	assert.Equal(t, "postgres://u:hunter2@db/prices", s.Unmask())
	assert.False(t, s.IsZero())
	assert.True(t, SecretString("").IsZero())

	out, err := json.Marshal(struct {
		URL SecretString `json:"url"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"***REDACTED***"}`, string(out))
}
