package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/config"
	"pricewatch/internal/ingest"
	"pricewatch/internal/types"
)

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		RequestRPS:     5,
		RequestBurst:   1,
		RequestTimeout: time.Second,
		MaxRetries:     2,
		UserAgent:      "pricewatch-test",
		FeedBaseURL:    "https://feeds.example.com/v1/",
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewLogger_WritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")

	logger.Info("dropped")
	logger.Warn("kept", "worker", "steam.catalog")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "steam.catalog", entry["worker"])
}

func TestBuildWorkers(t *testing.T) {
	workers, err := BuildWorkers(testIngestConfig(),
		[]string{types.KindSteamCatalog, " " + types.KindXboxCatalog, types.KindSteamCatalog, ""},
		nil, nil)
	require.NoError(t, err)

	names := make([]string, 0, len(workers))
	for _, w := range workers {
		names = append(names, w.Name())
	}
	assert.Equal(t, []string{types.KindSteamCatalog, types.KindXboxCatalog}, names)

	pw, ok := workers[0].(*ingest.ProviderWorker)
	require.True(t, ok)
	assert.Contains(t, pw.ID(), types.KindSteamCatalog+"-")
}

func TestNewHTTPClient(t *testing.T) {
	cfg := testIngestConfig()

	guarded := newHTTPClient(cfg)
	assert.NotNil(t, guarded.CheckRedirect)
	assert.Equal(t, time.Second, guarded.Timeout)

	cfg.AllowPrivateFeeds = true
	open := newHTTPClient(cfg)
	assert.Nil(t, open.CheckRedirect)
	assert.Nil(t, open.Transport)
}

func TestBuildWorkers_MissingFeedBaseURL(t *testing.T) {
	cfg := testIngestConfig()
	cfg.FeedBaseURL = ""

	_, err := BuildWorkers(cfg, []string{types.KindSteamCatalog}, nil, nil)
	require.Error(t, err)

	var cfgErr *config.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, config.ErrMissingEnv, cfgErr.Type)
}

func TestBuildWorkers_NoKinds(t *testing.T) {
	_, err := BuildWorkers(testIngestConfig(), []string{" ", ""}, nil, nil)
	assert.Error(t, err)
}

func TestEvery_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	err := Every(ctx, time.Millisecond, func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestEvery_ReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Every(context.Background(), time.Millisecond, func(context.Context) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}
