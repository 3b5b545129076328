package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dmarketbot/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Auth.Scheme = "hmac"
	cfg.Auth.APIKey = "test-key"
	cfg.Auth.Secret = strings.Repeat("ab", 32)
	cfg.Cache.Backend = "memory"
	cfg.Postgres.Enabled = false
	cfg.Scan.Games = []string{"a8db", "9a92"}
	return &cfg
}

func TestWireBuildsMemoryBackedDependencies(t *testing.T) {
	cfg := testConfig()

	deps, cleanup, err := Wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.DMarket)
	require.NotNil(t, deps.Checkpoints)
	require.NotNil(t, deps.Queue)
	require.NotNil(t, deps.Drainer)
	assert.Len(t, deps.Scanners, 2, "one scanner per configured game")
	assert.Len(t, deps.Feeds, 2, "one feed listener per configured game")
	assert.True(t, deps.FeedsEnabled)
	assert.Equal(t, cfg.Scan.Retention.Duration, deps.PurgeRetention)
}

func TestWireSkipsFeedsWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Feed.Enabled = false

	deps, cleanup, err := Wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer cleanup()

	assert.Len(t, deps.Scanners, 2)
	assert.Empty(t, deps.Feeds)
	assert.False(t, deps.FeedsEnabled)
}

func TestWireRejectsUnknownScanLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Scan.Level = "ultra"

	_, _, err := Wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scan level")
}

func TestWireRejectsMissingSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Secret = ""

	_, _, err := Wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}
