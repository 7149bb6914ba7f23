package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsync/internal/config"
)

func testConfig(mode string) *config.Config {
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Stream.URL = "ws://127.0.0.1:1/odds"
	cfg.Stream.MaxReconnectAttempts = 1
	cfg.Filters.Sport = "basketball_nba"
	cfg.Notify.WebhookURL = "http://127.0.0.1:1/hook"
	return &cfg
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWireWithoutBackends(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), testConfig("full"), quiet())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Engine)
	assert.NotNil(t, deps.Hub)
	assert.Nil(t, deps.Bus)
	assert.Nil(t, deps.History)
	assert.Nil(t, deps.Archiver)
	assert.Nil(t, deps.Tail)
	assert.Empty(t, deps.Checks)
	assert.Len(t, deps.Notifier.Senders(), 1)
	assert.Equal(t, "basketball_nba", deps.Engine.Filters().Sport)
}

func TestWireStreamModeHasNoHub(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), testConfig("stream"), quiet())
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, deps.Hub)
}

func TestStreamModeStopsOnCancel(t *testing.T) {
	a := New(testConfig("stream"), quiet())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestUnsupportedMode(t *testing.T) {
	a := New(testConfig("backtest"), quiet())
	defer a.Close()
	assert.ErrorContains(t, a.Run(context.Background()), "unsupported mode")
}
