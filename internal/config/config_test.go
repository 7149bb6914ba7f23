package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsync/internal/config"
	"github.com/alanyoungcy/oddsync/internal/domain"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oddsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "stream"

[stream]
url = "wss://feed.example.com/ws"
heartbeat_interval = "10s"

[filters]
sport = "basketball_nba"
markets = ["h2h"]
min_edge = 0.03

[alerts]
cooldown = "2m"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "stream", cfg.Mode)
	assert.Equal(t, "wss://feed.example.com/ws", cfg.Stream.URL)
	assert.Equal(t, 10*time.Second, cfg.Stream.HeartbeatInterval.Duration)
	assert.Equal(t, 15*time.Second, cfg.Stream.HandshakeTimeout.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Alerts.Cooldown.Duration)
	assert.Equal(t, 5*time.Second, cfg.Alerts.PollInterval.Duration)

	fs := cfg.Filters.FilterSet()
	assert.Equal(t, "basketball_nba", fs.Sport)
	assert.Equal(t, []string{"h2h"}, fs.Markets)
	require.NotNil(t, fs.MinEdge)
	assert.Equal(t, 0.03, *fs.MinEdge)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTOML(t, "[stream]\nurl = \"ws://file\"\n")
	t.Setenv("ODDSYNC_STREAM_URL", "ws://env")
	t.Setenv("ODDSYNC_FILTERS_BOOKS", "fanduel, draftkings ,")
	t.Setenv("ODDSYNC_FILTERS_MIN_EDGE", "0.05")
	t.Setenv("ODDSYNC_ALERTS_POLL_INTERVAL", "1s")
	t.Setenv("ODDSYNC_REDIS_ENABLED", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://env", cfg.Stream.URL)
	assert.Equal(t, []string{"fanduel", "draftkings"}, cfg.Filters.Books)
	require.NotNil(t, cfg.Filters.MinEdge)
	assert.Equal(t, 0.05, *cfg.Filters.MinEdge)
	assert.Equal(t, time.Second, cfg.Alerts.PollInterval.Duration)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 30*time.Minute, cfg.Store.MaxAge.Duration)
}

func TestLoadBadFile(t *testing.T) {
	_, err := config.Load(writeTOML(t, "[stream\nurl="))
	require.Error(t, err)
}

func TestValidateMissingStreamURL(t *testing.T) {
	cfg := config.Defaults()
	cfg.Filters.Sport = "basketball_nba"

	err := cfg.Validate()
	var cerr *domain.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "stream.url", cerr.Field)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := config.Defaults()
	cfg.Stream.URL = "http://not-a-socket"
	cfg.Mode = "trade"
	cfg.Alerts.DedupBackend = "redis"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, field := range []string{"mode", "stream.url", "filters.sport", "alerts.dedup_backend"} {
		assert.Contains(t, msg, "config: "+field+":")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notify.WebhookSecret = "s3cret"
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = ""

	red := config.RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Notify.WebhookSecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Empty(t, red.Server.APIKey)
	assert.Equal(t, "s3cret", cfg.Notify.WebhookSecret)

	red.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
