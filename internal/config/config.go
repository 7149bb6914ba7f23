// Package config defines the top-level configuration for oddsync and
// provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ODDSYNC_* environment variables.
type Config struct {
	Stream   StreamConfig   `toml:"stream"`
	Rest     RestConfig     `toml:"rest"`
	Filters  FiltersConfig  `toml:"filters"`
	Alerts   AlertsConfig   `toml:"alerts"`
	Store    StoreConfig    `toml:"store"`
	Notify   NotifyConfig   `toml:"notify"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// StreamConfig configures the odds feed connection.
type StreamConfig struct {
	URL                  string   `toml:"url"`
	HeartbeatInterval    duration `toml:"heartbeat_interval"`
	HandshakeTimeout     duration `toml:"handshake_timeout"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	BackoffBase          duration `toml:"backoff_base"`
	BackoffGrowth        float64  `toml:"backoff_growth"`
	BackoffJitter        duration `toml:"backoff_jitter"`
	BackoffCap           duration `toml:"backoff_cap"`
}

// RestConfig configures the snapshot endpoint used to seed the board.
// An empty BaseURL skips the bootstrap.
type RestConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	Timeout        duration `toml:"timeout"`
	RatePerSec     float64  `toml:"rate_per_sec"`
	BootstrapLimit int      `toml:"bootstrap_limit"`
}

// FiltersConfig is the initial filter set.
type FiltersConfig struct {
	Sport       string   `toml:"sport"`
	Markets     []string `toml:"markets"`
	Books       []string `toml:"books"`
	MinEdge     *float64 `toml:"min_edge"`
	SearchQuery string   `toml:"search_query"`
	EventStatus string   `toml:"event_status"`
}

// FilterSet converts the initial filters to their domain form.
func (f FiltersConfig) FilterSet() domain.FilterSet {
	fs := domain.FilterSet{
		Sport:       f.Sport,
		Markets:     append([]string(nil), f.Markets...),
		Books:       append([]string(nil), f.Books...),
		SearchQuery: f.SearchQuery,
		EventStatus: f.EventStatus,
	}
	if f.MinEdge != nil {
		v := *f.MinEdge
		fs.MinEdge = &v
	}
	return fs
}

// AlertsConfig holds alert thresholds and cadence.
type AlertsConfig struct {
	PollInterval duration `toml:"poll_interval"`
	Cooldown     duration `toml:"cooldown"`
	MinEdge      float64  `toml:"min_edge"`
	// MaxDataAge of zero disables the staleness check.
	MaxDataAge   duration `toml:"max_data_age"`
	SinkTimeout  duration `toml:"sink_timeout"`
	MaxPerMinute int      `toml:"max_per_minute"`
	// DedupBackend is "memory" or "redis".
	DedupBackend string `toml:"dedup_backend"`
}

// StoreConfig bounds the in-memory working set.
type StoreConfig struct {
	MaxAge        duration `toml:"max_age"`
	PruneInterval duration `toml:"prune_interval"`
	AlertLogSize  int      `toml:"alert_log_size"`
}

// NotifyConfig holds alert sink endpoints and credentials.
type NotifyConfig struct {
	WebhookURL        string   `toml:"webhook_url"`
	WebhookSecret     string   `toml:"webhook_secret"`
	Desktop           bool     `toml:"desktop"`
	TelegramAPIBase   string   `toml:"telegram_api_base"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ArchiveConfig holds S3-compatible object storage parameters.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	FlushInterval  duration `toml:"flush_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimitPerSec of zero disables per-client limiting.
	RateLimitPerSec float64 `toml:"rate_limit_per_sec"`
	RateLimitBurst  int     `toml:"rate_limit_burst"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Stream: StreamConfig{
			HeartbeatInterval:    duration{30 * time.Second},
			HandshakeTimeout:     duration{15 * time.Second},
			MaxReconnectAttempts: 10,
			BackoffBase:          duration{time.Second},
			BackoffGrowth:        1.5,
			BackoffJitter:        duration{time.Second},
			BackoffCap:           duration{30 * time.Second},
		},
		Rest: RestConfig{
			Timeout:        duration{15 * time.Second},
			RatePerSec:     2,
			BootstrapLimit: 500,
		},
		Alerts: AlertsConfig{
			PollInterval: duration{5 * time.Second},
			Cooldown:     duration{5 * time.Minute},
			MinEdge:      0.02,
			MaxDataAge:   duration{2 * time.Minute},
			SinkTimeout:  duration{10 * time.Second},
			MaxPerMinute: 30,
			DedupBackend: "memory",
		},
		Store: StoreConfig{
			MaxAge:        duration{30 * time.Minute},
			PruneInterval: duration{time.Minute},
			AlertLogSize:  500,
		},
		Notify: NotifyConfig{
			TelegramAPIBase: "https://api.telegram.org",
			Events:          []string{"alert", "stream_failed", "stream_recovered"},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "oddsync",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "oddsync",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Archive: ArchiveConfig{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "oddsync-alerts",
			ForcePathStyle: true,
			FlushInterval:  duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerSec: 20,
			RateLimitBurst:  40,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"stream": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for missing or invalid values. Every problem is
// reported as a *domain.ConfigError, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &domain.ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)})
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("mode", "unknown mode %q (valid: full, stream)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("log_level", "unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Stream. The URL has no fallback.
	if strings.TrimSpace(c.Stream.URL) == "" {
		add("stream.url", "must be set")
	} else if !strings.HasPrefix(c.Stream.URL, "ws://") && !strings.HasPrefix(c.Stream.URL, "wss://") {
		add("stream.url", "must use ws:// or wss://, got %q", c.Stream.URL)
	}
	if c.Stream.MaxReconnectAttempts < 1 {
		add("stream.max_reconnect_attempts", "must be >= 1")
	}
	if c.Stream.BackoffGrowth < 1 {
		add("stream.backoff_growth", "must be >= 1")
	}
	if c.Stream.BackoffCap.Duration < c.Stream.BackoffBase.Duration {
		add("stream.backoff_cap", "must not be below backoff_base")
	}

	// Filters
	if strings.TrimSpace(c.Filters.Sport) == "" {
		add("filters.sport", "must be set")
	}

	// Alerts
	if c.Alerts.PollInterval.Duration <= 0 {
		add("alerts.poll_interval", "must be > 0")
	}
	if c.Alerts.Cooldown.Duration <= 0 {
		add("alerts.cooldown", "must be > 0")
	}
	switch c.Alerts.DedupBackend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			add("alerts.dedup_backend", "redis backend requires redis.enabled")
		}
	default:
		add("alerts.dedup_backend", "unknown backend %q (valid: memory, redis)", c.Alerts.DedupBackend)
	}

	// Store
	if c.Store.MaxAge.Duration < 0 {
		add("store.max_age", "must be >= 0")
	}
	if c.Store.MaxAge.Duration > 0 && c.Store.PruneInterval.Duration <= 0 {
		add("store.prune_interval", "must be > 0 when max_age is set")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify.telegram", "telegram_token and telegram_chat_id must be set together")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis.addr", "must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis.pool_size", "must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres.host", "must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres.port", "must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres.database", "must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres.pool_max_conns", "must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres.pool_min_conns", "must not exceed pool_max_conns")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			add("archive.bucket", "must not be empty")
		}
		if c.Archive.Region == "" {
			add("archive.region", "must not be empty")
		}
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server.port", "must be 1-65535, got %d", c.Server.Port)
	}

	return errors.Join(errs...)
}
