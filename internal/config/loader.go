package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ODDSYNC_"

// Load merges the TOML file at path (skipped when path is empty) on top of
// the defaults, then applies ODDSYNC_* environment overrides. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose environment variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Stream ──
	setStr(&cfg.Stream.URL, "STREAM_URL")
	setDuration(&cfg.Stream.HeartbeatInterval, "STREAM_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Stream.HandshakeTimeout, "STREAM_HANDSHAKE_TIMEOUT")
	setInt(&cfg.Stream.MaxReconnectAttempts, "STREAM_MAX_RECONNECT_ATTEMPTS")
	setDuration(&cfg.Stream.BackoffBase, "STREAM_BACKOFF_BASE")
	setFloat64(&cfg.Stream.BackoffGrowth, "STREAM_BACKOFF_GROWTH")
	setDuration(&cfg.Stream.BackoffJitter, "STREAM_BACKOFF_JITTER")
	setDuration(&cfg.Stream.BackoffCap, "STREAM_BACKOFF_CAP")

	// ── Rest ──
	setStr(&cfg.Rest.BaseURL, "REST_BASE_URL")
	setStr(&cfg.Rest.APIKey, "REST_API_KEY")
	setDuration(&cfg.Rest.Timeout, "REST_TIMEOUT")
	setFloat64(&cfg.Rest.RatePerSec, "REST_RATE_PER_SEC")
	setInt(&cfg.Rest.BootstrapLimit, "REST_BOOTSTRAP_LIMIT")

	// ── Filters ──
	setStr(&cfg.Filters.Sport, "FILTERS_SPORT")
	setStringSlice(&cfg.Filters.Markets, "FILTERS_MARKETS")
	setStringSlice(&cfg.Filters.Books, "FILTERS_BOOKS")
	setFloat64Ptr(&cfg.Filters.MinEdge, "FILTERS_MIN_EDGE")
	setStr(&cfg.Filters.SearchQuery, "FILTERS_SEARCH_QUERY")
	setStr(&cfg.Filters.EventStatus, "FILTERS_EVENT_STATUS")

	// ── Alerts ──
	setDuration(&cfg.Alerts.PollInterval, "ALERTS_POLL_INTERVAL")
	setDuration(&cfg.Alerts.Cooldown, "ALERTS_COOLDOWN")
	setFloat64(&cfg.Alerts.MinEdge, "ALERTS_MIN_EDGE")
	setDuration(&cfg.Alerts.MaxDataAge, "ALERTS_MAX_DATA_AGE")
	setDuration(&cfg.Alerts.SinkTimeout, "ALERTS_SINK_TIMEOUT")
	setInt(&cfg.Alerts.MaxPerMinute, "ALERTS_MAX_PER_MINUTE")
	setStr(&cfg.Alerts.DedupBackend, "ALERTS_DEDUP_BACKEND")

	// ── Store ──
	setDuration(&cfg.Store.MaxAge, "STORE_MAX_AGE")
	setDuration(&cfg.Store.PruneInterval, "STORE_PRUNE_INTERVAL")
	setInt(&cfg.Store.AlertLogSize, "STORE_ALERT_LOG_SIZE")

	// ── Notify ──
	setStr(&cfg.Notify.WebhookURL, "NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "NOTIFY_WEBHOOK_SECRET")
	setBool(&cfg.Notify.Desktop, "NOTIFY_DESKTOP")
	setStr(&cfg.Notify.TelegramAPIBase, "NOTIFY_TELEGRAM_API_BASE")
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "ARCHIVE_FORCE_PATH_STYLE")
	setDuration(&cfg.Archive.FlushInterval, "ARCHIVE_FLUSH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimitPerSec, "SERVER_RATE_LIMIT_PER_SEC")
	setInt(&cfg.Server.RateLimitBurst, "SERVER_RATE_LIMIT_BURST")

	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the prefixed
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func lookup(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func setStr(dst *string, key string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setFloat64Ptr(dst **float64, key string) {
	if v := lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = &f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := lookup(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
