package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/oddsync/internal/alerts"
	s3blob "github.com/alanyoungcy/oddsync/internal/blob/s3"
	"github.com/alanyoungcy/oddsync/internal/cache/redis"
	"github.com/alanyoungcy/oddsync/internal/config"
	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/engine"
	"github.com/alanyoungcy/oddsync/internal/notify"
	"github.com/alanyoungcy/oddsync/internal/platform/oddsapi"
	"github.com/alanyoungcy/oddsync/internal/router"
	"github.com/alanyoungcy/oddsync/internal/server/handler"
	"github.com/alanyoungcy/oddsync/internal/server/ws"
	"github.com/alanyoungcy/oddsync/internal/store/memory"
	"github.com/alanyoungcy/oddsync/internal/store/postgres"
	"github.com/alanyoungcy/oddsync/internal/stream"
	"github.com/alanyoungcy/oddsync/internal/subscription"
)

// Dependencies bundles everything the modes run. It is built by Wire and torn
// down by the returned cleanup function.
type Dependencies struct {
	Stream   *stream.Client
	Odds     *memory.OddsStore
	AlertLog *memory.AlertLog
	Alerts   *alerts.Engine
	Engine   *engine.Engine
	Notifier *notify.Notifier

	// Optional, nil when the backing service is disabled.
	Bus      domain.SignalBus
	History  *postgres.AlertStore
	Audit    domain.AuditStore
	Archiver *s3blob.Archiver
	Hub      *ws.Hub
	Tail     *redis.AlertPublisher

	// Backends reported by the health check, keyed by name.
	Checks map[string]handler.Pinger
}

// needsHub reports whether the mode serves dashboards.
func needsHub(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Mode, "full") && cfg.Server.Enabled
}

// Wire constructs the session and its optional backends from cfg and returns
// a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}
	var dedup domain.CooldownSet = alerts.NewCooldownSet(cfg.Alerts.Cooldown.Duration)
	var publishers []engine.StatusPublisher
	var localSinks []alerts.Sink

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient

		if cfg.Alerts.DedupBackend == "redis" {
			dedup = redis.NewCooldown(redisClient, cfg.Alerts.Cooldown.Duration)
		}
		bus := redis.NewSignalBus(redisClient)
		deps.Bus = bus
		pub := redis.NewAlertPublisher(bus)
		deps.Tail = pub
		localSinks = append(localSinks, pub)
		publishers = append(publishers, pub)
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Checks["postgres"] = pgClient

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.History = postgres.NewAlertStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		localSinks = append(localSinks, deps.History)
	}

	// --- S3 alert archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.ArchiverConfig{
			FlushInterval: cfg.Archive.FlushInterval.Duration,
		}, logger)
		localSinks = append(localSinks, deps.Archiver)
	}

	// --- Notifications ---
	var senders []notify.Sender
	var externalSinks []alerts.Sink
	if cfg.Notify.WebhookURL != "" {
		wh := notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret)
		senders = append(senders, wh)
		externalSinks = append(externalSinks, wh)
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		tg := notify.NewTelegramSender(cfg.Notify.TelegramAPIBase, cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		senders = append(senders, tg)
		externalSinks = append(externalSinks, notify.SenderSink{Sender: tg})
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		dc := notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL)
		senders = append(senders, dc)
		externalSinks = append(externalSinks, notify.SenderSink{Sender: dc})
	}
	if cfg.Notify.Desktop {
		desk := notify.NewDesktopSender()
		senders = append(senders, desk)
		externalSinks = append(externalSinks, notify.SenderSink{Sender: desk})
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Session ---
	deps.Stream = stream.New(stream.Config{
		URL:               cfg.Stream.URL,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval.Duration,
		HandshakeTimeout:  cfg.Stream.HandshakeTimeout.Duration,
		MaxAttempts:       cfg.Stream.MaxReconnectAttempts,
		Backoff: stream.BackoffPolicy{
			Base:      cfg.Stream.BackoffBase.Duration,
			Growth:    cfg.Stream.BackoffGrowth,
			JitterMax: cfg.Stream.BackoffJitter.Duration,
			Cap:       cfg.Stream.BackoffCap.Duration,
		},
	}, logger)
	deps.Odds = memory.NewOddsStore()
	deps.AlertLog = memory.NewAlertLog(cfg.Store.AlertLogSize)

	if needsHub(cfg) {
		hubCfg := ws.Config{Snapshot: deps.Stream.Status}
		if deps.Bus != nil {
			hubCfg.Bus = deps.Bus
			hubCfg.AlertChannel = redis.ChannelAlerts
			hubCfg.StatusChannel = redis.ChannelStatus
		}
		deps.Hub = ws.NewHub(hubCfg, logger)
		if deps.Bus == nil {
			localSinks = append(localSinks, deps.Hub)
			publishers = append(publishers, deps.Hub)
		}
	}

	deps.Alerts = alerts.NewEngine(alerts.Config{
		PollInterval: cfg.Alerts.PollInterval.Duration,
		Cooldown:     cfg.Alerts.Cooldown.Duration,
		MinEdge:      cfg.Alerts.MinEdge,
		MaxDataAge:   cfg.Alerts.MaxDataAge.Duration,
		SinkTimeout:  cfg.Alerts.SinkTimeout.Duration,
		MaxPerMinute: cfg.Alerts.MaxPerMinute,
	}, deps.Odds, dedup, logger)
	deps.Alerts.AddLocalSink(deps.AlertLog)
	for _, s := range localSinks {
		deps.Alerts.AddLocalSink(s)
	}
	for _, s := range externalSinks {
		deps.Alerts.AddSink(s)
	}

	var boot engine.Bootstrapper
	if cfg.Rest.BaseURL != "" {
		boot = oddsapi.New(oddsapi.Config{
			BaseURL:    cfg.Rest.BaseURL,
			APIKey:     cfg.Rest.APIKey,
			Timeout:    cfg.Rest.Timeout.Duration,
			RatePerSec: cfg.Rest.RatePerSec,
		}, logger)
	}

	deps.Engine = engine.New(engine.Config{
		MaxAge:         cfg.Store.MaxAge.Duration,
		PruneInterval:  cfg.Store.PruneInterval.Duration,
		BootstrapLimit: cfg.Rest.BootstrapLimit,
	}, engine.Deps{
		Transport:  deps.Stream,
		Router:     router.New(deps.Odds, deps.Stream, logger),
		Store:      deps.Odds,
		Controller: subscription.NewController(deps.Stream, cfg.Filters.FilterSet(), logger),
		Alerts:     deps.Alerts,
		Bootstrap:  boot,
		Notifier:   deps.Notifier,
		Audit:      deps.Audit,
		Publishers: publishers,
	}, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("redis", deps.Bus != nil),
		slog.Bool("postgres", deps.History != nil),
		slog.Bool("archive", deps.Archiver != nil),
		slog.Int("external_sinks", len(externalSinks)),
	)
	return deps, cleanup, nil
}
