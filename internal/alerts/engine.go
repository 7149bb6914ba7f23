// Package alerts turns odds board changes into deduplicated notifications.
// The board is polled on a fixed cadence so bursts of updates coalesce.
package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// Source yields records received at or after a point in time.
type Source interface {
	Since(t time.Time) []domain.OutcomeRecord
}

// Sink delivers one alert. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, alert domain.AlertRecord) error
}

// Config holds the alert thresholds and cadence.
type Config struct {
	PollInterval time.Duration
	Cooldown     time.Duration
	MinEdge      float64
	// MaxDataAge of zero disables the staleness check.
	MaxDataAge   time.Duration
	SinkTimeout  time.Duration
	MaxPerMinute int
}

type sinkEntry struct {
	sink  Sink
	local bool
}

// Engine evaluates newly received records on each Poll.
type Engine struct {
	cfg     Config
	source  Source
	dedup   domain.CooldownSet
	logger  *slog.Logger
	limiter *rate.Limiter
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	sinks    []sinkEntry
	lastPoll time.Time

	wg sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDFunc replaces the alert ID generator.
func WithIDFunc(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// NewEngine returns an engine reading from source. The first poll considers
// records received after construction.
func NewEngine(cfg Config, source Source, dedup domain.CooldownSet, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 10 * time.Second
	}
	e := &Engine{
		cfg:    cfg,
		source: source,
		dedup:  dedup,
		logger: logger.With(slog.String("component", "alerts")),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	if cfg.MaxPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(float64(cfg.MaxPerMinute)/60.0), cfg.MaxPerMinute)
	}
	e.lastPoll = e.now()
	return e
}

// Rebase moves the poll baseline past t so records received at or before t
// are never evaluated. It is used after seeding the board from a snapshot.
func (e *Engine) Rebase(t time.Time) {
	e.mu.Lock()
	if next := t.Add(time.Nanosecond); next.After(e.lastPoll) {
		e.lastPoll = next
	}
	e.mu.Unlock()
}

// PollInterval returns the configured cadence.
func (e *Engine) PollInterval() time.Duration { return e.cfg.PollInterval }

// AddSink registers an external sink. External sinks are subject to the
// per-minute cap.
func (e *Engine) AddSink(s Sink) {
	e.mu.Lock()
	e.sinks = append(e.sinks, sinkEntry{sink: s})
	e.mu.Unlock()
}

// AddLocalSink registers an in-process sink that always receives alerts.
func (e *Engine) AddLocalSink(s Sink) {
	e.mu.Lock()
	e.sinks = append(e.sinks, sinkEntry{sink: s, local: true})
	e.mu.Unlock()
}

// Poll evaluates every record received since the previous poll and
// dispatches alerts for the eligible ones. It returns the alerts fired.
// Sink delivery runs in the background; use Wait to drain it.
func (e *Engine) Poll(ctx context.Context) []domain.AlertRecord {
	now := e.now()
	e.mu.Lock()
	since := e.lastPoll
	e.lastPoll = now
	e.mu.Unlock()

	var fired []domain.AlertRecord
	for _, rec := range e.source.Since(since) {
		if !e.eligible(rec, now) {
			continue
		}
		// Claim before dispatch so the same outcome listed under two markets
		// fires once per poll.
		claimed, err := e.dedup.Claim(ctx, rec.AlertKey(), now)
		if err != nil {
			e.logger.ErrorContext(ctx, "dedup check failed",
				slog.String("key", rec.AlertKey().String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !claimed {
			continue
		}

		alert := domain.NewAlertRecord(e.newID(), rec, now)
		fired = append(fired, alert)
		e.dispatch(ctx, alert)
	}
	if len(fired) > 0 {
		e.logger.InfoContext(ctx, "alerts fired", slog.Int("count", len(fired)))
	}
	return fired
}

// Run polls on the configured cadence until ctx is done, then drains
// in-flight deliveries.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.Wait()
			return ctx.Err()
		case <-ticker.C:
			e.Poll(ctx)
		}
	}
}

// Wait blocks until every in-flight sink delivery has returned.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) eligible(rec domain.OutcomeRecord, now time.Time) bool {
	if rec.Edge == nil || *rec.Edge < e.cfg.MinEdge {
		return false
	}
	if e.cfg.MaxDataAge > 0 && rec.DataAge(now) > e.cfg.MaxDataAge {
		return false
	}
	return true
}

// dispatch fans alert out to every sink on its own goroutine. A failing or
// slow sink never affects the others.
func (e *Engine) dispatch(ctx context.Context, alert domain.AlertRecord) {
	e.mu.Lock()
	sinks := make([]sinkEntry, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.Unlock()

	external := e.limiter == nil || e.limiter.Allow()
	if !external {
		e.logger.WarnContext(ctx, "alert rate cap reached, external sinks skipped",
			slog.String("alert_id", alert.ID),
		)
	}

	for _, entry := range sinks {
		if !entry.local && !external {
			continue
		}
		e.wg.Add(1)
		go func(s Sink) {
			defer e.wg.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SinkTimeout)
			defer cancel()
			if err := s.Deliver(sctx, alert); err != nil {
				serr := &domain.SinkError{Sink: s.Name(), Err: err}
				e.logger.Error("alert delivery failed",
					slog.String("alert_id", alert.ID),
					slog.String("error", serr.Error()),
				)
				return
			}
			e.logger.Debug("alert delivered",
				slog.String("sink", s.Name()),
				slog.String("alert_id", alert.ID),
			)
		}(entry.sink)
	}
}
