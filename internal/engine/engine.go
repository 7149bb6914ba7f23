// Package engine runs the odds session loop. One goroutine owns the order
// of everything that touches the board: transport events, alert polls,
// pruning and filter changes are handled one at a time, in arrival order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/oddsync/internal/alerts"
	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/notify"
	"github.com/alanyoungcy/oddsync/internal/oddsmath"
	"github.com/alanyoungcy/oddsync/internal/platform/oddsapi"
	"github.com/alanyoungcy/oddsync/internal/store/memory"
	"github.com/alanyoungcy/oddsync/internal/stream"
	"github.com/alanyoungcy/oddsync/internal/subscription"
)

// Transport is the stream connection driven by the loop.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Events() <-chan stream.Event
	Status() domain.ConnectionState
}

// FrameHandler applies inbound frames.
type FrameHandler interface {
	Handle(env domain.Envelope, receivedAt time.Time) error
}

// Bootstrapper fetches the current snapshot.
type Bootstrapper interface {
	FetchCurrent(ctx context.Context, q oddsapi.Query) ([]domain.OutcomeRecord, error)
}

// StatusPublisher is told about every connection state change.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, st domain.ConnectionState) error
}

// Config tunes the loop.
type Config struct {
	// MaxAge of zero disables pruning.
	MaxAge         time.Duration
	PruneInterval  time.Duration
	BootstrapLimit int
}

// Deps are the collaborators of the loop. Bootstrap, Notifier, Audit and
// Publishers are optional.
type Deps struct {
	Transport  Transport
	Router     FrameHandler
	Store      *memory.OddsStore
	Controller *subscription.Controller
	Alerts     *alerts.Engine
	Bootstrap  Bootstrapper
	Notifier   *notify.Notifier
	Audit      domain.AuditStore
	Publishers []StatusPublisher
}

// Snapshot is a point-in-time view of the session for status endpoints.
type Snapshot struct {
	Connection domain.ConnectionState `json:"connection"`
	Records    int                    `json:"records"`
	Filters    domain.FilterSet       `json:"filters"`
}

type filterRequest struct {
	filters domain.FilterSet
	reply   chan error
}

// Engine is the session loop.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	filterCh chan filterRequest

	// loop-owned
	dropped bool

	notifyWG sync.WaitGroup
}

// New builds an Engine.
func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Minute
	}
	return &Engine{
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With(slog.String("component", "engine")),
		now:      time.Now,
		filterCh: make(chan filterRequest),
	}
}

// Status reports the current connection, board size and filters.
func (e *Engine) Status() Snapshot {
	return Snapshot{
		Connection: e.deps.Transport.Status(),
		Records:    e.deps.Store.Len(),
		Filters:    e.deps.Controller.Filters(),
	}
}

// Filters returns the active filter set.
func (e *Engine) Filters() domain.FilterSet { return e.deps.Controller.Filters() }

// UpdateFilters hands a new filter set to the loop and waits for it to be
// applied. Validation errors come back unchanged.
func (e *Engine) UpdateFilters(ctx context.Context, f domain.FilterSet) error {
	if err := f.Validate(); err != nil {
		return err
	}
	req := filterRequest{filters: f, reply: make(chan error, 1)}
	select {
	case e.filterCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run seeds the board, connects and processes events until ctx is done.
// A failed initial dial is not fatal: the transport keeps retrying.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "session loop started")
	defer e.logger.Info("session loop stopped")

	e.bootstrap(ctx)

	if err := e.deps.Transport.Connect(ctx); err != nil {
		if errors.Is(err, domain.ErrClientClosed) {
			return fmt.Errorf("engine: connect: %w", err)
		}
		e.logger.WarnContext(ctx, "initial connect failed, retrying in background",
			slog.String("error", err.Error()),
		)
	}

	pollTicker := time.NewTicker(e.deps.Alerts.PollInterval())
	defer pollTicker.Stop()
	pruneTicker := time.NewTicker(e.cfg.PruneInterval)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()

		case ev := <-e.deps.Transport.Events():
			e.handleEvent(ctx, ev)

		case <-pollTicker.C:
			e.deps.Alerts.Poll(ctx)

		case <-pruneTicker.C:
			if e.cfg.MaxAge > 0 {
				if n := e.deps.Store.Prune(e.cfg.MaxAge, e.now()); n > 0 {
					e.logger.DebugContext(ctx, "pruned stale records", slog.Int("count", n))
				}
			}

		case req := <-e.filterCh:
			req.reply <- e.applyFilters(ctx, req.filters)
		}
	}
}

func (e *Engine) bootstrap(ctx context.Context) {
	if e.deps.Bootstrap == nil {
		return
	}
	q := oddsapi.QueryFromFilters(e.deps.Controller.Filters(), e.cfg.BootstrapLimit)
	recs, err := e.deps.Bootstrap.FetchCurrent(ctx, q)
	if err != nil {
		e.logger.WarnContext(ctx, "bootstrap failed, starting with an empty board",
			slog.String("error", err.Error()),
		)
		return
	}

	now := e.now()
	valid := recs[:0]
	for i := range recs {
		if err := oddsmath.Normalize(&recs[i], now); err != nil {
			e.logger.DebugContext(ctx, "bootstrap record skipped", slog.String("error", err.Error()))
			continue
		}
		valid = append(valid, recs[i])
	}
	e.deps.Store.UpsertBatch(valid)
	// seeded records are the starting board, not changes
	e.deps.Alerts.Rebase(now)
	e.logger.InfoContext(ctx, "board seeded", slog.Int("records", len(valid)))
}

func (e *Engine) handleEvent(ctx context.Context, ev stream.Event) {
	switch ev.Kind {
	case stream.EventOpen:
		if err := e.deps.Controller.OnOpen(); err != nil {
			e.logger.WarnContext(ctx, "subscribe on open failed", slog.String("error", err.Error()))
		}
		e.audit(ctx, domain.AuditStreamOpened, nil)
		if e.dropped {
			e.dropped = false
			e.notify(ctx, notify.EventStreamRecovered, "Odds stream recovered", "Connection re-established and subscription restored.")
		}
		e.publishStatus(ctx)

	case stream.EventFrame:
		if err := e.deps.Router.Handle(ev.Frame, ev.ReceivedAt); err != nil {
			var perr *domain.ParseError
			if !errors.As(err, &perr) {
				e.logger.WarnContext(ctx, "frame handling failed", slog.String("error", err.Error()))
			}
		}

	case stream.EventClosed:
		e.dropped = true
		e.audit(ctx, domain.AuditStreamClosed, map[string]any{"error": errString(ev.Err)})
		e.publishStatus(ctx)

	case stream.EventFailed:
		e.dropped = true
		st := e.deps.Transport.Status()
		e.logger.ErrorContext(ctx, "odds stream failed",
			slog.Int("attempts", st.ReconnectAttempts),
			slog.String("error", errString(ev.Err)),
		)
		e.audit(ctx, domain.AuditStreamFailed, map[string]any{
			"attempts": st.ReconnectAttempts,
			"error":    errString(ev.Err),
		})
		e.notify(ctx, notify.EventStreamFailed, "Odds stream failed",
			fmt.Sprintf("Gave up after %d reconnect attempts: %s", st.ReconnectAttempts, errString(ev.Err)))
		e.publishStatus(ctx)
	}
}

func (e *Engine) applyFilters(ctx context.Context, f domain.FilterSet) error {
	if err := e.deps.Controller.Apply(f); err != nil {
		return err
	}
	e.audit(ctx, domain.AuditFilterChange, map[string]any{
		"sport":   f.Sport,
		"markets": f.Markets,
		"books":   f.Books,
	})
	return nil
}

func (e *Engine) shutdown() {
	if err := e.deps.Controller.Clear(); err != nil && !errors.Is(err, domain.ErrNotOpen) {
		e.logger.Warn("unsubscribe on shutdown failed", slog.String("error", err.Error()))
	}
	if err := e.deps.Transport.Disconnect(); err != nil {
		e.logger.Warn("disconnect failed", slog.String("error", err.Error()))
	}
	e.deps.Alerts.Wait()
	e.notifyWG.Wait()
}

func (e *Engine) audit(ctx context.Context, event string, detail map[string]any) {
	if e.deps.Audit == nil {
		return
	}
	if err := e.deps.Audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// notify sends an ops notification off the loop goroutine.
func (e *Engine) notify(ctx context.Context, event, title, msg string) {
	if e.deps.Notifier == nil || !e.deps.Notifier.Allows(event) {
		return
	}
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := e.deps.Notifier.Notify(nctx, event, title, msg); err != nil {
			e.logger.Warn("ops notification failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (e *Engine) publishStatus(ctx context.Context) {
	st := e.deps.Transport.Status()
	for _, p := range e.deps.Publishers {
		if err := p.PublishStatus(ctx, st); err != nil {
			e.logger.WarnContext(ctx, "status publish failed", slog.String("error", err.Error()))
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
