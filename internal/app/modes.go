package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/oddsync/internal/server"
	"github.com/alanyoungcy/oddsync/internal/server/handler"
)

// FullMode runs the session loop, the archive flusher and, when enabled, the
// HTTP API with its WebSocket hub.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSession(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	} else {
		a.logger.InfoContext(ctx, "HTTP server disabled")
	}

	return g.Wait()
}

// StreamMode runs only the session loop and its sinks. No HTTP surface.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSession(ctx, g, deps)
	return g.Wait()
}

func (a *App) startSession(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var history handler.AlertHistory
	if deps.History != nil {
		history = deps.History
	}
	var audit handler.AuditLister
	if deps.Audit != nil {
		audit = deps.Audit
	}
	alertHandler := handler.NewAlertHandler(deps.AlertLog, history, a.logger)
	if deps.Tail != nil {
		alertHandler.WithTail(deps.Tail)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerSec: a.cfg.Server.RateLimitPerSec,
		RateLimitBurst:  a.cfg.Server.RateLimitBurst,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(time.Now(), deps.Checks),
		Status:  handler.NewStatusHandler(a.cfg.Mode, deps.Engine, deps.AlertLog),
		Odds:    handler.NewOddsHandler(deps.Odds, deps.Engine),
		Alerts:  alertHandler,
		Filters: handler.NewFilterHandler(deps.Engine, a.logger),
		Audit:   handler.NewAuditHandler(audit, a.logger),
	}, deps.Hub, a.logger)

	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Warn("HTTP server shutdown", slog.String("error", err.Error()))
			return err
		}
		return nil
	})
}
