// Package router classifies inbound stream frames and applies their side
// effects to the odds store and the connection state.
package router

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/oddsmath"
)

// OddsWriter receives normalized records.
type OddsWriter interface {
	Upsert(rec domain.OutcomeRecord)
}

// Liveness receives heartbeat receipts and remote errors.
type Liveness interface {
	RecordHeartbeat(at time.Time)
	ReportRemoteError(msg string)
}

// Router dispatches frames by type.
type Router struct {
	store    OddsWriter
	liveness Liveness
	logger   *slog.Logger
}

// New returns a Router writing to store and reporting to liveness.
func New(store OddsWriter, liveness Liveness, logger *slog.Logger) *Router {
	return &Router{
		store:    store,
		liveness: liveness,
		logger:   logger.With(slog.String("component", "router")),
	}
}

// Handle applies one frame received at receivedAt. Malformed payloads are
// returned as *domain.ParseError after being logged; the caller keeps going.
func (r *Router) Handle(env domain.Envelope, receivedAt time.Time) error {
	switch env.Type {
	case domain.FrameOddsUpdate:
		var rec domain.OutcomeRecord
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			return r.drop(env, err)
		}
		if err := oddsmath.Normalize(&rec, receivedAt); err != nil {
			return r.drop(env, err)
		}
		r.store.Upsert(rec)

	case domain.FrameHeartbeat:
		r.liveness.RecordHeartbeat(receivedAt)

	case domain.FrameError:
		msg := errorMessage(env.Payload)
		r.logger.Error("stream reported error", slog.String("message", msg))
		r.liveness.ReportRemoteError(msg)

	case domain.FrameSubscribe, domain.FrameUnsubscribe:
		r.logger.Warn("unexpected inbound control frame", slog.String("type", env.Type))

	default:
		r.logger.Debug("ignoring unknown frame type", slog.String("type", env.Type))
	}
	return nil
}

func (r *Router) drop(env domain.Envelope, err error) error {
	perr := &domain.ParseError{Raw: env.Payload, Err: err}
	r.logger.Warn("dropping malformed payload",
		slog.String("type", env.Type),
		slog.String("error", perr.Error()),
	)
	return perr
}

// errorMessage accepts either {"message": "..."} or a bare JSON string.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unspecified stream error"
	}
	var p domain.ErrorPayload
	if err := json.Unmarshal(raw, &p); err == nil && p.Message != "" {
		if p.Code != "" {
			return p.Code + ": " + p.Message
		}
		return p.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	return string(raw)
}
