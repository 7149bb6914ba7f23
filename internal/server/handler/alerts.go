package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// AlertLog is the in-app alert list.
type AlertLog interface {
	List(limit int) []domain.AlertRecord
	Dismiss(id string) error
}

// AlertHistory is the durable alert log.
type AlertHistory interface {
	MarkDismissed(ctx context.Context, id string) error
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.AlertRecord, error)
}

// AlertTail is the recent alert stream shared across instances.
type AlertTail interface {
	Recent(ctx context.Context, n int64) ([]domain.AlertRecord, error)
}

// AlertHandler serves alert endpoints. history and tail may be nil.
type AlertHandler struct {
	log     AlertLog
	history AlertHistory
	tail    AlertTail
	logger  *slog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(log AlertLog, history AlertHistory, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{log: log, history: history, logger: logger.With(slog.String("handler", "alerts"))}
}

// WithTail enables GET /api/alerts/recent.
func (h *AlertHandler) WithTail(tail AlertTail) *AlertHandler {
	h.tail = tail
	return h
}

// ListAlerts returns the in-app alert log, newest first.
// GET /api/alerts?limit=50
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.log.List(queryInt(r, "limit", 50, 500))
	if alerts == nil {
		alerts = []domain.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// Dismiss marks an in-app alert as read.
// POST /api/alerts/{id}/dismiss
func (h *AlertHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.log.Dismiss(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to dismiss alert")
		return
	}
	if h.history != nil {
		if err := h.history.MarkDismissed(r.Context(), id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "dismiss in history failed",
				slog.String("alert_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "dismissed": true})
}

// History returns persisted alerts.
// GET /api/alerts/history?limit=&offset=&since=&until=
func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "alert history is not enabled")
		return
	}
	opts := parseListOpts(r)
	alerts, err := h.history.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list alert history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list alert history")
		return
	}
	if alerts == nil {
		alerts = []domain.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// Recent returns the newest alerts from the shared stream, newest first.
// Unlike ListAlerts it includes alerts raised by other instances.
// GET /api/alerts/recent?limit=50
func (h *AlertHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.tail == nil {
		writeError(w, http.StatusServiceUnavailable, "alert stream is not enabled")
		return
	}
	alerts, err := h.tail.Recent(r.Context(), int64(queryInt(r, "limit", 50, 500)))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read alert stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read alert stream")
		return
	}
	if alerts == nil {
		alerts = []domain.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}
