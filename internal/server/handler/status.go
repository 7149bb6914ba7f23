package handler

import (
	"net/http"

	"github.com/alanyoungcy/oddsync/internal/engine"
)

// StatusSource reports the session snapshot.
type StatusSource interface {
	Status() engine.Snapshot
}

// UnreadCounter counts undismissed in-app alerts.
type UnreadCounter interface {
	Undismissed() int
}

// StatusHandler serves the connection status for the dashboard.
type StatusHandler struct {
	mode   string
	source StatusSource
	unread UnreadCounter
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, source StatusSource, unread UnreadCounter) *StatusHandler {
	return &StatusHandler{mode: mode, source: source, unread: unread}
}

// GetStatus responds with the stream connection state, board size and active
// filters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":          h.mode,
		"connection":    snap.Connection,
		"records":       snap.Records,
		"filters":       snap.Filters,
		"unread_alerts": h.unread.Undismissed(),
	})
}
