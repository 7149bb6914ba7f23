package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// FilterUpdater changes the subscription filters.
type FilterUpdater interface {
	Filters() domain.FilterSet
	UpdateFilters(ctx context.Context, f domain.FilterSet) error
}

// FilterHandler serves the active filter set.
type FilterHandler struct {
	filters FilterUpdater
	logger  *slog.Logger
}

// NewFilterHandler creates a FilterHandler.
func NewFilterHandler(filters FilterUpdater, logger *slog.Logger) *FilterHandler {
	return &FilterHandler{filters: filters, logger: logger.With(slog.String("handler", "filters"))}
}

// GetFilters returns the active filters.
// GET /api/filters
func (h *FilterHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.filters.Filters())
}

// UpdateFilters replaces the active filters and re-subscribes.
// PUT /api/filters
func (h *FilterHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var f domain.FilterSet
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter body")
		return
	}
	if err := f.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.filters.UpdateFilters(r.Context(), f); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "filter update timed out")
			return
		}
		h.logger.ErrorContext(r.Context(), "filter update failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to update filters")
		return
	}
	writeJSON(w, http.StatusOK, h.filters.Filters())
}
