package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// Board is the read side of the odds store.
type Board interface {
	FilteredView(f domain.FilterSet) []domain.OutcomeRecord
	TopEdges(f domain.FilterSet, n int) []domain.OutcomeRecord
}

// ActiveFilters returns the filters the stream is subscribed with.
type ActiveFilters interface {
	Filters() domain.FilterSet
}

// OddsHandler serves board reads.
type OddsHandler struct {
	board   Board
	filters ActiveFilters
	now     func() time.Time
}

// NewOddsHandler creates an OddsHandler.
func NewOddsHandler(board Board, filters ActiveFilters) *OddsHandler {
	return &OddsHandler{board: board, filters: filters, now: time.Now}
}

type oddsResponse struct {
	Records []domain.OutcomeView `json:"records"`
	Count   int                  `json:"count"`
	Filters domain.FilterSet     `json:"filters"`
}

// ListOdds returns the filtered view. Query parameters override the active
// filters field by field.
// GET /api/odds?sport=&market=&book=&min_edge=&q=&status=
func (h *OddsHandler) ListOdds(w http.ResponseWriter, r *http.Request) {
	f, err := h.filtersFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respond(w, h.board.FilteredView(f), f)
}

// TopOdds returns the n highest positive edges in the filtered view.
// GET /api/odds/top?n=10
func (h *OddsHandler) TopOdds(w http.ResponseWriter, r *http.Request) {
	f, err := h.filtersFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n := queryInt(r, "n", 10, 100)
	h.respond(w, h.board.TopEdges(f, n), f)
}

func (h *OddsHandler) respond(w http.ResponseWriter, recs []domain.OutcomeRecord, f domain.FilterSet) {
	now := h.now()
	views := make([]domain.OutcomeView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, rec.ViewAt(now))
	}
	writeJSON(w, http.StatusOK, oddsResponse{Records: views, Count: len(views), Filters: f})
}

func (h *OddsHandler) filtersFromQuery(r *http.Request) (domain.FilterSet, error) {
	f := h.filters.Filters()
	q := r.URL.Query()

	if v := strings.TrimSpace(q.Get("sport")); v != "" {
		f.Sport = v
	}
	if q.Has("market") {
		f.Markets = splitList(q.Get("market"))
	}
	if q.Has("book") {
		f.Books = splitList(q.Get("book"))
	}
	if q.Has("min_edge") {
		v := q.Get("min_edge")
		if v == "" {
			f.MinEdge = nil
		} else {
			e, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return f, errBadMinEdge
			}
			f.MinEdge = &e
		}
	}
	if q.Has("q") {
		f.SearchQuery = q.Get("q")
	}
	if q.Has("status") {
		f.EventStatus = q.Get("status")
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

var errBadMinEdge = errors.New("invalid min_edge parameter")
