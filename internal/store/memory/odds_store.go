// Package memory holds the in-process odds board and in-app alert log.
package memory

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// OddsStore is the convergent map of outcome identity to the latest record.
// A newer record for an identity replaces the old one wholesale, keyed by
// arrival order. Iteration follows first-insertion order.
type OddsStore struct {
	mu      sync.RWMutex
	records []domain.OutcomeRecord
	index   map[domain.OutcomeKey]int
}

// NewOddsStore returns an empty store.
func NewOddsStore() *OddsStore {
	return &OddsStore{index: make(map[domain.OutcomeKey]int)}
}

// Upsert inserts rec or replaces the record with the same identity.
func (s *OddsStore) Upsert(rec domain.OutcomeRecord) {
	key := rec.Key()
	s.mu.Lock()
	if i, ok := s.index[key]; ok {
		s.records[i] = rec
	} else {
		s.index[key] = len(s.records)
		s.records = append(s.records, rec)
	}
	s.mu.Unlock()
}

// UpsertBatch applies recs in order under a single lock.
func (s *OddsStore) UpsertBatch(recs []domain.OutcomeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		key := rec.Key()
		if i, ok := s.index[key]; ok {
			s.records[i] = rec
			continue
		}
		s.index[key] = len(s.records)
		s.records = append(s.records, rec)
	}
}

// Get returns the record for key.
func (s *OddsStore) Get(key domain.OutcomeKey) (domain.OutcomeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[key]
	if !ok {
		return domain.OutcomeRecord{}, false
	}
	return s.records[i], true
}

// Len returns the number of identities held.
func (s *OddsStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All returns a copy of every record in insertion order.
func (s *OddsStore) All() []domain.OutcomeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Since returns records received at or after t.
func (s *OddsStore) Since(t time.Time) []domain.OutcomeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OutcomeRecord
	for _, r := range s.records {
		if !r.ReceivedAt.Before(t) {
			out = append(out, r)
		}
	}
	return out
}

// FilteredView evaluates f against the current board. Nothing is cached.
func (s *OddsStore) FilteredView(f domain.FilterSet) []domain.OutcomeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OutcomeRecord, 0, len(s.records))
	for _, r := range s.records {
		if Matches(r, f) {
			out = append(out, r)
		}
	}
	return out
}

// TopEdges is TopEdges over the filtered view.
func (s *OddsStore) TopEdges(f domain.FilterSet, n int) []domain.OutcomeRecord {
	return TopEdges(s.FilteredView(f), n)
}

// Prune drops records whose data age at now exceeds maxAge and returns how
// many were removed. Survivors keep their relative order.
func (s *OddsStore) Prune(maxAge time.Duration, now time.Time) int {
	if maxAge <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if r.DataAge(now) > maxAge {
			delete(s.index, r.Key())
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0
	}
	clear(s.records[len(kept):])
	s.records = kept
	for i, r := range s.records {
		s.index[r.Key()] = i
	}
	return removed
}

// Matches applies the filter steps in order: sport, market, book, edge
// floor, free text, event status.
func Matches(r domain.OutcomeRecord, f domain.FilterSet) bool {
	if r.SportKey != f.Sport {
		return false
	}
	if len(f.Markets) > 0 && !slices.Contains(f.Markets, r.MarketKey) {
		return false
	}
	if len(f.Books) > 0 && !slices.Contains(f.Books, r.BookKey) {
		return false
	}
	if f.MinEdge != nil && (r.Edge == nil || *r.Edge < *f.MinEdge) {
		return false
	}
	if q := strings.TrimSpace(f.SearchQuery); q != "" {
		q = strings.ToLower(q)
		if !strings.Contains(strings.ToLower(r.HomeTeam), q) &&
			!strings.Contains(strings.ToLower(r.AwayTeam), q) &&
			!strings.Contains(strings.ToLower(r.OutcomeName), q) {
			return false
		}
	}
	if f.EventStatus != "" && !strings.EqualFold(r.EventStatus, f.EventStatus) {
		return false
	}
	return true
}

// TopEdges keeps records with a positive edge, sorts them by edge
// descending and truncates to n. Ties keep their input order.
func TopEdges(view []domain.OutcomeRecord, n int) []domain.OutcomeRecord {
	out := make([]domain.OutcomeRecord, 0, len(view))
	for _, r := range view {
		if r.Edge != nil && *r.Edge > 0 {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.OutcomeRecord) int {
		return cmp.Compare(*b.Edge, *a.Edge)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
