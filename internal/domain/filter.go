package domain

import (
	"errors"
	"slices"
)

// FilterSet is the user-selected view of the odds board.
type FilterSet struct {
	Sport       string   `json:"sport"`
	Markets     []string `json:"markets,omitempty"`
	Books       []string `json:"books,omitempty"`
	MinEdge     *float64 `json:"min_edge,omitempty"`
	SearchQuery string   `json:"search_query,omitempty"`
	EventStatus string   `json:"event_status,omitempty"`
}

// Validate reports whether the filter set can drive a subscription.
func (f FilterSet) Validate() error {
	if f.Sport == "" {
		return errors.New("filter: sport is required")
	}
	return nil
}

// Clone returns a deep copy so callers can hand filters across goroutines.
func (f FilterSet) Clone() FilterSet {
	out := f
	out.Markets = slices.Clone(f.Markets)
	out.Books = slices.Clone(f.Books)
	if f.MinEdge != nil {
		v := *f.MinEdge
		out.MinEdge = &v
	}
	return out
}
