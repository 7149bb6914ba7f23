package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/store/memory"
)

func ptr[T any](v T) *T { return &v }

func record(event, book, outcome string, edge *float64) domain.OutcomeRecord {
	return domain.OutcomeRecord{
		EventID:     event,
		SportKey:    "basketball_nba",
		MarketKey:   "h2h",
		BookKey:     book,
		OutcomeName: outcome,
		HomeTeam:    "Los Angeles Lakers",
		AwayTeam:    "Boston Celtics",
		Price:       120,
		Edge:        edge,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := memory.NewOddsStore()
	rec := record("e1", "fanduel", "Lakers", ptr(0.02))

	s.Upsert(rec)
	once := s.All()
	s.Upsert(rec)

	assert.Equal(t, once, s.All())
	assert.Equal(t, 1, s.Len())
}

func TestUpsertLastWriteWinsByArrival(t *testing.T) {
	s := memory.NewOddsStore()
	now := time.Now()

	first := record("e1", "fanduel", "Lakers", ptr(0.01))
	first.VendorLastUpdate = now
	second := record("e1", "fanduel", "Lakers", ptr(0.04))
	second.VendorLastUpdate = now.Add(-time.Minute) // older vendor time still wins

	s.Upsert(first)
	s.Upsert(second)

	got, ok := s.Get(first.Key())
	require.True(t, ok)
	require.NotNil(t, got.Edge)
	assert.Equal(t, 0.04, *got.Edge)
}

func TestPointIsPartOfIdentity(t *testing.T) {
	s := memory.NewOddsStore()
	a := record("e1", "dk", "Over", nil)
	a.MarketKey = "totals"
	a.Point = ptr(220.5)
	b := a
	b.Point = ptr(221.5)
	c := a
	c.Point = nil

	s.Upsert(a)
	s.Upsert(b)
	s.Upsert(c)
	assert.Equal(t, 3, s.Len())
}

func TestFilteredViewEdgeAndSport(t *testing.T) {
	s := memory.NewOddsStore()
	s.Upsert(record("e1", "fanduel", "Lakers", ptr(0.03)))

	pass := domain.FilterSet{Sport: "basketball_nba", MinEdge: ptr(0.02)}
	floorTooHigh := domain.FilterSet{Sport: "basketball_nba", MinEdge: ptr(0.05)}
	wrongSport := domain.FilterSet{Sport: "football_nfl", MinEdge: ptr(0.0)}

	assert.Len(t, s.FilteredView(pass), 1)
	assert.Empty(t, s.FilteredView(floorTooHigh))
	assert.Empty(t, s.FilteredView(wrongSport))
}

func TestFilteredViewSteps(t *testing.T) {
	s := memory.NewOddsStore()
	noEdge := record("e1", "fanduel", "Lakers", nil)
	spread := record("e2", "draftkings", "Celtics", ptr(0.01))
	spread.MarketKey = "spreads"
	spread.Point = ptr(-3.5)
	live := record("e3", "pinnacle", "Draw", ptr(0.05))
	live.HomeTeam, live.AwayTeam = "Arsenal", "Chelsea"
	live.EventStatus = "live"
	s.Upsert(noEdge)
	s.Upsert(spread)
	s.Upsert(live)

	tests := []struct {
		name   string
		filter domain.FilterSet
		want   []string
	}{
		{"sport only", domain.FilterSet{Sport: "basketball_nba"}, []string{"e1", "e2", "e3"}},
		{"market set", domain.FilterSet{Sport: "basketball_nba", Markets: []string{"spreads"}}, []string{"e2"}},
		{"book set", domain.FilterSet{Sport: "basketball_nba", Books: []string{"fanduel", "pinnacle"}}, []string{"e1", "e3"}},
		{"null edge fails floor", domain.FilterSet{Sport: "basketball_nba", MinEdge: ptr(0.0)}, []string{"e2", "e3"}},
		{"search home team", domain.FilterSet{Sport: "basketball_nba", SearchQuery: "LAKERS"}, []string{"e1", "e2"}},
		{"search outcome", domain.FilterSet{Sport: "basketball_nba", SearchQuery: "draw"}, []string{"e3"}},
		{"event status", domain.FilterSet{Sport: "basketball_nba", EventStatus: "live"}, []string{"e3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, r := range s.FilteredView(tt.filter) {
				got = append(got, r.EventID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopEdgesStableDescending(t *testing.T) {
	view := []domain.OutcomeRecord{
		record("a", "b1", "x", ptr(0.02)),
		record("b", "b1", "x", ptr(0.05)),
		record("c", "b1", "x", nil),
		record("d", "b1", "x", ptr(-0.01)),
		record("e", "b1", "x", ptr(0.02)),
		record("f", "b1", "x", ptr(0.03)),
	}

	top := memory.TopEdges(view, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].EventID)
	assert.Equal(t, "f", top[1].EventID)
	assert.Equal(t, "a", top[2].EventID)

	all := memory.TopEdges(view, 10)
	require.Len(t, all, 4)
	assert.Equal(t, "e", all[3].EventID)
}

func TestSinceUsesReceiptTime(t *testing.T) {
	s := memory.NewOddsStore()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	old := record("old", "b", "x", nil)
	old.ReceivedAt = base.Add(-time.Second)
	edge := record("edge", "b", "x", nil)
	edge.ReceivedAt = base
	s.Upsert(old)
	s.Upsert(edge)

	got := s.Since(base)
	require.Len(t, got, 1)
	assert.Equal(t, "edge", got[0].EventID)
}

func TestPruneDropsStaleAndKeepsOrder(t *testing.T) {
	s := memory.NewOddsStore()
	now := time.Now()
	for i, age := range []time.Duration{time.Minute, time.Hour, 2 * time.Minute, 2 * time.Hour} {
		r := record(string(rune('a'+i)), "b", "x", nil)
		r.VendorLastUpdate = now.Add(-age)
		s.Upsert(r)
	}

	assert.Equal(t, 2, s.Prune(30*time.Minute, now))
	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].EventID)
	assert.Equal(t, "c", all[1].EventID)

	// index survives compaction
	r := record("c", "b", "x", ptr(0.1))
	s.Upsert(r)
	got, ok := s.Get(r.Key())
	require.True(t, ok)
	assert.Equal(t, 0.1, *got.Edge)
	assert.Equal(t, 2, s.Len())
}
