package router_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/router"
	"github.com/alanyoungcy/oddsync/internal/store/memory"
)

type fakeLiveness struct {
	beats  []time.Time
	errors []string
}

func (f *fakeLiveness) RecordHeartbeat(at time.Time) { f.beats = append(f.beats, at) }
func (f *fakeLiveness) ReportRemoteError(msg string) { f.errors = append(f.errors, msg) }

func newRouter() (*router.Router, *memory.OddsStore, *fakeLiveness) {
	store := memory.NewOddsStore()
	live := &fakeLiveness{}
	return router.New(store, live, slog.New(slog.NewTextHandler(io.Discard, nil))), store, live
}

func TestOddsUpdateUpsertsNormalizedRecord(t *testing.T) {
	r, store, _ := newRouter()
	now := time.Date(2025, 2, 1, 20, 0, 0, 0, time.UTC)
	payload := `{"event_id":"e1","sport_key":"basketball_nba","market_key":"spreads","book_key":"fanduel",
		"outcome_name":"Lakers","point":-3.5,"price":-110,"edge":0.031}`

	err := r.Handle(domain.Envelope{Type: "odds_update", Payload: json.RawMessage(payload)}, now)
	require.NoError(t, err)

	point := -3.5
	rec, ok := store.Get(domain.OutcomeRecord{
		EventID: "e1", MarketKey: "spreads", BookKey: "fanduel", OutcomeName: "Lakers", Point: &point,
	}.Key())
	require.True(t, ok)
	assert.Equal(t, now, rec.ReceivedAt)
	assert.InDelta(t, 1.909, rec.DecimalOdds, 1e-3)
	require.NotNil(t, rec.Edge)
	assert.Equal(t, 0.031, *rec.Edge)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	r, store, _ := newRouter()

	err := r.Handle(domain.Envelope{Type: "odds_update", Payload: json.RawMessage(`[1,2]`)}, time.Now())
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)

	err = r.Handle(domain.Envelope{Type: "odds_update", Payload: json.RawMessage(`{"event_id":"e1"}`)}, time.Now())
	require.ErrorAs(t, err, &perr)

	assert.Zero(t, store.Len())
}

func TestHeartbeatAndErrorFrames(t *testing.T) {
	r, _, live := newRouter()
	now := time.Now()

	require.NoError(t, r.Handle(domain.Envelope{Type: "heartbeat"}, now))
	require.NoError(t, r.Handle(domain.Envelope{Type: "error", Payload: json.RawMessage(`{"code":"bad_sub","message":"unknown sport"}`)}, now))
	require.NoError(t, r.Handle(domain.Envelope{Type: "error", Payload: json.RawMessage(`"boom"`)}, now))

	assert.Equal(t, []time.Time{now}, live.beats)
	assert.Equal(t, []string{"bad_sub: unknown sport", "boom"}, live.errors)
}

func TestControlAndUnknownFramesAreIgnored(t *testing.T) {
	r, store, live := newRouter()
	require.NoError(t, r.Handle(domain.Envelope{Type: "subscribe"}, time.Now()))
	require.NoError(t, r.Handle(domain.Envelope{Type: "connection_stats"}, time.Now()))
	assert.Zero(t, store.Len())
	assert.Empty(t, live.beats)
}
