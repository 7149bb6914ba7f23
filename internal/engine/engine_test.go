package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsync/internal/alerts"
	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/engine"
	"github.com/alanyoungcy/oddsync/internal/notify"
	"github.com/alanyoungcy/oddsync/internal/platform/oddsapi"
	"github.com/alanyoungcy/oddsync/internal/router"
	"github.com/alanyoungcy/oddsync/internal/store/memory"
	"github.com/alanyoungcy/oddsync/internal/stream"
	"github.com/alanyoungcy/oddsync/internal/subscription"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type inbound struct {
	conn int
	msg  map[string]any
}

// feed accepts sockets and hands each to the test; every client frame lands
// on received tagged with its connection number.
type feed struct {
	*httptest.Server
	conns    chan *websocket.Conn
	received chan inbound

	mu sync.Mutex
	n  int
}

func newFeed(t *testing.T) *feed {
	t.Helper()
	f := &feed{conns: make(chan *websocket.Conn, 4), received: make(chan inbound, 64)}
	upgrader := websocket.Upgrader{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.n++
		n := f.n
		f.mu.Unlock()
		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var m map[string]any
				if json.Unmarshal(raw, &m) == nil {
					f.received <- inbound{conn: n, msg: m}
				}
			}
		}()
		f.conns <- conn
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *feed) url() string { return "ws" + strings.TrimPrefix(f.URL, "http") }

func (f *feed) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no connection from client")
		return nil
	}
}

// nextSubscribe skips heartbeats until a subscribe frame arrives.
func (f *feed) nextSubscribe(t *testing.T) inbound {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case in := <-f.received:
			if in.msg["type"] == "subscribe" {
				return in
			}
		case <-deadline:
			t.Fatal("no subscribe frame")
			return inbound{}
		}
	}
}

type webhook struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []notify.WebhookPayload
}

func newWebhook(t *testing.T) *webhook {
	t.Helper()
	wh := &webhook{}
	wh.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p notify.WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			wh.mu.Lock()
			wh.payloads = append(wh.payloads, p)
			wh.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(wh.Close)
	return wh
}

func (wh *webhook) count() int {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	return len(wh.payloads)
}

type harness struct {
	client *stream.Client
	store  *memory.OddsStore
	log    *memory.AlertLog
	engine *engine.Engine
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func start(t *testing.T, feedURL string, sinks []alerts.Sink, boot engine.Bootstrapper) *harness {
	t.Helper()
	logger := discard()
	minEdge := 0.02
	filters := domain.FilterSet{Sport: "basketball_nba", Markets: []string{"h2h"}, MinEdge: &minEdge}

	client := stream.New(stream.Config{
		URL:               feedURL,
		HeartbeatInterval: time.Second,
		Backoff:           stream.BackoffPolicy{Base: 10 * time.Millisecond, Growth: 1, Cap: 20 * time.Millisecond},
	}, logger)
	store := memory.NewOddsStore()
	alertLog := memory.NewAlertLog(10)
	ae := alerts.NewEngine(alerts.Config{PollInterval: 20 * time.Millisecond, MinEdge: 0.02}, store,
		alerts.NewCooldownSet(5*time.Minute), logger)
	ae.AddLocalSink(alertLog)
	for _, s := range sinks {
		ae.AddSink(s)
	}

	e := engine.New(engine.Config{MaxAge: time.Hour, PruneInterval: time.Hour}, engine.Deps{
		Transport:  client,
		Router:     router.New(store, client, logger),
		Store:      store,
		Controller: subscription.NewController(client, filters, logger),
		Alerts:     ae,
		Bootstrap:  boot,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{client: client, store: store, log: alertLog, engine: e, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- e.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
		}
	})
}

func oddsUpdate(edge float64) []byte {
	b, _ := json.Marshal(map[string]any{
		"type": "odds_update",
		"payload": map[string]any{
			"event_id": "evt-1", "sport_key": "basketball_nba", "market_key": "h2h",
			"book_key": "fanduel", "outcome_name": "Lakers", "price": 130,
			"home_team": "Los Angeles Lakers", "away_team": "Boston Celtics",
			"edge": edge,
		},
	})
	return b
}

func TestEndToEndReconnectDoesNotRealert(t *testing.T) {
	f := newFeed(t)
	wh := newWebhook(t)
	h := start(t, f.url(), []alerts.Sink{notify.NewWebhookSink(wh.URL, "")}, nil)

	conn1 := f.nextConn(t)
	sub := f.nextSubscribe(t)
	assert.Equal(t, 1, sub.conn)

	require.NoError(t, conn1.WriteMessage(websocket.TextMessage, oddsUpdate(0.06)))
	require.Eventually(t, func() bool { return wh.count() == 1 }, 3*time.Second, 10*time.Millisecond)

	wh.mu.Lock()
	first := wh.payloads[0]
	wh.mu.Unlock()
	assert.Equal(t, "evt-1", first.EventID)
	assert.Equal(t, "Lakers", first.OutcomeName)
	assert.InDelta(t, 6.0, first.EdgePct, 1e-9)

	// unexpected drop
	conn1.Close()

	conn2 := f.nextConn(t)
	resub := f.nextSubscribe(t)
	assert.Equal(t, 2, resub.conn)
	payload, ok := resub.msg["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"basketball_nba"}, payload["sports"])
	assert.Equal(t, []any{"h2h"}, payload["markets"])
	_, hasBooks := payload["books"]
	assert.False(t, hasBooks)

	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, oddsUpdate(0.06)))
	require.Eventually(t, func() bool {
		rec, ok := h.store.Get(domain.OutcomeKey{EventID: "evt-1", MarketKey: "h2h", BookKey: "fanduel", OutcomeName: "Lakers"})
		return ok && rec.ReceivedAt.After(first.DetectedAt)
	}, 3*time.Second, 10*time.Millisecond)

	// several polls pass; the identity is still cooling down
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, wh.count())
	assert.Len(t, h.log.List(0), 1)
	assert.Equal(t, domain.StatusConnected, h.engine.Status().Connection.Status)
}

func TestUpdateFiltersResubscribes(t *testing.T) {
	f := newFeed(t)
	h := start(t, f.url(), nil, nil)

	f.nextConn(t)
	f.nextSubscribe(t)

	ctx := context.Background()
	require.NoError(t, h.engine.UpdateFilters(ctx, domain.FilterSet{Sport: "football_nfl", Books: []string{"draftkings"}}))

	sub := f.nextSubscribe(t)
	payload := sub.msg["payload"].(map[string]any)
	assert.Equal(t, []any{"football_nfl"}, payload["sports"])
	assert.Equal(t, []any{"draftkings"}, payload["books"])
	assert.Equal(t, "football_nfl", h.engine.Filters().Sport)

	err := h.engine.UpdateFilters(ctx, domain.FilterSet{})
	require.Error(t, err)
	assert.Equal(t, "football_nfl", h.engine.Status().Filters.Sport)
}

type stubBootstrap struct {
	recs []domain.OutcomeRecord
	err  error
	q    oddsapi.Query
}

func (s *stubBootstrap) FetchCurrent(_ context.Context, q oddsapi.Query) ([]domain.OutcomeRecord, error) {
	s.q = q
	return s.recs, s.err
}

func TestBootstrapSeedsBoard(t *testing.T) {
	f := newFeed(t)
	boot := &stubBootstrap{recs: []domain.OutcomeRecord{
		{EventID: "e1", MarketKey: "h2h", BookKey: "fanduel", OutcomeName: "Lakers", Price: -110},
		{EventID: "", MarketKey: "h2h", BookKey: "fanduel", OutcomeName: "bad"},
	}}
	h := start(t, f.url(), nil, boot)
	f.nextConn(t)

	require.Eventually(t, func() bool { return h.store.Len() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "basketball_nba", boot.q.Sport)
	assert.Equal(t, []string{"h2h"}, boot.q.Markets)
}

func TestBootstrapRecordsDoNotAlert(t *testing.T) {
	f := newFeed(t)
	wh := newWebhook(t)
	seeded := 0.06
	boot := &stubBootstrap{recs: []domain.OutcomeRecord{
		{EventID: "evt-1", SportKey: "basketball_nba", MarketKey: "h2h", BookKey: "fanduel",
			OutcomeName: "Lakers", Price: 130, Edge: &seeded},
	}}
	h := start(t, f.url(), []alerts.Sink{notify.NewWebhookSink(wh.URL, "")}, boot)
	conn := f.nextConn(t)
	f.nextSubscribe(t)
	require.Equal(t, 1, h.store.Len())

	// several polls pass over the seeded board
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, h.log.List(0))
	assert.Zero(t, wh.count())

	// a live change to the same outcome does alert
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, oddsUpdate(0.06)))
	require.Eventually(t, func() bool { return wh.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Len(t, h.log.List(0), 1)
}

func TestBootstrapFailureStartsEmpty(t *testing.T) {
	f := newFeed(t)
	h := start(t, f.url(), nil, &stubBootstrap{err: errors.New("503")})
	f.nextConn(t)
	f.nextSubscribe(t)
	assert.Zero(t, h.store.Len())
}

func TestShutdownSendsUnsubscribe(t *testing.T) {
	f := newFeed(t)
	h := start(t, f.url(), nil, nil)
	f.nextConn(t)
	f.nextSubscribe(t)

	h.stop()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case in := <-f.received:
			if in.msg["type"] == "unsubscribe" {
				return
			}
		case <-deadline:
			t.Fatal("no unsubscribe frame on shutdown")
		}
	}
}
