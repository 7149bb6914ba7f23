package alerts_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsync/internal/alerts"
	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/store/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type captureSink struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []domain.AlertRecord
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Deliver(_ context.Context, a domain.AlertRecord) error {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
	return s.err
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func edge(v float64) *float64 { return &v }

type harness struct {
	clock  *fakeClock
	store  *memory.OddsStore
	engine *alerts.Engine
	sink   *captureSink
}

func newHarness(t *testing.T, cfg alerts.Config) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 10, 19, 0, 0, 0, time.UTC)}
	store := memory.NewOddsStore()
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	n := 0
	e := alerts.NewEngine(cfg, store, alerts.NewCooldownSet(cfg.Cooldown), discard(),
		alerts.WithClock(clock.Now),
		alerts.WithIDFunc(func() string { n++; return fmt.Sprintf("a%d", n) }),
	)
	sink := &captureSink{name: "capture"}
	e.AddSink(sink)
	return &harness{clock: clock, store: store, engine: e, sink: sink}
}

// push upserts a fresh record for identity A at the current clock.
func (h *harness) push(market string, e *float64) {
	now := h.clock.Now()
	h.store.Upsert(domain.OutcomeRecord{
		EventID: "evt-1", SportKey: "basketball_nba", MarketKey: market, BookKey: "fanduel",
		OutcomeName: "Lakers", Price: 130, Edge: e,
		VendorLastUpdate: now, ReceivedAt: now,
	})
}

func (h *harness) poll() []domain.AlertRecord {
	h.clock.Advance(time.Millisecond)
	fired := h.engine.Poll(context.Background())
	h.engine.Wait()
	return fired
}

func TestAlertDedupWithinCooldown(t *testing.T) {
	h := newHarness(t, alerts.Config{MinEdge: 0.02})

	h.push("h2h", edge(0.05))
	require.Len(t, h.poll(), 1)

	h.clock.Advance(60 * time.Second)
	h.push("h2h", edge(0.05))
	assert.Empty(t, h.poll())

	h.clock.Advance(241 * time.Second)
	h.push("h2h", edge(0.05))
	assert.Len(t, h.poll(), 1)

	assert.Equal(t, 2, h.sink.count())
}

func TestAlertEligibility(t *testing.T) {
	h := newHarness(t, alerts.Config{MinEdge: 0.02, MaxDataAge: 10 * time.Second})
	now := h.clock.Now()

	h.store.Upsert(domain.OutcomeRecord{EventID: "null", BookKey: "b", OutcomeName: "x", MarketKey: "m", ReceivedAt: now, VendorLastUpdate: now})
	h.store.Upsert(domain.OutcomeRecord{EventID: "low", BookKey: "b", OutcomeName: "x", MarketKey: "m", Edge: edge(0.01), ReceivedAt: now, VendorLastUpdate: now})
	h.store.Upsert(domain.OutcomeRecord{EventID: "stale", BookKey: "b", OutcomeName: "x", MarketKey: "m", Edge: edge(0.09), ReceivedAt: now, VendorLastUpdate: now.Add(-time.Minute)})
	h.store.Upsert(domain.OutcomeRecord{EventID: "ok", BookKey: "b", OutcomeName: "x", MarketKey: "m", Edge: edge(0.02), ReceivedAt: now, VendorLastUpdate: now})

	fired := h.poll()
	require.Len(t, fired, 1)
	assert.Equal(t, "ok", fired[0].EventID)
	assert.Equal(t, 0.02, fired[0].Edge)
}

func TestRecordsBeforePreviousPollAreNotReevaluated(t *testing.T) {
	h := newHarness(t, alerts.Config{MinEdge: 0.02, Cooldown: time.Second})

	h.push("h2h", edge(0.05))
	require.Len(t, h.poll(), 1)

	// cooldown elapsed but the record was not touched again
	h.clock.Advance(5 * time.Second)
	assert.Empty(t, h.poll())
}

func TestRebaseSkipsSeededRecords(t *testing.T) {
	h := newHarness(t, alerts.Config{MinEdge: 0.02})

	h.clock.Advance(time.Second)
	h.push("h2h", edge(0.06))
	h.engine.Rebase(h.clock.Now())
	assert.Empty(t, h.poll())

	// an earlier baseline never moves the poll window backwards
	h.engine.Rebase(h.clock.Now().Add(-time.Hour))
	h.push("h2h", edge(0.06))
	assert.Len(t, h.poll(), 1)
}

func TestSameOutcomeAcrossMarketsFiresOnce(t *testing.T) {
	h := newHarness(t, alerts.Config{MinEdge: 0.02})
	h.push("h2h", edge(0.05))
	h.push("h2h_q1", edge(0.07))
	assert.Len(t, h.poll(), 1)
}

func TestOscillatingEdgeRealertsAfterCooldown(t *testing.T) {
	h := newHarness(t, alerts.Config{MinEdge: 0.02, Cooldown: time.Minute})

	h.push("h2h", edge(0.03))
	require.Len(t, h.poll(), 1)

	h.clock.Advance(30 * time.Second)
	h.push("h2h", edge(0.01))
	require.Empty(t, h.poll())

	h.clock.Advance(31 * time.Second)
	h.push("h2h", edge(0.03))
	assert.Len(t, h.poll(), 1)
}

func TestSinkFailureIsIsolated(t *testing.T) {
	h := newHarness(t, alerts.Config{MinEdge: 0.02})
	broken := &captureSink{name: "broken", err: errors.New("503")}
	h.engine.AddSink(broken)

	h.push("h2h", edge(0.05))
	require.Len(t, h.poll(), 1)
	assert.Equal(t, 1, h.sink.count())
	assert.Equal(t, 1, broken.count())

	// still cooling down despite the failure
	h.clock.Advance(time.Second)
	h.push("h2h", edge(0.05))
	assert.Empty(t, h.poll())
}

func TestRateCapSkipsExternalSinksOnly(t *testing.T) {
	h := newHarness(t, alerts.Config{MinEdge: 0.02, MaxPerMinute: 1})
	local := &captureSink{name: "in_app"}
	h.engine.AddLocalSink(local)

	now := h.clock.Now()
	for _, ev := range []string{"e1", "e2", "e3"} {
		h.store.Upsert(domain.OutcomeRecord{EventID: ev, BookKey: "b", OutcomeName: "x", MarketKey: "m",
			Edge: edge(0.05), ReceivedAt: now, VendorLastUpdate: now})
	}
	require.Len(t, h.poll(), 3)
	assert.Equal(t, 3, local.count())
	assert.Equal(t, 1, h.sink.count())
}

func TestCooldownSetEvictsInExpiryOrder(t *testing.T) {
	ctx := context.Background()
	s := alerts.NewCooldownSet(time.Minute)
	t0 := time.Unix(1_700_000_000, 0)
	a := domain.AlertKey{EventID: "a"}
	b := domain.AlertKey{EventID: "b", HasPoint: true, Point: 1.5}

	ok, err := s.Claim(ctx, a, t0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, _ = s.Claim(ctx, b, t0.Add(30*time.Second))
	require.True(t, ok)
	ok, _ = s.Claim(ctx, a, t0.Add(10*time.Second))
	assert.False(t, ok)

	in, _ := s.Contains(ctx, a, t0.Add(61*time.Second))
	assert.False(t, in)
	in, _ = s.Contains(ctx, b, t0.Add(61*time.Second))
	assert.True(t, in)
	assert.Equal(t, 1, s.Len())

	in, _ = s.Contains(ctx, b, t0.Add(90*time.Second))
	assert.False(t, in)
	assert.Zero(t, s.Len())
}
