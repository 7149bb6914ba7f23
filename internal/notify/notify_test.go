package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsync/internal/crypto"
	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/notify"
)

func sampleAlert() domain.AlertRecord {
	point := -3.5
	return domain.AlertRecord{
		ID:          "a-1",
		EventID:     "evt-9",
		MarketKey:   "spreads",
		BookKey:     "draftkings",
		OutcomeName: "Boston Celtics",
		Point:       &point,
		HomeTeam:    "Boston Celtics",
		AwayTeam:    "Miami Heat",
		Price:       -105,
		Edge:        0.0612,
		DataAge:     3.2,
		DetectedAt:  time.Date(2025, 2, 3, 1, 2, 3, 0, time.UTC),
	}
}

func TestWebhookSinkPostsSignedPayload(t *testing.T) {
	var (
		got     notify.WebhookPayload
		rawBody []byte
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		rawBody, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(srv.URL, "s3cret")
	require.NoError(t, sink.Deliver(context.Background(), sampleAlert()))

	require.NoError(t, json.Unmarshal(rawBody, &got))
	assert.Equal(t, "Boston Celtics", got.OutcomeName)
	assert.Equal(t, "draftkings", got.BookKey)
	assert.Equal(t, -105, got.Price)
	require.NotNil(t, got.Point)
	assert.Equal(t, -3.5, *got.Point)
	assert.InDelta(t, 6.12, got.EdgePct, 1e-9)
	assert.Equal(t, 3.2, got.DataAgeSeconds)
	assert.Contains(t, got.Text, "-105")

	signer := &crypto.WebhookSigner{Secret: "s3cret"}
	assert.True(t, signer.Verify(rawBody, headers.Get(crypto.HeaderTimestamp), headers.Get(crypto.HeaderSignature)))
}

func TestWebhookSinkReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(srv.URL, "")
	err := sink.Deliver(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFormatAlert(t *testing.T) {
	title, body := notify.FormatAlert(sampleAlert())
	assert.Equal(t, "+EV 6.12% | Boston Celtics @ draftkings", title)
	assert.Contains(t, body, "Miami Heat vs Boston Celtics")
	assert.Contains(t, body, "Pick: Boston Celtics -105 (-3.5)")
	assert.Contains(t, body, "Age: fresh 3s")
	assert.Contains(t, body, "Detected: 01:02:03")
}

func TestFormatOdds(t *testing.T) {
	assert.Equal(t, "+150", notify.FormatOdds(150))
	assert.Equal(t, "-110", notify.FormatOdds(-110))
}

type stubSender struct {
	name   string
	err    error
	titles []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func TestNotifierFiltersEventsAndContinuesPastFailures(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("down")}
	good := &stubSender{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, []string{notify.EventStreamFailed}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, n.Notify(context.Background(), notify.EventStreamRecovered, "t", "m"))
	assert.Empty(t, good.titles)

	err := n.Notify(context.Background(), notify.EventStreamFailed, "stream down", "m")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "notify: 1 sender(s) failed"))
	assert.Equal(t, []string{"stream down"}, good.titles)
}

func TestSenderSinkFormatsAlert(t *testing.T) {
	s := &stubSender{name: "telegram"}
	sink := notify.SenderSink{Sender: s}
	require.NoError(t, sink.Deliver(context.Background(), sampleAlert()))
	assert.Equal(t, "telegram", sink.Name())
	assert.Equal(t, []string{"+EV 6.12% | Boston Celtics @ draftkings"}, s.titles)
}

func TestTelegramSenderUsesBotAPI(t *testing.T) {
	var path string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := notify.NewTelegramSender(srv.URL, "tok", "42")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "*Title*\nbody", payload["text"])
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var payload struct {
		Embeds []struct {
			Title string `json:"title"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, notify.NewDiscordSender(srv.URL).Send(context.Background(), "hello", "world"))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "hello", payload.Embeds[0].Title)
}
