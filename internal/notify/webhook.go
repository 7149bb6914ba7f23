package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/oddsync/internal/crypto"
	"github.com/alanyoungcy/oddsync/internal/domain"
)

// WebhookPayload is the structured body posted for each alert.
type WebhookPayload struct {
	Text           string    `json:"text"`
	AlertID        string    `json:"alert_id"`
	EventID        string    `json:"event_id"`
	MarketKey      string    `json:"market_key"`
	BookKey        string    `json:"book_key"`
	OutcomeName    string    `json:"outcome_name"`
	Point          *float64  `json:"point"`
	Price          int       `json:"price"`
	EdgePct        float64   `json:"edge_pct"`
	DataAgeSeconds float64   `json:"data_age_seconds"`
	DetectedAt     time.Time `json:"detected_at"`
}

// WebhookSink posts alerts as JSON to an operator-configured URL. When a
// secret is set every request carries an HMAC signature.
type WebhookSink struct {
	url    string
	signer *crypto.WebhookSigner
	client *http.Client
}

// NewWebhookSink creates a WebhookSink. An empty secret disables signing.
func NewWebhookSink(url, secret string) *WebhookSink {
	w := &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if secret != "" {
		w.signer = &crypto.WebhookSigner{Secret: secret}
	}
	return w
}

// Name returns the sink identifier.
func (w *WebhookSink) Name() string { return "webhook" }

// Deliver posts the structured alert payload.
func (w *WebhookSink) Deliver(ctx context.Context, a domain.AlertRecord) error {
	title, body := FormatAlert(a)
	return w.post(ctx, WebhookPayload{
		Text:           title + "\n" + body,
		AlertID:        a.ID,
		EventID:        a.EventID,
		MarketKey:      a.MarketKey,
		BookKey:        a.BookKey,
		OutcomeName:    a.OutcomeName,
		Point:          a.Point,
		Price:          a.Price,
		EdgePct:        a.EdgePercent(),
		DataAgeSeconds: a.DataAge,
		DetectedAt:     a.DetectedAt,
	})
}

// Send posts a plain text message so the webhook can also receive
// operational events through Notifier.
func (w *WebhookSink) Send(ctx context.Context, title, message string) error {
	return w.post(ctx, map[string]string{"text": title + "\n" + message})
}

func (w *WebhookSink) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.signer != nil {
		for k, v := range w.signer.Headers(body) {
			req.Header.Set(k, v)
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
