package notify

import (
	"context"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// SenderSink adapts a Sender into an alert sink by formatting the alert.
type SenderSink struct {
	Sender Sender
}

// Name implements alerts.Sink.
func (s SenderSink) Name() string { return s.Sender.Name() }

// Deliver implements alerts.Sink.
func (s SenderSink) Deliver(ctx context.Context, a domain.AlertRecord) error {
	title, body := FormatAlert(a)
	return s.Sender.Send(ctx, title, body)
}
