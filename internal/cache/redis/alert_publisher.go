package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// Channel and stream names used for alert fan-out.
const (
	ChannelAlerts = "ch:alerts"
	ChannelStatus = "ch:status"
	StreamAlerts  = "stream:alerts"
)

// AlertPublisher is an alert sink that publishes each alert on ChannelAlerts
// and appends it to StreamAlerts.
type AlertPublisher struct {
	bus *SignalBus
}

// NewAlertPublisher wraps bus.
func NewAlertPublisher(bus *SignalBus) *AlertPublisher {
	return &AlertPublisher{bus: bus}
}

// Name implements alerts.Sink.
func (p *AlertPublisher) Name() string { return "redis" }

// Deliver implements alerts.Sink.
func (p *AlertPublisher) Deliver(ctx context.Context, a domain.AlertRecord) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("redis: marshal alert: %w", err)
	}
	if err := p.bus.Publish(ctx, ChannelAlerts, payload); err != nil {
		return err
	}
	return p.bus.StreamAppend(ctx, StreamAlerts, payload)
}

// PublishStatus broadcasts a connection state change.
func (p *AlertPublisher) PublishStatus(ctx context.Context, st domain.ConnectionState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: marshal status: %w", err)
	}
	return p.bus.Publish(ctx, ChannelStatus, payload)
}

// Recent returns up to n alerts from StreamAlerts, newest first. Entries that
// do not decode are skipped.
func (p *AlertPublisher) Recent(ctx context.Context, n int64) ([]domain.AlertRecord, error) {
	raw, err := p.bus.Recent(ctx, StreamAlerts, n)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AlertRecord, 0, len(raw))
	for _, b := range raw {
		var a domain.AlertRecord
		if json.Unmarshal(b, &a) == nil {
			out = append(out, a)
		}
	}
	return out, nil
}
