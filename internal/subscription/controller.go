// Package subscription turns the active filter set into subscribe frames.
package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// Sender writes control frames to the stream.
type Sender interface {
	Send(v any) error
}

// Controller owns the active FilterSet and re-issues the subscription on
// every open and every filter change.
type Controller struct {
	sender Sender
	logger *slog.Logger

	mu      sync.RWMutex
	filters domain.FilterSet
}

// NewController returns a controller starting from initial.
func NewController(sender Sender, initial domain.FilterSet, logger *slog.Logger) *Controller {
	return &Controller{
		sender:  sender,
		filters: initial.Clone(),
		logger:  logger.With(slog.String("component", "subscription")),
	}
}

// Filters returns a copy of the active filter set.
func (c *Controller) Filters() domain.FilterSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filters.Clone()
}

// OnOpen sends the subscription for the current filters.
func (c *Controller) OnOpen() error {
	return c.subscribe(c.Filters())
}

// Apply replaces the active filters and re-subscribes. When the stream is
// down the new filters are kept and sent on the next open.
func (c *Controller) Apply(f domain.FilterSet) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("subscription: apply: %w", err)
	}
	c.mu.Lock()
	c.filters = f.Clone()
	c.mu.Unlock()

	err := c.subscribe(f)
	if errors.Is(err, domain.ErrNotOpen) {
		c.logger.Info("filters stored, subscription deferred until reconnect")
		return nil
	}
	return err
}

// Clear asks the server to drop the subscription.
func (c *Controller) Clear() error {
	if err := c.sender.Send(domain.OutboundFrame{Type: domain.FrameUnsubscribe, Payload: struct{}{}}); err != nil {
		return fmt.Errorf("subscription: unsubscribe: %w", err)
	}
	return nil
}

func (c *Controller) subscribe(f domain.FilterSet) error {
	payload := BuildPayload(f)
	if err := c.sender.Send(domain.OutboundFrame{Type: domain.FrameSubscribe, Payload: payload}); err != nil {
		return fmt.Errorf("subscription: subscribe: %w", err)
	}
	c.logger.Info("subscribed",
		slog.Any("sports", payload.Sports),
		slog.Any("markets", payload.Markets),
		slog.Any("books", payload.Books),
	)
	return nil
}

// BuildPayload maps filters to the wire payload. Markets and books are only
// included when non-empty; the server treats omission as "all".
func BuildPayload(f domain.FilterSet) domain.SubscribePayload {
	p := domain.SubscribePayload{Sports: []string{f.Sport}}
	if len(f.Markets) > 0 {
		p.Markets = slices.Clone(f.Markets)
	}
	if len(f.Books) > 0 {
		p.Books = slices.Clone(f.Books)
	}
	return p
}
