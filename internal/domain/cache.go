package domain

import (
	"context"
	"time"
)

// CooldownSet remembers alert keys for a fixed window after they fire.
type CooldownSet interface {
	// Claim marks key as alerted at now and reports whether it was free.
	// A key already inside its cool-down is left untouched and returns false.
	Claim(ctx context.Context, key AlertKey, now time.Time) (bool, error)
	Contains(ctx context.Context, key AlertKey, now time.Time) (bool, error)
}

// SignalBus provides pub/sub fan-out of alerts and status changes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
