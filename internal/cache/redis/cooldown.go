package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

// Cooldown is a domain.CooldownSet shared through Redis: one key per alert
// identity, written with SET NX and a TTL of the cool-down window. Expiry
// follows the Redis clock, so the now argument is only recorded as the value.
type Cooldown struct {
	client *Client
	rdb    *redis.Client
	window time.Duration
}

var _ domain.CooldownSet = (*Cooldown)(nil)

// NewCooldown returns a Redis-backed cool-down set.
func NewCooldown(c *Client, window time.Duration) *Cooldown {
	return &Cooldown{client: c, rdb: c.Underlying(), window: window}
}

// Claim implements domain.CooldownSet.
func (c *Cooldown) Claim(ctx context.Context, key domain.AlertKey, now time.Time) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.key(key), now.Unix(), c.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis: cooldown claim: %w", err)
	}
	return ok, nil
}

// Contains implements domain.CooldownSet.
func (c *Cooldown) Contains(ctx context.Context, key domain.AlertKey, _ time.Time) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: cooldown check: %w", err)
	}
	return n > 0, nil
}

// Release drops key so it may alert again immediately.
func (c *Cooldown) Release(ctx context.Context, key domain.AlertKey) error {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis: cooldown release: %w", err)
	}
	return nil
}

func (c *Cooldown) key(k domain.AlertKey) string {
	return c.client.Key("alert", "cooldown", k.String())
}
