package stream

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes reconnect delays:
//
//	delay = min(base * growth^(attempt-1) + U(0, jitter), cap)
type BackoffPolicy struct {
	Base      time.Duration
	Growth    float64
	JitterMax time.Duration
	Cap       time.Duration
}

// DefaultBackoff returns the stock reconnect policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:      time.Second,
		Growth:    1.5,
		JitterMax: time.Second,
		Cap:       30 * time.Second,
	}
}

// Delay returns the capped delay for attempt (1-based) without jitter.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	return p.withJitter(attempt, 0)
}

// Jittered returns the capped delay for attempt with a uniform jitter
// sample added before capping.
func (p BackoffPolicy) Jittered(attempt int) time.Duration {
	var j time.Duration
	if p.JitterMax > 0 {
		j = time.Duration(rand.Int64N(int64(p.JitterMax) + 1))
	}
	return p.withJitter(attempt, j)
}

func (p BackoffPolicy) withJitter(attempt int, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	raw := float64(p.Base) * math.Pow(p.Growth, float64(attempt-1))
	raw += float64(jitter)
	if p.Cap > 0 && raw >= float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(raw)
}
