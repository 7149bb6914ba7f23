package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

const defaultAlertLogSize = 500

// AlertLog is the in-app alert sink: a bounded log, newest first.
type AlertLog struct {
	mu     sync.RWMutex
	max    int
	alerts []domain.AlertRecord
}

// NewAlertLog returns a log that keeps at most max alerts.
func NewAlertLog(max int) *AlertLog {
	if max <= 0 {
		max = defaultAlertLogSize
	}
	return &AlertLog{max: max}
}

// Name implements alerts.Sink.
func (l *AlertLog) Name() string { return "in_app" }

// Deliver prepends the alert, evicting the oldest entry when full.
func (l *AlertLog) Deliver(_ context.Context, a domain.AlertRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append([]domain.AlertRecord{a}, l.alerts...)
	if len(l.alerts) > l.max {
		l.alerts = l.alerts[:l.max]
	}
	return nil
}

// List returns up to limit alerts, newest first. limit <= 0 returns all.
func (l *AlertLog) List(limit int) []domain.AlertRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.alerts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.AlertRecord, n)
	copy(out, l.alerts[:n])
	return out
}

// Dismiss flags the alert with id as dismissed.
func (l *AlertLog) Dismiss(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.alerts {
		if l.alerts[i].ID == id {
			l.alerts[i].Dismissed = true
			return nil
		}
	}
	return fmt.Errorf("memory: dismiss alert %s: %w", id, domain.ErrNotFound)
}

// Undismissed counts alerts not yet dismissed.
func (l *AlertLog) Undismissed() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, a := range l.alerts {
		if !a.Dismissed {
			n++
		}
	}
	return n
}
