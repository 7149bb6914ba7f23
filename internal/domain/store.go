package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AlertStore persists fired alerts.
type AlertStore interface {
	Insert(ctx context.Context, alert AlertRecord) error
	MarkDismissed(ctx context.Context, id string) error
	ListRecent(ctx context.Context, opts ListOpts) ([]AlertRecord, error)
}

// Lifecycle events recorded in the audit log.
const (
	AuditStreamOpened = "stream_opened"
	AuditStreamClosed = "stream_closed"
	AuditStreamFailed = "stream_failed"
	AuditFilterChange = "filters_changed"
)

// AuditEntry is one recorded lifecycle event.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore records stream lifecycle events (connected, dropped, failed).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
