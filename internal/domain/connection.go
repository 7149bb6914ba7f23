package domain

import "time"

// ConnectionStatus is the coarse, user-facing state of the stream.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
	StatusFailed       ConnectionStatus = "failed"
)

// ConnectionState is the single process-wide view of stream health. Only the
// transport client writes it; everyone else gets copies.
type ConnectionState struct {
	Status            ConnectionStatus `json:"status"`
	LatencyMs         int64            `json:"latency_ms"`
	LastMessageAt     time.Time        `json:"last_message_at"`
	ReconnectAttempts int              `json:"reconnect_attempts"`
	LastError         string           `json:"last_error,omitempty"`
}
