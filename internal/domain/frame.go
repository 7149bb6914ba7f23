package domain

import (
	"encoding/json"
	"time"
)

// Frame types exchanged with the odds stream.
const (
	FrameOddsUpdate  = "odds_update"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameHeartbeat   = "heartbeat"
	FrameError       = "error"
)

// Envelope is the outer shape of every stream frame. Payload is decoded
// lazily by whoever handles the frame type.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// OutboundFrame is a control frame written to the stream.
type OutboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// SubscribePayload mirrors the server-side subscription filter. Empty lists
// are omitted, which the server treats as "all".
type SubscribePayload struct {
	Sports  []string `json:"sports"`
	Markets []string `json:"markets,omitempty"`
	Books   []string `json:"books,omitempty"`
	Events  []string `json:"events,omitempty"`
}

// ErrorPayload is the body of an inbound error frame.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
