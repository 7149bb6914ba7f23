package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNotOpen      = errors.New("stream not open")
	ErrClientClosed = errors.New("client closed")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
)

// TransportError means the stream connection could not be established or
// maintained.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means an inbound frame or payload was malformed.
type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string {
	const max = 128
	raw := e.Raw
	if len(raw) > max {
		raw = raw[:max]
	}
	return fmt.Sprintf("parse: %v (frame %q)", e.Err, raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SinkError means one alert sink failed to deliver.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("sink %s: %v", e.Sink, e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

// ConfigError means required configuration is missing or invalid.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s: %s", e.Field, e.Msg) }
