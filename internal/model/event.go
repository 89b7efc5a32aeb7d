package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Event is a persisted audit record, mirroring what is published to NATS.
type Event struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// DefaultEventLimit and MaxEventLimit bound EventFilter.Limit.
const (
	DefaultEventLimit = 100
	MaxEventLimit     = 1000
)

// EventFilter narrows ListEvents results. Results are newest first.
type EventFilter struct {
	Topic string // exact topic or prefix ending in "."
	Actor string
	Since time.Time
	Limit int
}

// EffectiveLimit clamps Limit into [1, MaxEventLimit], defaulting when unset.
func (f EventFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultEventLimit
	case f.Limit > MaxEventLimit:
		return MaxEventLimit
	}
	return f.Limit
}

// TopicPrefix reports whether Topic selects a family of topics.
func (f EventFilter) TopicPrefix() bool {
	return strings.HasSuffix(f.Topic, ".")
}
