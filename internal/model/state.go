package model

import (
	"fmt"
	"strings"
	"time"
)

// GateState is the server-wide open/closed state.
type GateState string

const (
	StateOpen   GateState = "open"
	StateClosed GateState = "closed"
)

// String returns the string representation of the state.
func (s GateState) String() string {
	return string(s)
}

// OverrideMode is a manual override of the scheduled state.
type OverrideMode string

const (
	OverrideAuto        OverrideMode = "auto"
	OverrideForceOpen   OverrideMode = "force_open"
	OverrideForceClosed OverrideMode = "force_closed"
)

// String returns the string representation of the override mode.
func (m OverrideMode) String() string {
	return string(m)
}

// IsValid reports whether m is a known override mode.
func (m OverrideMode) IsValid() bool {
	switch m {
	case OverrideAuto, OverrideForceOpen, OverrideForceClosed:
		return true
	}
	return false
}

// ParseOverrideMode accepts the canonical names plus "open", "close(d)" and "none".
func ParseOverrideMode(s string) (OverrideMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "none", "":
		return OverrideAuto, nil
	case "force_open", "open":
		return OverrideForceOpen, nil
	case "force_closed", "close", "closed":
		return OverrideForceClosed, nil
	}
	return "", fmt.Errorf("invalid override mode %q", s)
}

// Override is the persisted manual override.
type Override struct {
	Mode   OverrideMode `json:"mode"`
	SetBy  string       `json:"set_by,omitempty"`
	Reason string       `json:"reason,omitempty"`
	SetAt  time.Time    `json:"set_at"`
}
