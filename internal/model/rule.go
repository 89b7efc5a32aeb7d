package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the effect a matching rule has on an action.
type Mode string

const (
	ModeAllow Mode = "allow"
	ModeDeny  Mode = "deny"
)

// ParseMode parses "allow" or "deny", case-insensitive. Empty means allow.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAllow:
		return ModeAllow, nil
	case ModeDeny:
		return ModeDeny, nil
	}
	return "", fmt.Errorf("invalid mode %q (must be allow or deny)", s)
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeAllow || m == ModeDeny
}

// AnyAction in a rule's action set matches every action.
const AnyAction = "*"

// GateRule permits or blocks a set of actions during its windows.
type GateRule struct {
	ID          string       `json:"id"`
	Description string       `json:"description,omitempty"`
	Mode        Mode         `json:"mode"`
	Actions     []string     `json:"actions"`
	Windows     []TimeWindow `json:"windows"`
}

// Targets reports whether the rule applies to action.
func (r *GateRule) Targets(action string) bool {
	for _, a := range r.Actions {
		if a == action || a == AnyAction {
			return true
		}
	}
	return false
}

// WindowAt returns the first window containing the instant.
func (r *GateRule) WindowAt(day time.Weekday, t TimeOfDay) (TimeWindow, bool) {
	for _, w := range r.Windows {
		if w.Contains(day, t) {
			return w, true
		}
	}
	return TimeWindow{}, false
}
