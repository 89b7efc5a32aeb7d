package model

import "time"

// ActionLogin is the action evaluated to decide whether the server is open.
const ActionLogin = "login"

// DefaultBypassPermission lets an actor through a closed gate.
const DefaultBypassPermission = "timegate.bypass"

// Messages holds the MiniMessage-formatted texts shown to players.
type Messages struct {
	Deny       string `json:"deny"`
	Kick       string `json:"kick"`
	Warning    string `json:"warning"` // "{minutes}" is replaced with the minutes left
	MOTDOpen   string `json:"motd_open"`
	MOTDClosed string `json:"motd_closed"`
}

// DefaultMessages returns the texts used when the policy document omits them.
func DefaultMessages() Messages {
	return Messages{
		Deny:       "<red>The server is currently closed.",
		Kick:       "<red>The server is now closed.",
		Warning:    "<yellow>The server closes in {minutes} minute(s).",
		MOTDOpen:   "<green>Server is OPEN",
		MOTDClosed: "<red>Server is CLOSED",
	}
}

// Hooks are shell commands run when the gate changes state.
type Hooks struct {
	OnOpen  string        `json:"on_open,omitempty"`
	OnClose string        `json:"on_close,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Policy is an immutable, versioned snapshot of the gate configuration.
// A reload replaces the whole snapshot; fields are never mutated in place.
type Policy struct {
	Version  string    `json:"version"`
	Digest   string    `json:"digest"`
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`

	Location    *time.Location `json:"-"`
	DefaultMode Mode           `json:"default_mode"`
	Rules       []GateRule     `json:"rules"`

	Messages         Messages `json:"messages"`
	KickOnClose      bool     `json:"kick_on_close"`
	WarningMinutes   []int    `json:"warning_minutes,omitempty"`
	BypassPermission string   `json:"bypass_permission"`
	Hooks            Hooks    `json:"hooks"`
}

// TimeZone returns the IANA name of the policy's location.
func (p *Policy) TimeZone() string {
	if p == nil || p.Location == nil {
		return time.Local.String()
	}
	return p.Location.String()
}

// In converts t into the policy's location.
func (p *Policy) In(t time.Time) time.Time {
	if p == nil || p.Location == nil {
		return t
	}
	return t.In(p.Location)
}

// Rule returns the rule with the given id.
func (p *Policy) Rule(id string) (*GateRule, bool) {
	for i := range p.Rules {
		if p.Rules[i].ID == id {
			return &p.Rules[i], true
		}
	}
	return nil, false
}

// EmptyPolicy is the allow-everything policy in the local zone.
func EmptyPolicy() *Policy {
	return &Policy{
		Version:          "empty",
		Source:           "builtin",
		Location:         time.Local,
		DefaultMode:      ModeAllow,
		Messages:         DefaultMessages(),
		BypassPermission: DefaultBypassPermission,
	}
}
