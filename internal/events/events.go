// Package events defines the gate's event topics and payloads and the
// publisher/subscriber abstractions over NATS.
package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/timegate/internal/model"
)

// Event topic constants
const (
	TopicGateOpened  = "timegate.gate.opened"
	TopicGateClosed  = "timegate.gate.closed"
	TopicGateWarning = "timegate.gate.warning"

	TopicActionDenied = "timegate.action.denied"
	TopicActorKick    = "timegate.actor.kick"

	TopicPolicyReloaded     = "timegate.policy.reloaded"
	TopicPolicyReloadFailed = "timegate.policy.reload_failed"

	TopicOverrideChanged = "timegate.override.changed"

	// Control topics are consumed by the server rather than emitted by it.
	TopicControlReload   = "timegate.control.reload"
	TopicControlOverride = "timegate.control.override"

	// TopicAll matches every topic above.
	TopicAll = "timegate.>"
)

// Event types

// GateChanged is published on TopicGateOpened and TopicGateClosed.
type GateChanged struct {
	From          model.GateState    `json:"from"`
	To            model.GateState    `json:"to"`
	Override      model.OverrideMode `json:"override"`
	PolicyVersion string             `json:"policy_version"`
	Reason        string             `json:"reason,omitempty"`
}

type GateWarning struct {
	MinutesLeft int       `json:"minutes_left"`
	ClosesAt    time.Time `json:"closes_at"`
	RuleID      string    `json:"rule_id,omitempty"`
	Message     string    `json:"message"`
}

type ActionDenied struct {
	ActorID  string         `json:"actor_id"`
	Action   string         `json:"action"`
	Decision model.Decision `json:"decision"`
}

// ActorKick asks the host to disconnect an actor.
type ActorKick struct {
	ActorID string `json:"actor_id"`
	Message string `json:"message"`
}

type PolicyReloaded struct {
	Version         string `json:"version"`
	PreviousVersion string `json:"previous_version,omitempty"`
	Digest          string `json:"digest"`
	Source          string `json:"source"`
	Rules           int    `json:"rules"`
	Actor           string `json:"actor,omitempty"`
}

type PolicyReloadFailed struct {
	Source string `json:"source"`
	Error  string `json:"error"`
	Actor  string `json:"actor,omitempty"`
}

type OverrideChanged struct {
	Previous model.OverrideMode `json:"previous"`
	Override model.Override     `json:"override"`
}

// Control messages

type ControlReload struct {
	Actor string `json:"actor,omitempty"`
}

type ControlOverride struct {
	Mode   model.OverrideMode `json:"mode"`
	Actor  string             `json:"actor,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
