// Package api holds the request and response types shared by the HTTP and
// gRPC transports and their clients.
package api

import (
	"time"

	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/presence"
	"github.com/alfredjeanlab/timegate/internal/schedule"
)

// EvaluateRequest asks whether an actor may perform an action. A zero
// Timestamp means now.
type EvaluateRequest struct {
	ActorID     string    `json:"actor_id"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
	Permissions []string  `json:"permissions,omitempty"`
}

// LoginRequest is sent by the host when an actor connects.
type LoginRequest struct {
	ActorID     string    `json:"actor_id"`
	Permissions []string  `json:"permissions,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
}

// LoginResult tells the host whether to admit the actor, and what to show
// them if not.
type LoginResult struct {
	Allowed  bool           `json:"allowed"`
	Message  string         `json:"message,omitempty"`
	Decision model.Decision `json:"decision"`
}

// MOTD is the server list message for the current state.
type MOTD struct {
	State   model.GateState `json:"state"`
	Message string          `json:"message"`
}

type PresenceRequest struct {
	ActorID     string   `json:"actor_id"`
	Permissions []string `json:"permissions,omitempty"`
}

type PresenceResponse struct {
	ActorID string `json:"actor_id"`
	Changed bool   `json:"changed"`
	Online  int    `json:"online"`
}

type Roster struct {
	Actors []presence.Entry `json:"actors"`
	Count  int              `json:"count"`
}

// StatusResponse extends the schedule status with override provenance.
type StatusResponse struct {
	schedule.Status
	OverrideSetBy  string     `json:"override_set_by,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`
	OverrideSetAt  *time.Time `json:"override_set_at,omitempty"`
	PolicySource   string     `json:"policy_source"`
	PolicyLoadedAt time.Time  `json:"policy_loaded_at"`
	Online         int        `json:"online"`
}

type OverrideRequest struct {
	Mode   model.OverrideMode `json:"mode"`
	Actor  string             `json:"actor,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

type OverrideResponse struct {
	Previous model.OverrideMode `json:"previous"`
	Override model.Override     `json:"override"`
	State    model.GateState    `json:"state"`
}

type ReloadRequest struct {
	Actor string `json:"actor,omitempty"`
}

type ReloadResponse struct {
	Version         string `json:"version"`
	PreviousVersion string `json:"previous_version,omitempty"`
	Digest          string `json:"digest"`
	Source          string `json:"source"`
	Rules           int    `json:"rules"`
}

// PolicyView is the active policy as reported by the rules endpoint.
type PolicyView struct {
	*model.Policy
	TimeZone string `json:"timezone"`
}

type EventsRequest struct {
	Topic string    `json:"topic,omitempty"`
	Actor string    `json:"actor,omitempty"`
	Since time.Time `json:"since,omitzero"`
	Limit int       `json:"limit,omitempty"`
}

type EventsResponse struct {
	Events []*model.Event `json:"events"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// FieldError describes one problem in a rejected policy document.
type FieldError struct {
	Rule    string `json:"rule,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx HTTP response.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}
