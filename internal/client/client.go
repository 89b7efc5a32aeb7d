// Package client provides a transport-agnostic interface for the timegate
// service with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/model"
)

// ErrUnsupported is returned by transports that do not carry an operation.
var ErrUnsupported = errors.New("operation not supported by this transport")

// GateClient is the interface that tg commands use to talk to a timegate
// server. It is implemented by HTTPClient (default) and GRPCClient.
type GateClient interface {
	// Host integration
	Evaluate(ctx context.Context, req *api.EvaluateRequest) (*model.Decision, error)
	Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResult, error)
	MOTD(ctx context.Context) (*api.MOTD, error)

	// Presence
	Join(ctx context.Context, req *api.PresenceRequest) (*api.PresenceResponse, error)
	Quit(ctx context.Context, req *api.PresenceRequest) (*api.PresenceResponse, error)
	Roster(ctx context.Context) (*api.Roster, error)

	// Administration
	Status(ctx context.Context) (*api.StatusResponse, error)
	SetOverride(ctx context.Context, req *api.OverrideRequest) (*api.OverrideResponse, error)
	Reload(ctx context.Context, actor string) (*api.ReloadResponse, error)
	Rules(ctx context.Context) (*api.PolicyView, error)

	// Audit log
	ListEvents(ctx context.Context, req *api.EventsRequest) (*api.EventsResponse, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}
