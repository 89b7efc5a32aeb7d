package client

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCClient implements GateClient using the gRPC transport. The gRPC
// service carries evaluation and administration; presence, rules and the
// audit log return ErrUnsupported.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

var _ GateClient = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// invoke sends req as a structpb.Struct and decodes the reply into out.
func (c *GRPCClient) invoke(ctx context.Context, method string, req, out any) error {
	in, err := api.ToStruct(req)
	if err != nil {
		return err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, reply); err != nil {
		return err
	}
	return api.FromStruct(reply, out)
}

func (c *GRPCClient) Evaluate(ctx context.Context, req *api.EvaluateRequest) (*model.Decision, error) {
	var d model.Decision
	if err := c.invoke(ctx, api.MethodEvaluate, req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *GRPCClient) Status(ctx context.Context) (*api.StatusResponse, error) {
	var st api.StatusResponse
	if err := c.invoke(ctx, api.MethodStatus, struct{}{}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *GRPCClient) SetOverride(ctx context.Context, req *api.OverrideRequest) (*api.OverrideResponse, error) {
	var resp api.OverrideResponse
	if err := c.invoke(ctx, api.MethodSetOverride, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Reload(ctx context.Context, actor string) (*api.ReloadResponse, error) {
	var resp api.ReloadResponse
	if err := c.invoke(ctx, api.MethodReload, api.ReloadRequest{Actor: actor}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp api.HealthResponse
	if err := c.invoke(ctx, api.MethodHealth, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *GRPCClient) Login(context.Context, *api.LoginRequest) (*api.LoginResult, error) {
	return nil, fmt.Errorf("login: %w", ErrUnsupported)
}

func (c *GRPCClient) MOTD(context.Context) (*api.MOTD, error) {
	return nil, fmt.Errorf("motd: %w", ErrUnsupported)
}

func (c *GRPCClient) Join(context.Context, *api.PresenceRequest) (*api.PresenceResponse, error) {
	return nil, fmt.Errorf("join: %w", ErrUnsupported)
}

func (c *GRPCClient) Quit(context.Context, *api.PresenceRequest) (*api.PresenceResponse, error) {
	return nil, fmt.Errorf("quit: %w", ErrUnsupported)
}

func (c *GRPCClient) Roster(context.Context) (*api.Roster, error) {
	return nil, fmt.Errorf("roster: %w", ErrUnsupported)
}

func (c *GRPCClient) Rules(context.Context) (*api.PolicyView, error) {
	return nil, fmt.Errorf("rules: %w", ErrUnsupported)
}

func (c *GRPCClient) ListEvents(context.Context, *api.EventsRequest) (*api.EventsResponse, error) {
	return nil, fmt.Errorf("events: %w", ErrUnsupported)
}
