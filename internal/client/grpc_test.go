package client

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// fakeGateService records requests and answers with canned structs.
type fakeGateService struct {
	lastMethod string
	lastReq    map[string]any
	lastAuth   string
	reply      any
	err        error
}

func (f *fakeGateService) handle(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	f.lastMethod = method
	f.lastReq = in.AsMap()
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("authorization"); len(v) > 0 {
			f.lastAuth = v[0]
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return api.ToStruct(f.reply)
}

func (f *fakeGateService) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return f.handle(ctx, "Evaluate", in)
}

func (f *fakeGateService) Status(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return f.handle(ctx, "Status", in)
}

func (f *fakeGateService) SetOverride(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return f.handle(ctx, "SetOverride", in)
}

func (f *fakeGateService) Reload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return f.handle(ctx, "Reload", in)
}

func (f *fakeGateService) Health(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return f.handle(ctx, "Health", in)
}

func newTestGRPCClient(t *testing.T, svc server.GateServiceServer, token string) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&server.GateServiceDesc, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", token,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGRPCClient_Evaluate(t *testing.T) {
	svc := &fakeGateService{reply: model.Decision{Allowed: false, Reason: "closed", MatchedRuleID: "night"}}
	c := newTestGRPCClient(t, svc, "")

	d, err := c.Evaluate(context.Background(), &api.EvaluateRequest{ActorID: "steve", Action: "chat", Permissions: []string{"fly"}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if svc.lastMethod != "Evaluate" || svc.lastReq["actor_id"] != "steve" || svc.lastReq["action"] != "chat" {
		t.Fatalf("request = %s %v", svc.lastMethod, svc.lastReq)
	}
	if d.Allowed || d.MatchedRuleID != "night" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestGRPCClient_SetOverrideAndReload(t *testing.T) {
	svc := &fakeGateService{reply: api.OverrideResponse{Previous: model.OverrideAuto, State: model.StateOpen}}
	c := newTestGRPCClient(t, svc, "secret")
	ctx := context.Background()

	resp, err := c.SetOverride(ctx, &api.OverrideRequest{Mode: model.OverrideForceOpen, Actor: "ops"})
	if err != nil {
		t.Fatal(err)
	}
	if svc.lastReq["mode"] != "force_open" || svc.lastAuth != "Bearer secret" {
		t.Fatalf("request = %v auth=%q", svc.lastReq, svc.lastAuth)
	}
	if resp.State != model.StateOpen {
		t.Fatalf("response = %+v", resp)
	}

	svc.reply = api.ReloadResponse{Version: "pv-2", PreviousVersion: "pv-1", Rules: 3}
	rr, err := c.Reload(ctx, "ops")
	if err != nil {
		t.Fatal(err)
	}
	if svc.lastMethod != "Reload" || svc.lastReq["actor"] != "ops" || rr.Rules != 3 || rr.Version != "pv-2" {
		t.Fatalf("reload = %+v req=%v", rr, svc.lastReq)
	}
}

func TestGRPCClient_StatusAndHealth(t *testing.T) {
	svc := &fakeGateService{reply: api.StatusResponse{PolicySource: "file:timegate.toml", Online: 4}}
	c := newTestGRPCClient(t, svc, "")
	ctx := context.Background()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Online != 4 || st.PolicySource != "file:timegate.toml" {
		t.Fatalf("status = %+v", st)
	}

	svc.reply = api.HealthResponse{Status: "ok"}
	if s, err := c.Health(ctx); err != nil || s != "ok" {
		t.Fatalf("Health = %q, %v", s, err)
	}
}

func TestGRPCClient_ErrorPassthrough(t *testing.T) {
	svc := &fakeGateService{err: status.Error(codes.FailedPrecondition, "invalid configuration")}
	c := newTestGRPCClient(t, svc, "")

	_, err := c.Reload(context.Background(), "")
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %v (%v)", status.Code(err), err)
	}
}

func TestGRPCClient_Unsupported(t *testing.T) {
	c := newTestGRPCClient(t, &fakeGateService{}, "")
	ctx := context.Background()

	for name, call := range map[string]func() error{
		"Login":      func() error { _, err := c.Login(ctx, &api.LoginRequest{}); return err },
		"MOTD":       func() error { _, err := c.MOTD(ctx); return err },
		"Join":       func() error { _, err := c.Join(ctx, &api.PresenceRequest{}); return err },
		"Quit":       func() error { _, err := c.Quit(ctx, &api.PresenceRequest{}); return err },
		"Roster":     func() error { _, err := c.Roster(ctx); return err },
		"Rules":      func() error { _, err := c.Rules(ctx); return err },
		"ListEvents": func() error { _, err := c.ListEvents(ctx, &api.EventsRequest{}); return err },
	} {
		if err := call(); !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s error = %v, want ErrUnsupported", name, err)
		}
	}
}
