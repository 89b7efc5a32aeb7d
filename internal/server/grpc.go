package server

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GateServiceServer is the gRPC surface of the gate. Messages are
// structpb.Struct values carrying the same JSON shapes as the HTTP API.
type GateServiceServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetOverride(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// GateServiceDesc describes timegate.v1.GateService for grpc.Server.
var GateServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*GateServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: unaryHandler(api.MethodEvaluate, GateServiceServer.Evaluate)},
		{MethodName: "Status", Handler: unaryHandler(api.MethodStatus, GateServiceServer.Status)},
		{MethodName: "SetOverride", Handler: unaryHandler(api.MethodSetOverride, GateServiceServer.SetOverride)},
		{MethodName: "Reload", Handler: unaryHandler(api.MethodReload, GateServiceServer.Reload)},
		{MethodName: "Health", Handler: unaryHandler(api.MethodHealth, GateServiceServer.Health)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timegate/v1/gate.proto",
}

func unaryHandler(fullMethod string, call func(GateServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GateServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GateServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// NewGRPCServer creates a gRPC server with standard interceptors and
// tracing, registers the gate service, health and reflection, and returns
// the server ready to serve.
func NewGRPCServer(gs *GateServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&GateServiceDesc, &grpcGate{gs: gs})

	hs := health.NewServer()
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

// grpcGate adapts GateServer to GateServiceServer.
type grpcGate struct {
	gs *GateServer
}

var _ GateServiceServer = (*grpcGate)(nil)

func (g *grpcGate) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.EvaluateRequest
	if err := api.FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	d := g.gs.OnActionAttempt(ctx, model.ActionAttempt{
		ActorID:     req.ActorID,
		Action:      req.Action,
		Timestamp:   req.Timestamp,
		Permissions: req.Permissions,
	})
	return reply(d)
}

func (g *grpcGate) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(g.gs.Status())
}

func (g *grpcGate) SetOverride(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.OverrideRequest
	if err := api.FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if req.Mode == "" {
		return nil, status.Error(codes.InvalidArgument, "mode is required")
	}
	mode, err := model.ParseOverrideMode(string(req.Mode))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := g.gs.SetOverride(ctx, mode, req.Actor, req.Reason)
	if err != nil {
		return nil, grpcError(err)
	}
	return reply(resp)
}

func (g *grpcGate) Reload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.ReloadRequest
	if err := api.FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	resp, err := g.gs.Reload(ctx, req.Actor)
	if err != nil {
		return nil, grpcError(err)
	}
	return reply(resp)
}

func (g *grpcGate) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(api.HealthResponse{Status: "ok"})
}

func reply(v any) (*structpb.Struct, error) {
	st, err := api.ToStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return st, nil
}

// grpcError maps errors from GateServer methods onto gRPC codes.
func grpcError(err error) error {
	var ie inputError
	switch {
	case errors.As(err, &ie):
		return status.Error(codes.InvalidArgument, ie.Error())
	case isConfigError(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
