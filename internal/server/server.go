package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/events"
	"github.com/alfredjeanlab/timegate/internal/gate"
	"github.com/alfredjeanlab/timegate/internal/hooks"
	"github.com/alfredjeanlab/timegate/internal/idgen"
	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/policy"
	"github.com/alfredjeanlab/timegate/internal/presence"
	"github.com/alfredjeanlab/timegate/internal/schedule"
	"github.com/alfredjeanlab/timegate/internal/store"
	"github.com/alfredjeanlab/timegate/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options tune the background loops of a GateServer. Zero values pick the
// defaults noted on each field.
type Options struct {
	// TickInterval is how often the schedule is re-checked. Default: 60s.
	TickInterval time.Duration
	// PollInterval is how often the policy source is polled for changes.
	// Zero disables polling.
	PollInterval time.Duration
	// PresenceStale is how long an actor may go unseen. Default: 15m.
	PresenceStale time.Duration
	// Now replaces time.Now.
	Now func() time.Time
}

// GateServer ties the gate engine to the host: it owns the active policy,
// the open/closed state, presence, and every side effect of a decision.
type GateServer struct {
	store     store.Store
	publisher events.Publisher
	loader    *policy.Loader
	engine    *gate.Engine
	schedule  *schedule.Manager
	hooks     *hooks.Runner
	sseHub    *sseHub
	logger    *slog.Logger
	opts      Options
	Presence  *presence.Tracker

	reloadMu sync.Mutex

	// setMu orders override changes from the store write through the
	// schedule update. overrideMu guards override alone.
	setMu      sync.Mutex
	overrideMu sync.Mutex
	override   model.Override

	watcher *policy.Watcher
}

// NewGateServer returns a server backed by the given store and publisher.
// The builtin allow-everything policy is active until Enable loads the
// configured one.
func NewGateServer(s store.Store, p events.Publisher, loader *policy.Loader, opts Options) *GateServer {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 60 * time.Second
	}
	if opts.PresenceStale <= 0 {
		opts.PresenceStale = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := slog.Default()
	engine := gate.New(nil)
	gs := &GateServer{
		store:     s,
		publisher: p,
		loader:    loader,
		engine:    engine,
		schedule:  schedule.NewManager(engine, opts.TickInterval, logger, schedule.WithClock(opts.Now)),
		hooks:     hooks.NewRunner(logger),
		sseHub:    newSSEHub(),
		logger:    logger,
		opts:      opts,
		Presence:  presence.New(),
		override:  model.Override{Mode: model.OverrideAuto},
	}
	gs.schedule.OnTransition(gs.handleTransition)
	gs.schedule.OnWarning(gs.handleWarning)
	return gs
}

// Engine exposes the evaluator for read-only use.
func (s *GateServer) Engine() *gate.Engine {
	return s.engine
}

// Enable loads the policy, restores the persisted override and starts the
// background loops. It fails if the policy cannot be loaded.
func (s *GateServer) Enable(ctx context.Context) error {
	p, err := s.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	s.engine.Swap(p)

	o, err := s.store.GetOverride(ctx)
	if err != nil {
		s.logger.Warn("failed to restore override, using auto", "error", err)
		o = &model.Override{Mode: model.OverrideAuto}
	}
	s.overrideMu.Lock()
	s.override = *o
	s.overrideMu.Unlock()

	s.schedule.Reset(o.Mode)
	s.schedule.Start()

	s.Presence.StartReaper(&presence.ReaperConfig{
		StaleAfter: s.opts.PresenceStale,
		OnStale: func(actorID string) {
			s.logger.Info("actor went stale", "actor", actorID)
		},
	})

	if s.opts.PollInterval > 0 {
		s.watcher = policy.NewWatcher(s.loader, s.opts.PollInterval,
			func() string { return s.engine.Policy().Digest },
			func(ctx context.Context, p *model.Policy) {
				s.reloadMu.Lock()
				defer s.reloadMu.Unlock()
				s.applyPolicy(ctx, "watcher", p)
			},
			func(ctx context.Context, err error) { s.reloadFailed(ctx, "watcher", err) },
			s.logger)
		s.watcher.Start()
	}

	s.logger.Info("gate enabled",
		"policy", p.Version,
		"source", p.Source,
		"rules", len(p.Rules),
		"timezone", p.TimeZone(),
		"state", s.schedule.State(),
		"override", o.Mode)
	return nil
}

// Disable stops the background loops and waits for running hooks.
func (s *GateServer) Disable() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.schedule.Stop()
	s.Presence.Stop()
	s.hooks.Wait()
	s.logger.Info("gate disabled")
}

// Reload re-reads the policy source. On failure the previous policy stays
// active and a reload_failed event is recorded.
func (s *GateServer) Reload(ctx context.Context, actor string) (*api.ReloadResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "policy.reload",
		trace.WithAttributes(attribute.String("timegate.actor", actor)))
	defer span.End()

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	p, err := s.loader.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		s.reloadFailed(ctx, actor, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("timegate.policy_version", p.Version))
	old := s.applyPolicy(ctx, actor, p)
	return &api.ReloadResponse{
		Version:         p.Version,
		PreviousVersion: old.Version,
		Digest:          p.Digest,
		Source:          p.Source,
		Rules:           len(p.Rules),
	}, nil
}

// applyPolicy activates p. Callers hold reloadMu.
func (s *GateServer) applyPolicy(ctx context.Context, actor string, p *model.Policy) *model.Policy {
	old := s.engine.Swap(p)
	s.schedule.Reevaluate()
	s.logger.Info("policy reloaded", "version", p.Version, "previous", old.Version, "actor", actor)
	s.recordAndPublish(ctx, events.TopicPolicyReloaded, actor, events.PolicyReloaded{
		Version:         p.Version,
		PreviousVersion: old.Version,
		Digest:          p.Digest,
		Source:          p.Source,
		Rules:           len(p.Rules),
		Actor:           actor,
	})
	return old
}

func (s *GateServer) reloadFailed(ctx context.Context, actor string, err error) {
	s.logger.Error("policy reload failed, keeping previous policy",
		"version", s.engine.Policy().Version, "actor", actor, "error", err)
	s.recordAndPublish(ctx, events.TopicPolicyReloadFailed, actor, events.PolicyReloadFailed{
		Source: s.loader.Source().String(),
		Error:  err.Error(),
		Actor:  actor,
	})
}

// SetOverride persists and applies a manual override. It returns the
// previous mode.
func (s *GateServer) SetOverride(ctx context.Context, mode model.OverrideMode, actor, reason string) (*api.OverrideResponse, error) {
	if !mode.IsValid() {
		return nil, inputError(fmt.Sprintf("invalid override mode %q", mode))
	}
	ctx, span := telemetry.Tracer().Start(ctx, "override.set",
		trace.WithAttributes(attribute.String("timegate.override", string(mode))))
	defer span.End()

	o := model.Override{
		Mode:   mode,
		SetBy:  actor,
		Reason: reason,
		SetAt:  s.opts.Now().UTC(),
	}

	s.setMu.Lock()
	defer s.setMu.Unlock()

	if err := s.store.SetOverride(ctx, &o); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, fmt.Errorf("persist override: %w", err)
	}

	s.overrideMu.Lock()
	s.override = o
	s.overrideMu.Unlock()

	prev := s.schedule.SetOverride(mode)
	s.recordAndPublish(ctx, events.TopicOverrideChanged, actor, events.OverrideChanged{
		Previous: prev,
		Override: o,
	})
	return &api.OverrideResponse{
		Previous: prev,
		Override: o,
		State:    s.schedule.State(),
	}, nil
}

// Status reports the gate state and where it came from.
func (s *GateServer) Status() *api.StatusResponse {
	p := s.engine.Policy()
	s.overrideMu.Lock()
	o := s.override
	s.overrideMu.Unlock()

	resp := &api.StatusResponse{
		Status:         s.schedule.Status(),
		OverrideSetBy:  o.SetBy,
		OverrideReason: o.Reason,
		PolicySource:   p.Source,
		PolicyLoadedAt: p.LoadedAt,
		Online:         s.Presence.Count(),
	}
	if !o.SetAt.IsZero() {
		at := o.SetAt
		resp.OverrideSetAt = &at
	}
	return resp
}

// Rules returns the active policy.
func (s *GateServer) Rules() *api.PolicyView {
	p := s.engine.Policy()
	return &api.PolicyView{Policy: p, TimeZone: p.TimeZone()}
}

// ListEvents returns audit log entries, newest first.
func (s *GateServer) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	evts, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	return evts, nil
}

// recordAndPublish persists an event to the store and publishes it to NATS.
// Both operations are best-effort; failures are logged but do not block the caller.
func (s *GateServer) recordAndPublish(ctx context.Context, topic, actor string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event", "topic", topic, "actor", actor, "error", err)
		return
	}
	id, err := idgen.Event()
	if err != nil {
		s.logger.Warn("failed to generate event id", "topic", topic, "error", err)
		return
	}
	if err := s.store.RecordEvent(ctx, &model.Event{
		ID:        id,
		Topic:     topic,
		Actor:     actor,
		Payload:   payload,
		CreatedAt: s.opts.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to record event", "topic", topic, "actor", actor, "error", err)
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "actor", actor, "error", err)
	}
	s.sseHub.broadcast(topic, payload)
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// isConfigError reports whether err means the policy document was rejected.
func isConfigError(err error) bool {
	return errors.Is(err, policy.ErrInvalidConfiguration) || errors.Is(err, policy.ErrUnknownTimeZone)
}

// configDetails flattens the per-field problems of a rejected document.
func configDetails(err error) []api.FieldError {
	var details []api.FieldError
	for _, ce := range policy.ConfigErrors(err) {
		details = append(details, api.FieldError{Rule: ce.Rule, Field: ce.Field, Message: ce.Message})
	}
	return details
}
