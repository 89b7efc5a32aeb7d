package server

import (
	"context"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/events"
	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/schedule"
)

// OnActionAttempt decides whether an actor may perform an action.
// A force_closed override denies and force_open allows; otherwise the
// policy decides. Actors holding the bypass permission are let through any
// denial. Denials are recorded and published.
func (s *GateServer) OnActionAttempt(ctx context.Context, a model.ActionAttempt) model.Decision {
	now := a.Timestamp
	if now.IsZero() {
		now = s.opts.Now()
	}
	a.ActorID = strings.TrimSpace(a.ActorID)
	a.Action = strings.TrimSpace(a.Action)
	p := s.engine.Policy()

	if a.ActorID == "" || a.Action == "" {
		return s.engine.Evaluate(a.ActorID, a.Action, now)
	}

	var d model.Decision
	switch s.schedule.Override() {
	case model.OverrideForceClosed:
		d = model.Decision{Reason: "override force_closed", PolicyVersion: p.Version, EvaluatedAt: now}
	case model.OverrideForceOpen:
		d = model.Decision{Allowed: true, Reason: "override force_open", PolicyVersion: p.Version, EvaluatedAt: now}
	default:
		d = s.engine.Evaluate(a.ActorID, a.Action, now)
	}

	if !d.Allowed && p.BypassPermission != "" && a.HasPermission(p.BypassPermission) {
		d.Allowed = true
		d.Reason = "bypass permission"
	}

	if d.Allowed {
		s.Presence.Touch(a.ActorID, a.Action)
		return d
	}

	s.recordAndPublish(ctx, events.TopicActionDenied, a.ActorID, events.ActionDenied{
		ActorID:  a.ActorID,
		Action:   a.Action,
		Decision: d,
	})
	return d
}

// OnLogin decides whether an actor may connect. Admitted actors are
// marked online.
func (s *GateServer) OnLogin(ctx context.Context, req api.LoginRequest) api.LoginResult {
	d := s.OnActionAttempt(ctx, model.ActionAttempt{
		ActorID:     req.ActorID,
		Action:      model.ActionLogin,
		Timestamp:   req.Timestamp,
		Permissions: req.Permissions,
	})
	if !d.Allowed {
		return api.LoginResult{Message: s.engine.Policy().Messages.Deny, Decision: d}
	}
	s.Presence.Join(strings.TrimSpace(req.ActorID), req.Permissions)
	return api.LoginResult{Allowed: true, Decision: d}
}

// OnPing returns the server list message for the current state.
func (s *GateServer) OnPing() api.MOTD {
	msgs := s.engine.Policy().Messages
	state := s.schedule.State()
	if state == model.StateOpen {
		return api.MOTD{State: state, Message: msgs.MOTDOpen}
	}
	return api.MOTD{State: state, Message: msgs.MOTDClosed}
}

// OnJoin marks an actor online. It reports whether the actor was offline.
func (s *GateServer) OnJoin(actorID string, permissions []string) bool {
	return s.Presence.Join(strings.TrimSpace(actorID), permissions)
}

// OnQuit marks an actor offline. It reports whether the actor was online.
func (s *GateServer) OnQuit(actorID string) bool {
	return s.Presence.Quit(strings.TrimSpace(actorID))
}

func (s *GateServer) handleTransition(tr schedule.Transition) {
	ctx := context.Background()
	p := s.engine.Policy()
	change := events.GateChanged{
		From:          tr.From,
		To:            tr.To,
		Override:      tr.Override,
		PolicyVersion: tr.PolicyVersion,
		Reason:        tr.Reason,
	}

	topic := events.TopicGateOpened
	if tr.To == model.StateClosed {
		topic = events.TopicGateClosed
	}
	s.recordAndPublish(ctx, topic, schedule.SystemActor, change)
	s.hooks.Fire(ctx, p.Hooks, change)

	if tr.To == model.StateClosed && p.KickOnClose {
		if n := s.kickOnline(ctx, p); n > 0 {
			s.logger.Info("kicked actors on close", "count", n)
		}
	}
}

// kickOnline asks the host to disconnect every online actor without the
// bypass permission and removes them from presence.
func (s *GateServer) kickOnline(ctx context.Context, p *model.Policy) int {
	n := 0
	for _, e := range s.Presence.Roster() {
		if p.BypassPermission != "" && model.HasPermission(e.Permissions, p.BypassPermission) {
			continue
		}
		s.recordAndPublish(ctx, events.TopicActorKick, e.ActorID, events.ActorKick{
			ActorID: e.ActorID,
			Message: p.Messages.Kick,
		})
		s.Presence.Quit(e.ActorID)
		n++
	}
	return n
}

func (s *GateServer) handleWarning(w schedule.Warning) {
	msg := renderWarning(s.engine.Policy().Messages.Warning, w.MinutesLeft)
	s.recordAndPublish(context.Background(), events.TopicGateWarning, schedule.SystemActor, events.GateWarning{
		MinutesLeft: w.MinutesLeft,
		ClosesAt:    w.ClosesAt,
		RuleID:      w.RuleID,
		Message:     msg,
	})
}

func renderWarning(tmpl string, minutes int) string {
	return strings.ReplaceAll(tmpl, "{minutes}", strconv.Itoa(minutes))
}
