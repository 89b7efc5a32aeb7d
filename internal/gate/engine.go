// Package gate evaluates action attempts against the active time-window policy.
//
// The Engine holds the current *model.Policy behind an atomic pointer.
// Evaluate never blocks and never performs I/O; Swap replaces the whole
// snapshot, so an evaluation observes either the old or the new policy
// and never a mix of the two.
package gate

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/timegate/internal/model"
)

// Engine evaluates actions against an atomically swappable policy snapshot.
type Engine struct {
	policy atomic.Pointer[model.Policy]
}

// New returns an engine serving p. A nil policy allows everything.
func New(p *model.Policy) *Engine {
	if p == nil {
		p = model.EmptyPolicy()
	}
	e := &Engine{}
	e.policy.Store(p)
	return e
}

// Policy returns the active snapshot. Callers must not modify it.
func (e *Engine) Policy() *model.Policy {
	return e.policy.Load()
}

// Swap installs p as the active snapshot and returns the previous one.
func (e *Engine) Swap(p *model.Policy) *model.Policy {
	if p == nil {
		p = model.EmptyPolicy()
	}
	return e.policy.Swap(p)
}

// Evaluate decides whether actorID may perform action at now.
func (e *Engine) Evaluate(actorID, action string, now time.Time) model.Decision {
	return Evaluate(e.policy.Load(), actorID, action, now)
}

// Remaining reports how long action stays allowed from now, and the rule
// responsible for the close.
func (e *Engine) Remaining(action string, now time.Time) (time.Duration, string, bool) {
	return Remaining(e.policy.Load(), action, now)
}

// Evaluate applies p to a single attempt. Rules are checked in declaration
// order and the first rule targeting action with a window containing now
// decides. Malformed input is denied rather than reported as an error.
func Evaluate(p *model.Policy, actorID, action string, now time.Time) model.Decision {
	d := model.Decision{
		PolicyVersion: p.Version,
		EvaluatedAt:   now,
	}

	actorID = strings.TrimSpace(actorID)
	action = strings.TrimSpace(action)
	switch {
	case actorID == "":
		d.Reason = "invalid request: actor id is empty"
		return d
	case action == "":
		d.Reason = "invalid request: action is empty"
		return d
	}

	r, allowed := decide(p, action, p.In(now))
	d.Allowed = allowed
	switch {
	case r == nil && allowed:
		d.Reason = "no matching rule, default allow"
	case r == nil:
		d.Reason = "no matching rule, default deny"
	case allowed:
		d.MatchedRuleID = r.ID
		d.Reason = fmt.Sprintf("rule %q allows %q", r.ID, action)
	default:
		d.MatchedRuleID = r.ID
		d.Reason = fmt.Sprintf("rule %q denies %q", r.ID, action)
	}
	return d
}

// decide returns the first rule matching action at the wall-clock instant
// local, or nil when the default applies, and whether action is allowed.
func decide(p *model.Policy, action string, local time.Time) (*model.GateRule, bool) {
	day, t := local.Weekday(), model.TimeOfDayOf(local)
	for i := range p.Rules {
		r := &p.Rules[i]
		if !r.Targets(action) {
			continue
		}
		if _, ok := r.WindowAt(day, t); ok {
			return r, r.Mode == model.ModeAllow
		}
	}
	return nil, p.DefaultMode != model.ModeDeny
}

// remainingHorizon is how many days ahead Remaining looks for a close.
const remainingHorizon = 7

// Remaining reports how long action stays allowed from now. The gate closes
// either when a deny window starts or when the last second of an allow
// window passes; the returned duration runs to that start, or to the
// window's inclusive end. The rule id names the deny rule that takes over,
// or the allow rule that lapses when the default takes over. It reports
// false when action is denied now or stays allowed for the whole horizon.
func Remaining(p *model.Policy, action string, now time.Time) (time.Duration, string, bool) {
	action = strings.TrimSpace(action)
	if action == "" {
		return 0, "", false
	}
	local := p.In(now)
	opener, allowed := decide(p, action, local)
	if !allowed {
		return 0, "", false
	}

	var (
		closeAt time.Time
		ruleID  string
		found   bool
	)
	consider := func(at, probe time.Time) {
		if !probe.After(local) || (found && !at.Before(closeAt)) {
			return
		}
		r, ok := decide(p, action, probe)
		if ok {
			return
		}
		closeAt, found = at, true
		switch {
		case r != nil:
			ruleID = r.ID
		case opener != nil:
			ruleID = opener.ID
		default:
			ruleID = ""
		}
	}

	y, m, d := local.Date()
	loc := local.Location()
	for off := -1; off <= remainingHorizon; off++ {
		for i := range p.Rules {
			r := &p.Rules[i]
			if !r.Targets(action) {
				continue
			}
			for _, w := range r.Windows {
				start := wallClock(y, m, d+off, w.Start, loc)
				end := wallClock(y, m, d+off, w.End, loc)
				consider(start, start)
				consider(end, end.Add(time.Second))
				if w.Wraps() {
					// [00:00, End] and [Start, 24:00) of the same day.
					consider(wallClock(y, m, d+off, 0, loc), wallClock(y, m, d+off, 0, loc))
					next := wallClock(y, m, d+off+1, 0, loc)
					consider(next, next)
				}
			}
		}
	}
	if !found {
		return 0, "", false
	}
	return closeAt.Sub(local), ruleID, true
}

func wallClock(y int, m time.Month, d int, t model.TimeOfDay, loc *time.Location) time.Time {
	secs := int(t)
	return time.Date(y, m, d, secs/3600, (secs%3600)/60, secs%60, 0, loc)
}
