// Package schedule derives the server-wide open/closed state from the
// active policy, applies manual overrides, and announces upcoming closes.
package schedule

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alfredjeanlab/timegate/internal/model"
)

// SystemActor is the actor id used when evaluating the server state.
const SystemActor = "timegate"

// Evaluator is the subset of *gate.Engine the manager needs.
type Evaluator interface {
	Evaluate(actorID, action string, now time.Time) model.Decision
	Remaining(action string, now time.Time) (time.Duration, string, bool)
	Policy() *model.Policy
}

// Transition describes a change of gate state.
type Transition struct {
	From          model.GateState
	To            model.GateState
	Override      model.OverrideMode
	PolicyVersion string
	Reason        string
	At            time.Time
}

// Warning announces that the gate closes soon.
type Warning struct {
	MinutesLeft int
	ClosesAt    time.Time
	RuleID      string
}

// Status is a point-in-time view of the manager.
type Status struct {
	State         model.GateState    `json:"state"`
	Override      model.OverrideMode `json:"override"`
	Scheduled     model.GateState    `json:"scheduled"`
	Reason        string             `json:"reason"`
	PolicyVersion string             `json:"policy_version"`
	TimeZone      string             `json:"timezone"`
	ClosesAt      *time.Time         `json:"closes_at,omitempty"`
	CheckedAt     time.Time          `json:"checked_at"`
}

// Manager tracks the gate state. It is safe for concurrent use. Checks are
// serialized and listeners run outside the state lock, in registration
// order. A listener must not trigger another check.
type Manager struct {
	engine   Evaluator
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	checkMu sync.Mutex

	mu       sync.Mutex
	state    model.GateState
	override model.OverrideMode
	sent     map[int]bool

	listenMu     sync.RWMutex
	onTransition []func(Transition)
	onWarning    []func(Warning)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager ticking every interval. The initial state is
// evaluated immediately with no override.
func NewManager(engine Evaluator, interval time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		engine:   engine,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		override: model.OverrideAuto,
		sent:     make(map[int]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state, _ = m.evaluate(m.now())
	return m
}

// OnTransition registers fn to be called after every state change.
func (m *Manager) OnTransition(fn func(Transition)) {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.onTransition = append(m.onTransition, fn)
}

// OnWarning registers fn to be called for every closing warning.
func (m *Manager) OnWarning(fn func(Warning)) {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.onWarning = append(m.onWarning, fn)
}

// State returns the current gate state.
func (m *Manager) State() model.GateState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Override returns the current override mode.
func (m *Manager) Override() model.OverrideMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.override
}

// Status reports the current state alongside what the schedule alone says.
func (m *Manager) Status() Status {
	now := m.now()
	d := m.engine.Evaluate(SystemActor, model.ActionLogin, now)
	p := m.engine.Policy()

	m.mu.Lock()
	st := Status{
		State:         m.state,
		Override:      m.override,
		Scheduled:     stateOf(d.Allowed),
		Reason:        d.Reason,
		PolicyVersion: p.Version,
		TimeZone:      p.TimeZone(),
		CheckedAt:     now,
	}
	m.mu.Unlock()

	if left, _, ok := m.engine.Remaining(model.ActionLogin, now); ok && st.Override == model.OverrideAuto {
		at := now.Add(left)
		st.ClosesAt = &at
	}
	return st
}

// SetOverride changes the override mode and re-evaluates immediately.
// It reports the previous mode.
func (m *Manager) SetOverride(mode model.OverrideMode) model.OverrideMode {
	m.mu.Lock()
	prev := m.override
	m.override = mode
	m.mu.Unlock()

	if prev != mode {
		m.logger.Info("schedule: override changed", "from", prev, "to", mode)
	}
	m.check(false)
	return prev
}

// Reset sets the override and adopts the resulting state without notifying
// listeners. It is meant for startup, before Start.
func (m *Manager) Reset(mode model.OverrideMode) {
	m.mu.Lock()
	m.override = mode
	clear(m.sent)
	m.mu.Unlock()

	state, _ := m.evaluate(m.now())

	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// Reevaluate forgets sent warnings and re-checks the state, e.g. after a
// policy reload.
func (m *Manager) Reevaluate() {
	m.mu.Lock()
	clear(m.sent)
	m.mu.Unlock()
	m.check(false)
}

// Tick runs one scheduled check: state transition plus warnings.
func (m *Manager) Tick() {
	m.check(true)
}

// Start begins ticking at the configured interval.
func (m *Manager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.logger.Info("schedule: started", "state", m.State(), "interval", m.interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Tick()
			}
		}
	}()
}

// Stop halts ticking and waits for an in-flight tick to finish.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func stateOf(open bool) model.GateState {
	if open {
		return model.StateOpen
	}
	return model.StateClosed
}

// evaluate returns the state override and schedule imply at now.
// Callers must not hold mu.
func (m *Manager) evaluate(now time.Time) (model.GateState, string) {
	m.mu.Lock()
	override := m.override
	m.mu.Unlock()

	switch override {
	case model.OverrideForceOpen:
		return model.StateOpen, "override force_open"
	case model.OverrideForceClosed:
		return model.StateClosed, "override force_closed"
	}
	d := m.engine.Evaluate(SystemActor, model.ActionLogin, now)
	return stateOf(d.Allowed), d.Reason
}

func (m *Manager) check(warn bool) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	now := m.now()
	next, reason := m.evaluate(now)

	m.mu.Lock()
	var tr *Transition
	if next != m.state {
		tr = &Transition{
			From:          m.state,
			To:            next,
			Override:      m.override,
			PolicyVersion: m.engine.Policy().Version,
			Reason:        reason,
			At:            now,
		}
		m.state = next
		clear(m.sent)
	}
	var w *Warning
	if warn && m.state == model.StateOpen && m.override == model.OverrideAuto {
		w = m.nextWarningLocked(now)
	}
	m.mu.Unlock()

	m.listenMu.RLock()
	defer m.listenMu.RUnlock()
	if tr != nil {
		m.logger.Info("schedule: gate state changed", "from", tr.From, "to", tr.To, "reason", tr.Reason)
		for _, fn := range m.onTransition {
			fn(*tr)
		}
	}
	if w != nil {
		m.logger.Info("schedule: closing warning", "minutes_left", w.MinutesLeft, "rule", w.RuleID)
		for _, fn := range m.onWarning {
			fn(*w)
		}
	}
}

// nextWarningLocked picks the first configured interval, in policy order,
// that covers the time left and has not been announced yet. At most one
// warning goes out per check, so a late start announces the skipped
// intervals on the following ticks.
func (m *Manager) nextWarningLocked(now time.Time) *Warning {
	left, ruleID, ok := m.engine.Remaining(model.ActionLogin, now)
	if !ok {
		return nil
	}
	minutes := max(1, int(math.Ceil(left.Minutes())))

	for _, iv := range m.engine.Policy().WarningMinutes {
		if iv < minutes || m.sent[iv] {
			continue
		}
		m.sent[iv] = true
		return &Warning{MinutesLeft: minutes, ClosesAt: now.Add(left), RuleID: ruleID}
	}
	return nil
}
