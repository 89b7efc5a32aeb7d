package schedule

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/timegate/internal/gate"
	"github.com/alfredjeanlab/timegate/internal/model"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(hour, minute int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// 2026-10-19 is a Monday.
	c.now = time.Date(2026, 10, 19, hour, minute, 0, 0, time.UTC)
}

func businessHours(t *testing.T) *model.Policy {
	t.Helper()
	start, err := model.ParseTimeOfDay("09:00")
	if err != nil {
		t.Fatal(err)
	}
	end, err := model.ParseTimeOfDay("17:00")
	if err != nil {
		t.Fatal(err)
	}
	p := model.EmptyPolicy()
	p.Version = "pv-test"
	p.Location = time.UTC
	p.DefaultMode = model.ModeDeny
	p.WarningMinutes = []int{10, 5, 1}
	p.Rules = []model.GateRule{{
		ID:      "hours",
		Mode:    model.ModeAllow,
		Actions: []string{model.ActionLogin},
		Windows: []model.TimeWindow{{Start: start, End: end}},
	}}
	return p
}

func newTestManager(t *testing.T, hour, minute int) (*Manager, *clock, *[]Transition, *[]Warning) {
	t.Helper()
	c := &clock{}
	c.Set(hour, minute)
	m := NewManager(gate.New(businessHours(t)), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(c.Now))

	var transitions []Transition
	var warnings []Warning
	m.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })
	m.OnWarning(func(w Warning) { warnings = append(warnings, w) })
	return m, c, &transitions, &warnings
}

func TestManager_InitialState(t *testing.T) {
	tests := []struct {
		hour, minute int
		want         model.GateState
	}{
		{8, 59, model.StateClosed},
		{9, 0, model.StateOpen},
		{12, 0, model.StateOpen},
		{17, 0, model.StateOpen},
		{17, 1, model.StateClosed},
	}
	for _, tt := range tests {
		m, _, _, _ := newTestManager(t, tt.hour, tt.minute)
		if got := m.State(); got != tt.want {
			t.Errorf("%02d:%02d state = %s, want %s", tt.hour, tt.minute, got, tt.want)
		}
		if m.Override() != model.OverrideAuto {
			t.Errorf("initial override = %s, want auto", m.Override())
		}
	}
}

func TestManager_TickTransitions(t *testing.T) {
	m, c, transitions, _ := newTestManager(t, 8, 58)

	m.Tick()
	if len(*transitions) != 0 {
		t.Fatalf("unexpected transition while still closed: %+v", *transitions)
	}

	c.Set(9, 0)
	m.Tick()
	if len(*transitions) != 1 {
		t.Fatalf("transitions = %d, want 1", len(*transitions))
	}
	tr := (*transitions)[0]
	if tr.From != model.StateClosed || tr.To != model.StateOpen {
		t.Errorf("transition = %s -> %s, want closed -> open", tr.From, tr.To)
	}
	if tr.PolicyVersion != "pv-test" {
		t.Errorf("policy version = %q", tr.PolicyVersion)
	}

	// Same state on the next tick fires nothing.
	c.Set(9, 1)
	m.Tick()
	if len(*transitions) != 1 {
		t.Fatalf("transitions = %d after steady tick, want 1", len(*transitions))
	}

	c.Set(17, 1)
	m.Tick()
	if len(*transitions) != 2 || (*transitions)[1].To != model.StateClosed {
		t.Fatalf("expected close transition, got %+v", *transitions)
	}
}

func TestManager_Override(t *testing.T) {
	m, c, transitions, _ := newTestManager(t, 20, 0)

	prev := m.SetOverride(model.OverrideForceOpen)
	if prev != model.OverrideAuto {
		t.Errorf("previous override = %s, want auto", prev)
	}
	if m.State() != model.StateOpen {
		t.Fatalf("state = %s, want open under force_open", m.State())
	}
	if len(*transitions) != 1 || (*transitions)[0].Override != model.OverrideForceOpen {
		t.Fatalf("transitions = %+v", *transitions)
	}

	// The schedule no longer drives the state.
	c.Set(21, 0)
	m.Tick()
	if m.State() != model.StateOpen {
		t.Fatalf("force_open did not hold across tick")
	}

	m.SetOverride(model.OverrideForceClosed)
	if m.State() != model.StateClosed {
		t.Fatalf("state = %s, want closed under force_closed", m.State())
	}

	m.SetOverride(model.OverrideAuto)
	if m.State() != model.StateClosed {
		t.Fatalf("state = %s, want closed back on schedule", m.State())
	}
	if len(*transitions) != 2 {
		t.Fatalf("transitions = %d, want 2", len(*transitions))
	}
}

func TestManager_Warnings(t *testing.T) {
	m, c, _, warnings := newTestManager(t, 16, 40)

	m.Tick()
	if len(*warnings) != 0 {
		t.Fatalf("warned with 20 minutes left: %+v", *warnings)
	}

	c.Set(16, 50)
	m.Tick()
	if len(*warnings) != 1 || (*warnings)[0].MinutesLeft != 10 {
		t.Fatalf("warnings = %+v, want one at 10 minutes", *warnings)
	}
	if (*warnings)[0].RuleID != "hours" {
		t.Errorf("rule = %q, want hours", (*warnings)[0].RuleID)
	}

	// Already announced.
	c.Set(16, 52)
	m.Tick()
	if len(*warnings) != 1 {
		t.Fatalf("repeated warning: %+v", *warnings)
	}

	// Three minutes left crosses the five minute mark only once.
	c.Set(16, 57)
	m.Tick()
	m.Tick()
	if len(*warnings) != 2 || (*warnings)[1].MinutesLeft != 3 {
		t.Fatalf("warnings = %+v, want second at 3 minutes", *warnings)
	}

	c.Set(16, 59)
	m.Tick()
	if len(*warnings) != 3 || (*warnings)[2].MinutesLeft != 1 {
		t.Fatalf("warnings = %+v, want third at 1 minute", *warnings)
	}
}

func TestManager_LateStartSendsOneWarningPerTick(t *testing.T) {
	m, c, _, warnings := newTestManager(t, 16, 58)

	// The 10 and 5 minute marks were missed; each goes out on its own tick.
	m.Tick()
	m.Tick()
	m.Tick()
	if len(*warnings) != 2 {
		t.Fatalf("warnings = %+v, want two", *warnings)
	}
	for _, w := range *warnings {
		if w.MinutesLeft != 2 {
			t.Fatalf("warnings = %+v, want all at 2 minutes", *warnings)
		}
	}

	c.Set(16, 59)
	m.Tick()
	if len(*warnings) != 3 || (*warnings)[2].MinutesLeft != 1 {
		t.Fatalf("warnings = %+v, want third at 1 minute", *warnings)
	}
}

func TestManager_WarningsFollowPolicyOrder(t *testing.T) {
	p := businessHours(t)
	p.WarningMinutes = []int{1, 15}
	c := &clock{}
	c.Set(16, 50)
	m := NewManager(gate.New(p), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(c.Now))
	var warnings []Warning
	m.OnWarning(func(w Warning) { warnings = append(warnings, w) })

	m.Tick()
	c.Set(16, 59)
	m.Tick()
	m.Tick()
	if len(warnings) != 2 || warnings[0].MinutesLeft != 10 || warnings[1].MinutesLeft != 1 {
		t.Fatalf("warnings = %+v, want 10 then 1 minutes", warnings)
	}
}

func TestManager_NoWarningsUnderOverride(t *testing.T) {
	m, c, _, warnings := newTestManager(t, 16, 50)
	m.SetOverride(model.OverrideForceOpen)

	c.Set(16, 55)
	m.Tick()
	if len(*warnings) != 0 {
		t.Fatalf("warned under force_open: %+v", *warnings)
	}
}

func TestManager_ReevaluateClearsWarnings(t *testing.T) {
	m, _, _, warnings := newTestManager(t, 16, 55)

	m.Tick()
	m.Reevaluate()
	m.Tick()
	if len(*warnings) != 2 {
		t.Fatalf("warnings = %d, want 2 after reevaluate", len(*warnings))
	}
}

func TestManager_Status(t *testing.T) {
	m, _, _, _ := newTestManager(t, 16, 30)

	st := m.Status()
	if st.State != model.StateOpen || st.Scheduled != model.StateOpen {
		t.Fatalf("status = %+v", st)
	}
	if st.ClosesAt == nil || !st.ClosesAt.Equal(time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC)) {
		t.Errorf("closes at = %v, want 17:00", st.ClosesAt)
	}
	if st.TimeZone != "UTC" {
		t.Errorf("timezone = %q", st.TimeZone)
	}

	m.SetOverride(model.OverrideForceClosed)
	st = m.Status()
	if st.State != model.StateClosed || st.Scheduled != model.StateOpen {
		t.Fatalf("status under override = %+v", st)
	}
	if st.ClosesAt != nil {
		t.Errorf("closes at should be unset under override")
	}
}

func TestManager_StartStop(t *testing.T) {
	c := &clock{}
	c.Set(12, 0)
	m := NewManager(gate.New(businessHours(t)), 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(c.Now))

	ticked := make(chan struct{}, 1)
	m.OnTransition(func(Transition) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})
	m.Start()
	c.Set(18, 0)

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker never fired a transition")
	}
	m.Stop()
	if m.State() != model.StateClosed {
		t.Errorf("state = %s, want closed", m.State())
	}
}

func TestManager_ResetIsSilent(t *testing.T) {
	m, _, transitions, _ := newTestManager(t, 12, 0)

	m.Reset(model.OverrideForceClosed)
	if m.State() != model.StateClosed || m.Override() != model.OverrideForceClosed {
		t.Fatalf("state = %s override = %s", m.State(), m.Override())
	}
	if len(*transitions) != 0 {
		t.Fatalf("reset fired transitions: %+v", *transitions)
	}
}
