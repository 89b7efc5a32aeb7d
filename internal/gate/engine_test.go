package gate

import (
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/timegate/internal/model"
)

func window(t *testing.T, start, end string) model.TimeWindow {
	t.Helper()
	s, err := model.ParseTimeOfDay(start)
	if err != nil {
		t.Fatal(err)
	}
	e, err := model.ParseTimeOfDay(end)
	if err != nil {
		t.Fatal(err)
	}
	return model.TimeWindow{Start: s, End: e}
}

func testPolicy(rules ...model.GateRule) *model.Policy {
	p := model.EmptyPolicy()
	p.Version = "pv-test"
	p.Location = time.UTC
	p.Rules = rules
	return p
}

func at(hour, minute int) time.Time {
	// 2026-10-19 is a Monday.
	return time.Date(2026, 10, 19, hour, minute, 0, 0, time.UTC)
}

func TestEvaluate_DefaultAllow(t *testing.T) {
	e := New(testPolicy())
	for _, now := range []time.Time{at(0, 0), at(12, 34), at(23, 59)} {
		d := e.Evaluate("steve", "break_block", now)
		if !d.Allowed {
			t.Fatalf("expected allowed at %v", now)
		}
		if d.Reason != "no matching rule, default allow" {
			t.Errorf("reason = %q", d.Reason)
		}
		if d.MatchedRuleID != "" {
			t.Errorf("matched rule = %q, want empty", d.MatchedRuleID)
		}
	}
}

func TestEvaluate_DefaultDeny(t *testing.T) {
	p := testPolicy()
	p.DefaultMode = model.ModeDeny
	d := Evaluate(p, "steve", "login", at(10, 0))
	if d.Allowed || d.Reason != "no matching rule, default deny" {
		t.Fatalf("got %+v, want default deny", d)
	}
}

func TestEvaluate_DenyWindowWrapping(t *testing.T) {
	e := New(testPolicy(model.GateRule{
		ID:      "night",
		Mode:    model.ModeDeny,
		Actions: []string{"break_block"},
		Windows: []model.TimeWindow{window(t, "22:00", "06:00")},
	}))

	d := e.Evaluate("steve", "break_block", at(23, 0))
	if d.Allowed {
		t.Fatal("expected deny at 23:00")
	}
	if d.MatchedRuleID != "night" {
		t.Errorf("matched rule = %q, want night", d.MatchedRuleID)
	}
	if d.PolicyVersion != "pv-test" {
		t.Errorf("policy version = %q", d.PolicyVersion)
	}

	if d := e.Evaluate("steve", "break_block", at(12, 0)); !d.Allowed {
		t.Errorf("expected allow at noon, got %+v", d)
	}
	if d := e.Evaluate("steve", "chat", at(23, 0)); !d.Allowed {
		t.Errorf("untargeted action should fall through to default, got %+v", d)
	}
}

func TestEvaluate_InclusiveEnd(t *testing.T) {
	e := New(testPolicy(model.GateRule{
		ID:      "office",
		Mode:    model.ModeDeny,
		Actions: []string{"login"},
		Windows: []model.TimeWindow{window(t, "09:00", "17:00")},
	}))
	if d := e.Evaluate("steve", "login", at(17, 0)); d.Allowed || d.MatchedRuleID != "office" {
		t.Fatalf("17:00 should be inside the window, got %+v", d)
	}
	if d := e.Evaluate("steve", "login", at(17, 1)); !d.Allowed {
		t.Fatalf("17:01 should be outside the window, got %+v", d)
	}
}

func TestEvaluate_FirstMatchingRuleWins(t *testing.T) {
	a := model.GateRule{ID: "a", Mode: model.ModeDeny, Actions: []string{"pvp"}, Windows: []model.TimeWindow{window(t, "00:00", "23:59")}}
	b := model.GateRule{ID: "b", Mode: model.ModeAllow, Actions: []string{"pvp"}, Windows: []model.TimeWindow{window(t, "10:00", "11:00")}}

	d := Evaluate(testPolicy(a, b), "steve", "pvp", at(10, 30))
	if d.Allowed || d.MatchedRuleID != "a" {
		t.Fatalf("A declared first should win, got %+v", d)
	}
	d = Evaluate(testPolicy(b, a), "steve", "pvp", at(10, 30))
	if !d.Allowed || d.MatchedRuleID != "b" {
		t.Fatalf("B declared first should win, got %+v", d)
	}
}

func TestEvaluate_MalformedInputDenied(t *testing.T) {
	e := New(testPolicy())
	for _, tc := range []struct{ actor, action string }{
		{"", "login"},
		{"   ", "login"},
		{"steve", ""},
	} {
		d := e.Evaluate(tc.actor, tc.action, at(12, 0))
		if d.Allowed {
			t.Errorf("Evaluate(%q, %q) should deny", tc.actor, tc.action)
		}
		if d.MatchedRuleID != "" {
			t.Errorf("malformed input should not match a rule")
		}
	}
}

func TestEvaluate_UsesPolicyLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	p := testPolicy(model.GateRule{
		ID:      "evening",
		Mode:    model.ModeAllow,
		Actions: []string{"login"},
		Windows: []model.TimeWindow{window(t, "18:00", "23:00")},
	})
	p.Location = tokyo
	p.DefaultMode = model.ModeDeny

	// 10:00 UTC is 19:00 in Tokyo.
	if d := Evaluate(p, "steve", "login", at(10, 0)); !d.Allowed {
		t.Fatalf("expected allow at 19:00 JST, got %+v", d)
	}
	if d := Evaluate(p, "steve", "login", at(18, 0)); d.Allowed {
		t.Fatalf("expected deny at 03:00 JST, got %+v", d)
	}
}

func TestRemaining(t *testing.T) {
	evening := model.GateRule{
		ID:      "evening",
		Mode:    model.ModeAllow,
		Actions: []string{model.ActionLogin},
		Windows: []model.TimeWindow{window(t, "18:00", "23:00")},
	}
	night := model.GateRule{
		ID:      "night",
		Mode:    model.ModeDeny,
		Actions: []string{model.ActionLogin},
		Windows: []model.TimeWindow{window(t, "22:00", "06:00")},
	}
	denyByDefault := func(rules ...model.GateRule) *model.Policy {
		p := testPolicy(rules...)
		p.DefaultMode = model.ModeDeny
		return p
	}

	for _, tc := range []struct {
		name string
		p    *model.Policy
		now  time.Time
		left time.Duration
		rule string
		ok   bool
	}{
		{"AllowWindowEnds", denyByDefault(evening), at(22, 50), 10 * time.Minute, "evening", true},
		{"InclusiveEnd", denyByDefault(evening), at(23, 0), 0, "evening", true},
		{"DeniedNow", denyByDefault(evening), at(12, 0), 0, "", false},
		{"DenyWindowStarts", testPolicy(night), at(21, 45), 15 * time.Minute, "night", true},
		{"DenyWindowTomorrow", testPolicy(night), at(6, 1), 15*time.Hour + 59*time.Minute, "night", true},
		{"NeverCloses", testPolicy(evening), at(22, 50), 0, "", false},
		{"AllowBridgesIntoDefault", testPolicy(evening, night), at(21, 0), 2 * time.Hour, "night", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			left, rule, ok := Remaining(tc.p, model.ActionLogin, tc.now)
			if ok != tc.ok || left != tc.left || rule != tc.rule {
				t.Fatalf("Remaining = %v, %q, %v; want %v, %q, %v", left, rule, ok, tc.left, tc.rule, tc.ok)
			}
		})
	}
}

func TestRemaining_WrappingWindowOnSelectedDays(t *testing.T) {
	onDays := func(w model.TimeWindow, days ...time.Weekday) model.TimeWindow {
		w.Days = model.NewWeekdays(days...)
		return w
	}
	// Tuesday only: denied Tuesday 00:00-02:00 and Tuesday 22:00-24:00.
	tuesdayNight := model.GateRule{
		ID:      "tuesday-night",
		Mode:    model.ModeDeny,
		Actions: []string{model.ActionLogin},
		Windows: []model.TimeWindow{onDays(window(t, "22:00", "02:00"), time.Tuesday)},
	}
	// Monday only: allowed Monday 00:00-02:00 and Monday 20:00-24:00.
	mondayLate := model.GateRule{
		ID:      "monday-late",
		Mode:    model.ModeAllow,
		Actions: []string{model.ActionLogin},
		Windows: []model.TimeWindow{onDays(window(t, "20:00", "02:00"), time.Monday)},
	}
	denyByDefault := testPolicy(mondayLate)
	denyByDefault.DefaultMode = model.ModeDeny

	for _, tc := range []struct {
		name string
		p    *model.Policy
		now  time.Time
		left time.Duration
		rule string
	}{
		{"DenyTailStartsAtMidnight", testPolicy(tuesdayNight), at(23, 0), time.Hour, "tuesday-night"},
		{"AllowEndsAtMidnight", denyByDefault, at(23, 0), time.Hour, "monday-late"},
		{"AllowTailEndsSameMorning", denyByDefault, at(1, 30), 30 * time.Minute, "monday-late"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			left, rule, ok := Remaining(tc.p, model.ActionLogin, tc.now)
			if !ok || left != tc.left || rule != tc.rule {
				t.Fatalf("Remaining = %v, %q, %v; want %v, %q, true", left, rule, ok, tc.left, tc.rule)
			}
		})
	}

	// Monday 01:00 falls in the Monday-only tail, Tuesday 01:00 does not.
	if d := Evaluate(testPolicy(tuesdayNight), "steve", model.ActionLogin, at(1, 0)); !d.Allowed {
		t.Fatalf("Monday 01:00 decision = %+v, want allow", d)
	}
	if d := Evaluate(testPolicy(tuesdayNight), "steve", model.ActionLogin, at(1, 0).AddDate(0, 0, 1)); d.Allowed || d.MatchedRuleID != "tuesday-night" {
		t.Fatalf("Tuesday 01:00 decision = %+v, want tuesday-night deny", d)
	}
}

func TestRemaining_OtherAction(t *testing.T) {
	p := testPolicy(model.GateRule{
		ID:      "night",
		Mode:    model.ModeDeny,
		Actions: []string{"chat"},
		Windows: []model.TimeWindow{window(t, "22:00", "06:00")},
	})
	if _, _, ok := Remaining(p, model.ActionLogin, at(21, 45)); ok {
		t.Fatal("login is never denied by a chat rule")
	}
	if left, _, ok := Remaining(p, "chat", at(21, 45)); !ok || left != 15*time.Minute {
		t.Fatalf("chat Remaining = %v, %v", left, ok)
	}
}

func TestSwap_ReturnsPrevious(t *testing.T) {
	first := testPolicy()
	e := New(first)
	second := testPolicy()
	second.Version = "pv-2"
	if old := e.Swap(second); old != first {
		t.Fatal("Swap should return the previous policy")
	}
	if e.Policy().Version != "pv-2" {
		t.Fatalf("Policy().Version = %q", e.Policy().Version)
	}
}

// Every decision must be consistent with the policy version it reports.
func TestSwap_ConcurrentEvaluationsSeeWholeSnapshots(t *testing.T) {
	allowAll := testPolicy(
		model.GateRule{ID: "a1", Mode: model.ModeAllow, Actions: []string{"x"}, Windows: []model.TimeWindow{window(t, "00:00", "23:59:59")}},
		model.GateRule{ID: "a2", Mode: model.ModeAllow, Actions: []string{"x"}, Windows: []model.TimeWindow{window(t, "00:00", "23:59:59")}},
	)
	allowAll.Version = "old"
	denyAll := testPolicy(
		model.GateRule{ID: "d1", Mode: model.ModeDeny, Actions: []string{"x"}, Windows: []model.TimeWindow{window(t, "00:00", "23:59:59")}},
		model.GateRule{ID: "d2", Mode: model.ModeDeny, Actions: []string{"x"}, Windows: []model.TimeWindow{window(t, "00:00", "23:59:59")}},
	)
	denyAll.Version = "new"

	e := New(allowAll)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				d := e.Evaluate("steve", "x", at(12, 0))
				switch d.PolicyVersion {
				case "old":
					if !d.Allowed || d.MatchedRuleID != "a1" {
						t.Errorf("old snapshot produced %+v", d)
						return
					}
				case "new":
					if d.Allowed || d.MatchedRuleID != "d1" {
						t.Errorf("new snapshot produced %+v", d)
						return
					}
				default:
					t.Errorf("unexpected version %q", d.PolicyVersion)
					return
				}
			}
		}()
	}

	for i := range 1000 {
		if i%2 == 0 {
			e.Swap(denyAll)
		} else {
			e.Swap(allowAll)
		}
	}
	close(stop)
	wg.Wait()
}
