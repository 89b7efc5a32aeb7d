package presence

import (
	"sync"
	"testing"
	"time"
)

func TestJoin_BasicTracking(t *testing.T) {
	tr := New()

	if !tr.Join("steve", []string{"timegate.bypass"}) {
		t.Fatal("first join should report a new actor")
	}
	if tr.Join("steve", nil) {
		t.Fatal("second join should not report a new actor")
	}

	roster := tr.Roster()
	if len(roster) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(roster))
	}
	e := roster[0]
	if e.ActorID != "steve" {
		t.Errorf("expected actor steve, got %s", e.ActorID)
	}
	if len(e.Permissions) != 0 {
		t.Errorf("rejoin should replace permissions, got %v", e.Permissions)
	}
}

func TestJoin_IgnoresEmptyActor(t *testing.T) {
	tr := New()
	tr.Join("", nil)
	if tr.Count() != 0 {
		t.Fatalf("expected 0 actors for empty id, got %d", tr.Count())
	}
}

func TestJoin_CopiesPermissions(t *testing.T) {
	tr := New()
	perms := []string{"a"}
	tr.Join("steve", perms)
	perms[0] = "mutated"

	e, _ := tr.Get("steve")
	if e.Permissions[0] != "a" {
		t.Errorf("tracker shares caller's slice: %v", e.Permissions)
	}
}

func TestTouch(t *testing.T) {
	tr := New()
	tr.Touch("ghost", "login")
	if tr.Count() != 0 {
		t.Fatal("Touch should not add unknown actors")
	}

	tr.Join("steve", nil)
	tr.Touch("steve", "break_block")
	tr.Touch("steve", "chat")

	e, ok := tr.Get("steve")
	if !ok {
		t.Fatal("steve should be online")
	}
	if e.ActionCount != 2 || e.LastAction != "chat" {
		t.Errorf("entry = %+v", e)
	}
}

func TestQuit(t *testing.T) {
	tr := New()
	tr.Join("steve", nil)

	if !tr.Quit("steve") {
		t.Error("Quit should report steve was online")
	}
	if tr.Quit("steve") {
		t.Error("second Quit should report false")
	}
	if _, ok := tr.Get("steve"); ok {
		t.Error("steve should be offline")
	}
}

func TestRoster_SortedByMostRecent(t *testing.T) {
	tr := New()
	tr.Join("a", nil)
	tr.Join("b", nil)
	tr.Join("c", nil)

	tr.mu.Lock()
	base := time.Now()
	tr.actors["a"].lastSeen = base.Add(-3 * time.Minute)
	tr.actors["b"].lastSeen = base.Add(-1 * time.Minute)
	tr.actors["c"].lastSeen = base.Add(-2 * time.Minute)
	tr.mu.Unlock()

	roster := tr.Roster()
	want := []string{"b", "c", "a"}
	for i, e := range roster {
		if e.ActorID != want[i] {
			t.Errorf("roster[%d] = %s, want %s", i, e.ActorID, want[i])
		}
	}
}

func TestSweep_RemovesStaleActors(t *testing.T) {
	tr := New()
	tr.Join("idle", nil)
	tr.Join("active", nil)

	tr.mu.Lock()
	tr.actors["idle"].lastSeen = time.Now().Add(-20 * time.Minute)
	tr.mu.Unlock()

	var mu sync.Mutex
	var removed []string
	tr.sweep(&ReaperConfig{
		StaleAfter: 15 * time.Minute,
		OnStale: func(id string) {
			mu.Lock()
			removed = append(removed, id)
			mu.Unlock()
		},
	})

	if len(removed) != 1 || removed[0] != "idle" {
		t.Fatalf("removed = %v, want [idle]", removed)
	}
	if _, ok := tr.Get("idle"); ok {
		t.Error("idle should be gone")
	}
	if _, ok := tr.Get("active"); !ok {
		t.Error("active should remain")
	}
}

func TestStartReaper_StopsCleanly(t *testing.T) {
	tr := New()
	tr.StartReaper(&ReaperConfig{SweepInterval: 10 * time.Millisecond})
	time.Sleep(30 * time.Millisecond)
	tr.Stop()
	// Second Stop is a no-op.
	tr.Stop()
}
