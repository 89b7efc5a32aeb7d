// Package presence tracks which actors are currently online.
//
// The host reports joins and quits; every evaluated action refreshes the
// actor's last-seen time. Hosts that crash never send a quit, so a
// background reaper drops actors idle for longer than a threshold.
package presence

import (
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

// Entry is a snapshot of one online actor.
type Entry struct {
	ActorID     string    `json:"actor_id"`
	Permissions []string  `json:"permissions,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	LastSeen    time.Time `json:"last_seen"`
	LastAction  string    `json:"last_action,omitempty"`
	ActionCount int64     `json:"action_count"`
	IdleSecs    float64   `json:"idle_secs"`
	OnlineSecs  float64   `json:"online_secs"`
}

// ReaperConfig configures the background stale-actor reaper.
type ReaperConfig struct {
	// StaleAfter is how long an actor may go unseen before removal.
	// Default: 15 minutes.
	StaleAfter time.Duration

	// SweepInterval is how often the reaper scans.
	// Default: 60 seconds.
	SweepInterval time.Duration

	// OnStale is called for each removed actor, outside the lock.
	OnStale func(actorID string)
}

// Tracker maintains the in-memory set of online actors.
type Tracker struct {
	mu     sync.RWMutex
	actors map[string]*actorState

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type actorState struct {
	permissions []string
	joinedAt    time.Time
	lastSeen    time.Time
	lastAction  string
	actionCount int64
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{actors: make(map[string]*actorState)}
}

// Join marks actorID online with the given permissions. A repeated join
// replaces the permissions and keeps the original join time. It reports
// whether the actor was previously offline.
func (t *Tracker) Join(actorID string, permissions []string) bool {
	if actorID == "" {
		return false
	}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.actors[actorID]
	if !ok {
		state = &actorState{joinedAt: now}
		t.actors[actorID] = state
	}
	state.permissions = slices.Clone(permissions)
	state.lastSeen = now
	return !ok
}

// Touch records an action by an online actor. Unknown actors are ignored.
func (t *Tracker) Touch(actorID, action string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.actors[actorID]
	if !ok {
		return
	}
	state.lastSeen = time.Now()
	state.lastAction = action
	state.actionCount++
}

// Quit marks actorID offline and reports whether it was online.
func (t *Tracker) Quit(actorID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.actors[actorID]; !ok {
		return false
	}
	delete(t.actors, actorID)
	return true
}

// Get returns the entry for one actor.
func (t *Tracker) Get(actorID string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.actors[actorID]
	if !ok {
		return Entry{}, false
	}
	return state.entry(actorID, time.Now()), true
}

// Count returns the number of online actors.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.actors)
}

// Roster returns every online actor, most recently active first.
func (t *Tracker) Roster() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	entries := make([]Entry, 0, len(t.actors))
	for id, state := range t.actors {
		entries = append(entries, state.entry(id, now))
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].ActorID < entries[j].ActorID
		}
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

func (s *actorState) entry(id string, now time.Time) Entry {
	return Entry{
		ActorID:     id,
		Permissions: slices.Clone(s.permissions),
		JoinedAt:    s.joinedAt,
		LastSeen:    s.lastSeen,
		LastAction:  s.lastAction,
		ActionCount: s.actionCount,
		IdleSecs:    now.Sub(s.lastSeen).Seconds(),
		OnlineSecs:  now.Sub(s.joinedAt).Seconds(),
	}
}

// StartReaper launches a background goroutine that periodically removes
// stale actors. Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"stale_after", cfg.StaleAfter,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := time.Now()
	var stale []string

	t.mu.Lock()
	for id, state := range t.actors {
		if now.Sub(state.lastSeen) > cfg.StaleAfter {
			delete(t.actors, id)
			stale = append(stale, id)
		}
	}
	t.mu.Unlock()

	for _, id := range stale {
		slog.Info("presence: reaper removed stale actor",
			"actor", id,
			"threshold", cfg.StaleAfter)
		if cfg.OnStale != nil {
			cfg.OnStale(id)
		}
	}
}
