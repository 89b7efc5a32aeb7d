// Package store defines persistence for the gate audit log and the manual
// override. Backends register themselves by URL scheme; import them for
// their side effect and call Open.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alfredjeanlab/timegate/internal/model"
)

// Store defines the persistence interface for the gate server.
type Store interface {
	// Audit log
	RecordEvent(ctx context.Context, event *model.Event) error
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error)

	// Manual override. GetOverride returns OverrideAuto when none was ever set.
	GetOverride(ctx context.Context) (*model.Override, error)
	SetOverride(ctx context.Context, o *model.Override) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

// OpenFunc opens a backend for a database URL.
type OpenFunc func(url string) (Store, error)

// ErrUnknownScheme is returned by Open for URLs no backend registered.
var ErrUnknownScheme = errors.New("unknown database scheme")

var (
	mu       sync.RWMutex
	backends = map[string]OpenFunc{}
)

// Register makes a backend available under the given URL schemes.
// It panics if a scheme is registered twice.
func Register(open OpenFunc, schemes ...string) {
	mu.Lock()
	defer mu.Unlock()
	for _, s := range schemes {
		if _, dup := backends[s]; dup {
			panic("store: scheme registered twice: " + s)
		}
		backends[s] = open
	}
}

// Schemes lists the registered URL schemes.
func Schemes() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(backends))
	for s := range backends {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open selects a backend by the scheme of url and opens it.
func Open(url string) (Store, error) {
	scheme, _, ok := strings.Cut(url, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnknownScheme, url)
	}
	mu.RLock()
	open, found := backends[strings.ToLower(scheme)]
	mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownScheme, scheme, strings.Join(Schemes(), ", "))
	}
	return open(url)
}

// EscapeLike escapes LIKE wildcards in s using backslash.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
