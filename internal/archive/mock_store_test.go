package archive

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/store"
)

// mockStore is a minimal in-memory store for archive tests.
type mockStore struct {
	events   []*model.Event
	override *model.Override
	listErr  error
}

func newMockStore() *mockStore {
	return &mockStore{override: &model.Override{Mode: model.OverrideAuto}}
}

func (m *mockStore) RecordEvent(_ context.Context, e *model.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *mockStore) ListEvents(_ context.Context, f model.EventFilter) ([]*model.Event, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*model.Event
	for _, e := range m.events {
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b *model.Event) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if n := f.EffectiveLimit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *mockStore) GetOverride(context.Context) (*model.Override, error) {
	return m.override, nil
}

func (m *mockStore) SetOverride(_ context.Context, o *model.Override) error {
	m.override = o
	return nil
}

func (m *mockStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }

var errList = errors.New("database is locked")

func nonEmptyLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
