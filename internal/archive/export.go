package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/store"
)

// FormatVersion is written in every snapshot header.
const FormatVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Since      time.Time `json:"since,omitzero"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes a header, the current override and the audit events
// created at or after since, oldest first, as JSONL to w. At most
// model.MaxEventLimit events are written; the newest are kept. It returns
// the number of events written.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, since, now time.Time) (int, error) {
	evts, err := s.ListEvents(ctx, model.EventFilter{Since: since, Limit: model.MaxEventLimit})
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	slices.SortStableFunc(evts, func(a, b *model.Event) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	o, err := s.GetOverride(ctx)
	if err != nil {
		return 0, fmt.Errorf("get override: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    FormatVersion,
		Type:       "header",
		Timestamp:  now.UTC(),
		Since:      since.UTC(),
		EventCount: len(evts),
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}
	if err := enc.Encode(record{Type: "override", Data: o}); err != nil {
		return 0, fmt.Errorf("encode override: %w", err)
	}
	for _, e := range evts {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return 0, fmt.Errorf("encode event %s: %w", e.ID, err)
		}
	}
	return len(evts), nil
}
