// Package archive periodically snapshots the audit log and the manual
// override as JSONL and ships the snapshot to S3 or a git repository.
package archive

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/timegate/internal/store"
)

// Destination is an archive target (S3, git).
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write replaces the archived snapshot with data.
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports the store to its destinations at a fixed interval.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	window       time.Duration
	logger       *slog.Logger
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler exporting the events of the last window
// (all retained events when window is zero) every interval.
func NewScheduler(s store.Store, destinations []Destination, interval, window time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		window:       window,
		logger:       logger,
		now:          time.Now,
	}
}

// Start runs an export immediately, then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for a running export.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.ExportOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExportOnce(ctx)
		}
	}
}

// ExportOnce writes one snapshot to every destination. Failures are logged;
// one failing destination does not stop the others.
func (s *Scheduler) ExportOnce(ctx context.Context) {
	now := s.now()
	var since time.Time
	if s.window > 0 {
		since = now.Add(-s.window)
	}

	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, s.store, &buf, since, now)
	if err != nil {
		s.logger.Error("archive: export failed", "err", err)
		return
	}
	data := buf.Bytes()

	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("archive: destination write failed", "destination", dest.Name(), "err", err)
		}
	}
	s.logger.Info("archive: exported", "destinations", len(s.destinations), "events", n, "bytes", len(data))
}
