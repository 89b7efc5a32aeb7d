package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/timegate/internal/model"
)

// Loader reads and parses policy documents from a Source.
type Loader struct {
	src Source
}

// NewLoader returns a loader for src.
func NewLoader(src Source) *Loader {
	return &Loader{src: src}
}

// Source returns the underlying source.
func (l *Loader) Source() Source {
	return l.src
}

// Load reads the document and parses it into a new snapshot.
func (l *Loader) Load(ctx context.Context) (*model.Policy, error) {
	data, err := l.src.Read(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(data, l.src.String())
}

// Watcher polls a Source and hands changed documents to a callback.
// A document is considered changed when its digest differs from the one
// reported by current. Read and parse failures are logged and the active
// policy is left alone.
type Watcher struct {
	loader   *Loader
	interval time.Duration
	current  func() string
	onChange func(context.Context, *model.Policy)
	onError  func(context.Context, error)
	logger   *slog.Logger

	// digest of the last document that failed to parse, so a broken file
	// is reported once rather than on every poll.
	failed string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher. current returns the digest of the active
// policy; onChange receives each newly parsed snapshot. onError may be nil.
func NewWatcher(loader *Loader, interval time.Duration, current func() string,
	onChange func(context.Context, *model.Policy), onError func(context.Context, error),
	logger *slog.Logger) *Watcher {
	return &Watcher{
		loader:   loader,
		interval: interval,
		current:  current,
		onChange: onChange,
		onError:  onError,
		logger:   logger,
	}
}

// Start begins polling on each tick.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop cancels the watcher and waits for an in-flight poll to finish.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	src := w.loader.Source()
	data, err := src.Read(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("policy poll failed", "source", src.String(), "err", err)
		}
		return
	}

	digest := Digest(data)
	if digest == w.current() || digest == w.failed {
		return
	}

	p, err := Parse(data, src.String())
	if err != nil {
		w.failed = digest
		w.logger.Error("policy reload rejected", "source", src.String(), "err", err)
		if w.onError != nil {
			w.onError(ctx, err)
		}
		return
	}
	w.failed = ""
	w.logger.Info("policy changed", "source", src.String(), "version", p.Version, "rules", len(p.Rules))
	w.onChange(ctx, p)
}
