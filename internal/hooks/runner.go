package hooks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/timegate/internal/events"
	"github.com/alfredjeanlab/timegate/internal/model"
)

// Runner executes transition hooks in the background.
type Runner struct {
	logger *slog.Logger
	wg     sync.WaitGroup

	// exec is swapped in tests.
	exec func(ctx context.Context, command string, hooks model.Hooks, env map[string]string) Result
}

// NewRunner creates a runner that logs results to logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		logger: logger,
		exec: func(ctx context.Context, command string, h model.Hooks, env map[string]string) Result {
			return Execute(ctx, command, h.Timeout, env)
		},
	}
}

// Command returns the hook configured for a transition into state.
func Command(h model.Hooks, state model.GateState) string {
	if state == model.StateOpen {
		return h.OnOpen
	}
	return h.OnClose
}

// Env describes a transition to the hook process.
func Env(change events.GateChanged) map[string]string {
	return map[string]string{
		"TIMEGATE_STATE":          string(change.To),
		"TIMEGATE_PREVIOUS_STATE": string(change.From),
		"TIMEGATE_OVERRIDE":       string(change.Override),
		"TIMEGATE_POLICY_VERSION": change.PolicyVersion,
	}
}

// Fire starts the hook for change, if one is configured, without waiting
// for it. It reports whether a command was started. The hook outlives ctx
// cancellation only until its own timeout.
func (r *Runner) Fire(ctx context.Context, h model.Hooks, change events.GateChanged) bool {
	command := Command(h, change.To)
	if command == "" {
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res := r.exec(context.WithoutCancel(ctx), command, h, Env(change))
		if res.Err != nil {
			r.logger.Warn("hooks: transition hook failed",
				"state", change.To, "command", command, "err", res.Err, "output", res.Output)
			return
		}
		r.logger.Info("hooks: transition hook ran",
			"state", change.To, "duration", res.Duration, "output", res.Output)
	}()
	return true
}

// Wait blocks until every started hook has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
