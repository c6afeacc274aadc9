// Package poller follows a correlated run until it completes.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"netrunner/internal/actions"
	"netrunner/internal/clock"
)

// ErrPollTimeout means the run was still not completed when the maximum
// polling duration elapsed. The run may still finish remotely.
var ErrPollTimeout = errors.New("run not completed before polling deadline")

// PollTimeoutError carries the last snapshot seen before the deadline.
type PollTimeoutError struct {
	RunID   int64
	Elapsed time.Duration
	Last    *actions.Run
}

func (e *PollTimeoutError) Error() string {
	status := "unknown"
	if e.Last != nil {
		status = string(e.Last.Status)
	}
	return fmt.Sprintf("run %d still %s after %s: outcome unknown", e.RunID, status, e.Elapsed.Round(time.Second))
}

func (e *PollTimeoutError) Unwrap() error {
	return ErrPollTimeout
}

// RunGetter fetches a run by id.
type RunGetter interface {
	GetRun(ctx context.Context, runID int64) (*actions.Run, error)
}

// TransitionFunc is called when the observed status changes.
type TransitionFunc func(from, to actions.Status, run *actions.Run)

// Config tunes polling.
type Config struct {
	Interval             time.Duration
	MaxDuration          time.Duration
	MaxConsecutiveErrors int
	Clock                clock.Clock
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Interval:             15 * time.Second,
		MaxDuration:          60 * time.Minute,
		MaxConsecutiveErrors: 5,
	}
}

// Result is a completed run.
type Result struct {
	Run     *actions.Run
	Polls   int
	Elapsed time.Duration
}

// Conclusion returns the run's conclusion.
func (r *Result) Conclusion() string {
	return r.Run.Conclusion
}

// Poller polls runs to completion.
type Poller struct {
	runs         RunGetter
	cfg          Config
	logger       *slog.Logger
	onTransition TransitionFunc
}

// New creates a Poller.
func New(runs RunGetter, cfg Config, logger *slog.Logger) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = def.MaxDuration
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{runs: runs, cfg: cfg, logger: logger}
}

// OnTransition registers a status change callback.
func (p *Poller) OnTransition(fn TransitionFunc) {
	p.onTransition = fn
}

// Poll blocks until the run completes, MaxDuration elapses or ctx is
// cancelled. Cancelling ctx leaves the remote run untouched.
func (p *Poller) Poll(ctx context.Context, runID int64) (*Result, error) {
	start := p.cfg.Clock.Now()
	deadline := start.Add(p.cfg.MaxDuration)

	state := actions.StatusQueued
	var last *actions.Run
	polls, failures := 0, 0

	for {
		run, err := p.runs.GetRun(ctx, runID)
		switch {
		case err == nil:
			polls++
			failures = 0
			last = run
			if run.Status != state {
				p.logger.Info("run status changed", "run_id", runID, "from", string(state), "to", string(run.Status))
				if p.onTransition != nil {
					p.onTransition(state, run.Status, run)
				}
				state = run.Status
			}
			if run.Completed() {
				return &Result{Run: run, Polls: polls, Elapsed: p.cfg.Clock.Now().Sub(start)}, nil
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, actions.ErrNotFound):
			return nil, fmt.Errorf("polling run %d: %w", runID, err)
		default:
			failures++
			var re *actions.RemoteError
			if errors.As(err, &re) && !re.Temporary() {
				return nil, fmt.Errorf("polling run %d: %w", runID, err)
			}
			if failures >= p.cfg.MaxConsecutiveErrors {
				return nil, fmt.Errorf("polling run %d: giving up after %d consecutive errors: %w", runID, failures, err)
			}
			p.logger.Warn("transient error polling run", "run_id", runID, "failures", failures, "error", err)
		}

		remaining := deadline.Sub(p.cfg.Clock.Now())
		if remaining > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-p.cfg.Clock.After(min(p.cfg.Interval, remaining)):
			}
		}
		// MaxDuration is a hard bound: no GetRun after the deadline.
		if now := p.cfg.Clock.Now(); !now.Before(deadline) {
			return nil, &PollTimeoutError{RunID: runID, Elapsed: now.Sub(start), Last: last}
		}
	}
}
