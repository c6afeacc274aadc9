// Package correlator finds the run a workflow_dispatch created.
//
// GitHub does not return a run id from a dispatch. The correlator lists
// recent runs of the workflow on a short interval and picks the earliest
// unclaimed run on the requested ref created no earlier than the dispatch
// time minus a clock skew tolerance. When the workflow puts a per-dispatch
// token in its run name, only runs carrying that token qualify.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"netrunner/internal/actions"
	"netrunner/internal/clock"
)

// ErrCorrelationTimeout means no matching run appeared within the window.
var ErrCorrelationTimeout = errors.New("no matching run appeared before the correlation window closed")

// RunLister lists recent runs of a workflow, newest first.
type RunLister interface {
	ListRuns(ctx context.Context, workflow actions.Workflow, ref string, since time.Time) ([]actions.Run, error)
}

// BoundChecker reports whether a run is already bound in the durable store.
type BoundChecker interface {
	IsRunBound(ctx context.Context, runID int64) (bool, error)
}

// Config tunes the search.
type Config struct {
	Interval time.Duration
	Window   time.Duration
	Skew     time.Duration
	Clock    clock.Clock
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 2 * time.Second,
		Window:   60 * time.Second,
		Skew:     10 * time.Second,
	}
}

// Request describes the dispatch to correlate.
type Request struct {
	Workflow     actions.Workflow
	Ref          string
	DispatchedAt time.Time
	// Token, when set, must appear in the run's display title.
	Token string
	// Exclude lists runs known to belong to someone else.
	Exclude []int64
}

// Correlator resolves dispatches to runs.
type Correlator struct {
	runs   RunLister
	bound  BoundChecker
	claims *Claims
	cfg    Config
	logger *slog.Logger
}

// New creates a Correlator. bound may be nil.
func New(runs RunLister, bound BoundChecker, cfg Config, logger *slog.Logger) *Correlator {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		runs:   runs,
		bound:  bound,
		claims: NewClaims(),
		cfg:    cfg,
		logger: logger,
	}
}

// Correlate polls until it finds the run req created, the window closes,
// or ctx is cancelled. The returned run is claimed in this process.
func (c *Correlator) Correlate(ctx context.Context, req Request) (*actions.Run, error) {
	excluded := make(map[int64]bool, len(req.Exclude))
	for _, id := range req.Exclude {
		excluded[id] = true
	}

	since := req.DispatchedAt.Add(-c.cfg.Skew)
	deadline := c.cfg.Clock.Now().Add(c.cfg.Window)

	for attempt := 1; ; attempt++ {
		runs, err := c.runs.ListRuns(ctx, req.Workflow, req.Ref, since)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("correlating dispatch of %s: %w", req.Workflow, err)
		}

		run, err := c.pick(ctx, Candidates(runs, req, c.cfg.Skew), excluded)
		if err != nil {
			return nil, err
		}
		if run != nil {
			c.logger.Info("correlated dispatch",
				"workflow", req.Workflow.String(),
				"ref", req.Ref,
				"run_id", run.ID,
				"attempt", attempt,
				"offset", run.CreatedAt.Sub(req.DispatchedAt).String())
			return run, nil
		}

		c.logger.Debug("no matching run yet",
			"workflow", req.Workflow.String(),
			"runs_seen", len(runs),
			"attempt", attempt)

		remaining := deadline.Sub(c.cfg.Clock.Now())
		if remaining > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.cfg.Clock.After(min(c.cfg.Interval, remaining)):
			}
		}
		// No listing once the window has closed.
		if !c.cfg.Clock.Now().Before(deadline) {
			return nil, fmt.Errorf("%s on %s after %d attempts: %w", req.Workflow, req.Ref, attempt, ErrCorrelationTimeout)
		}
	}
}

// Release drops the in-process claim on runID.
func (c *Correlator) Release(runID int64) {
	c.claims.Release(runID)
}

func (c *Correlator) pick(ctx context.Context, cands []Candidate, excluded map[int64]bool) (*actions.Run, error) {
	for i := range cands {
		run := cands[i].Run
		if excluded[run.ID] || c.claims.Claimed(run.ID) {
			continue
		}
		if c.bound != nil {
			bound, err := c.bound.IsRunBound(ctx, run.ID)
			if err != nil {
				return nil, fmt.Errorf("checking binding of run %d: %w", run.ID, err)
			}
			if bound {
				excluded[run.ID] = true
				continue
			}
		}
		if !c.claims.TryClaim(run.ID) {
			continue
		}
		return &run, nil
	}
	return nil, nil
}
