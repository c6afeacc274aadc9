package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"netrunner/internal/actions"
	"netrunner/internal/history"
	"netrunner/internal/metrics"
)

const refreshConcurrency = 4

// RunGetter fetches the current state of a run.
type RunGetter interface {
	GetRun(ctx context.Context, runID int64) (*actions.Run, error)
}

// RefreshStore is the part of the history the refresher reads and writes.
type RefreshStore interface {
	ListWorkflowRuns(ctx context.Context, filter history.WorkflowRunFilter) ([]history.WorkflowRunRecord, error)
	ListDeployments(ctx context.Context, filter history.DeploymentFilter) ([]history.Deployment, error)
	RecordRunOutcome(ctx context.Context, runID int64, status, conclusion string) error
}

// RefreshSummary counts what one refresh pass did.
type RefreshSummary struct {
	Checked   int
	Updated   int
	Completed int
	Failed    int
}

// Refresher brings stored run snapshots up to date with GitHub.
type Refresher struct {
	runs    RunGetter
	store   RefreshStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRefresher creates a Refresher. m may be nil.
func NewRefresher(runs RunGetter, store RefreshStore, m *metrics.Metrics, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{runs: runs, store: store, metrics: m, logger: logger}
}

// RefreshAll re-fetches every unfinished run. Failures on individual runs
// are logged and counted, not returned.
func (r *Refresher) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	pending, err := r.store.ListWorkflowRuns(ctx, history.WorkflowRunFilter{Unfinished: true})
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("failed to list unfinished runs: %w", err)
	}

	var (
		mu      sync.Mutex
		summary RefreshSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	for _, rec := range pending {
		g.Go(func() error {
			changed, completed, err := r.refresh(gctx, rec.RunID, rec.RunStatus, rec.RunConclusion)

			mu.Lock()
			defer mu.Unlock()
			summary.Checked++
			if err != nil {
				summary.Failed++
				r.logger.Warn("Failed to refresh run", "run_id", rec.RunID, "error", err)
				return nil
			}
			if changed {
				summary.Updated++
			}
			if completed {
				summary.Completed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	r.updateGauges(ctx)
	return summary, nil
}

// RefreshRun re-fetches a single run and stores its state.
func (r *Refresher) RefreshRun(ctx context.Context, runID int64) (*actions.Run, error) {
	run, err := r.runs.GetRun(ctx, runID)
	if err != nil {
		r.metrics.RefreshResult("error")
		return nil, err
	}
	r.metrics.RefreshResult("ok")

	if err := r.store.RecordRunOutcome(ctx, runID, string(run.Status), run.Conclusion); err != nil {
		return nil, err
	}
	if run.Completed() {
		r.metrics.RunCompleted(run.Conclusion)
	}
	return run, nil
}

// Run refreshes on every tick until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := r.RefreshAll(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			r.logger.Error("Refresh failed", "error", err)
		case summary.Checked > 0:
			r.logger.Info("Refreshed runs",
				"checked", summary.Checked,
				"updated", summary.Updated,
				"completed", summary.Completed,
				"failed", summary.Failed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Refresher) refresh(ctx context.Context, runID int64, status string, conclusion *string) (changed, completed bool, err error) {
	run, err := r.runs.GetRun(ctx, runID)
	if err != nil {
		r.metrics.RefreshResult("error")
		return false, false, err
	}
	r.metrics.RefreshResult("ok")

	prev := ""
	if conclusion != nil {
		prev = *conclusion
	}
	if string(run.Status) == status && run.Conclusion == prev {
		return false, false, nil
	}

	if err := r.store.RecordRunOutcome(ctx, runID, string(run.Status), run.Conclusion); err != nil {
		return false, false, err
	}
	if run.Completed() {
		r.metrics.RunCompleted(run.Conclusion)
		return true, true, nil
	}
	return true, false, nil
}

func (r *Refresher) updateGauges(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	active, err := r.store.ListDeployments(ctx, history.DeploymentFilter{ActiveOnly: true})
	if err != nil {
		r.logger.Warn("Failed to count deployments", "error", err)
		return
	}
	unfinished := 0
	for i := range active {
		if !active[i].Finished() {
			unfinished++
		}
	}
	r.metrics.SetDeployments("active", len(active))
	r.metrics.SetDeployments("unfinished", unfinished)
}
