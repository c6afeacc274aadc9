// Package deployment drives one dispatch from request to recorded outcome:
// dispatch, correlate, bind, poll and persist.
package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"netrunner/internal/actions"
	"netrunner/internal/correlator"
	"netrunner/internal/history"
	"netrunner/internal/notify"
	"netrunner/internal/poller"
)

// DefaultBindAttempts is how many times a lost bind race is retried.
const DefaultBindAttempts = 3

// Kind is the type of workflow being driven.
type Kind string

const (
	KindLaunch  Kind = "launch"
	KindDestroy Kind = "destroy"
	KindUpscale Kind = "upscale"
	// KindDispatch is a maintenance workflow that is tracked as a run only.
	KindDispatch Kind = "dispatch"
)

// ErrRunFailed means the run completed with a conclusion other than success.
var ErrRunFailed = errors.New("workflow run did not succeed")

// RunFailedError carries the failed run's conclusion.
type RunFailedError struct {
	RunID      int64
	Conclusion string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("workflow run %d failed with conclusion: %s", e.RunID, e.Conclusion)
}

func (e *RunFailedError) Unwrap() error {
	return ErrRunFailed
}

// Remote is the part of the workflow client the orchestrator uses.
type Remote interface {
	Dispatch(ctx context.Context, req actions.DispatchRequest) (*actions.DispatchAck, error)
	RunURL(runID int64) string
}

// Correlator resolves a dispatch to its run.
type Correlator interface {
	Correlate(ctx context.Context, req correlator.Request) (*actions.Run, error)
	Release(runID int64)
}

// Poller waits for a run to complete.
type Poller interface {
	Poll(ctx context.Context, runID int64) (*poller.Result, error)
}

// Store is the part of the history the orchestrator writes.
type Store interface {
	ActiveDeployment(ctx context.Context, name string) (*history.Deployment, error)
	GetDeployment(ctx context.Context, id int64) (*history.Deployment, error)
	RecordDeployment(ctx context.Context, d *history.Deployment) (*history.Deployment, error)
	RecordWorkflowRun(ctx context.Context, r *history.WorkflowRunRecord) (*history.WorkflowRunRecord, error)
	RecordRunOutcome(ctx context.Context, runID int64, status, conclusion string) error
	MarkDestroyed(ctx context.Context, name string) (*history.Deployment, error)
	MarkPosted(ctx context.Context, id int64) (bool, error)
}

// Request is one workflow to drive.
type Request struct {
	Kind         Kind
	WorkflowName string
	Workflow     actions.Workflow
	Ref          string
	Inputs       map[string]string
	// TokenInput names the workflow input that receives the correlation
	// token. Empty when the workflow does not echo a token in its run name.
	TokenInput string

	NetworkName     string
	NetworkID       int
	EnvironmentType string
	Description     string
	RelatedPR       *int

	Wait   bool
	Notify bool
}

// Result is what Execute established, also returned alongside errors
// once a run has been bound.
type Result struct {
	Run        *actions.Run
	Deployment *history.Deployment
	Record     *history.WorkflowRunRecord
	Inputs     map[string]string
	Completed  bool
	Destroyed  bool
	Posted     bool
}

// RunID returns the bound run id, or 0.
func (r *Result) RunID() int64 {
	if r == nil || r.Run == nil {
		return 0
	}
	return r.Run.ID
}

// Options configures an Orchestrator.
type Options struct {
	BindAttempts int
	Notifier     notify.Notifier
	Logger       *slog.Logger
	// NewToken generates correlation tokens; defaults to random UUIDs.
	NewToken func() string
}

// Orchestrator runs the dispatch-correlate-poll-persist cycle.
type Orchestrator struct {
	remote       Remote
	correlator   Correlator
	poller       Poller
	store        Store
	notifier     notify.Notifier
	logger       *slog.Logger
	bindAttempts int
	newToken     func() string
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(remote Remote, corr Correlator, poll Poller, store Store, opts Options) *Orchestrator {
	if opts.BindAttempts <= 0 {
		opts.BindAttempts = DefaultBindAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewToken == nil {
		opts.NewToken = uuid.NewString
	}
	return &Orchestrator{
		remote:       remote,
		correlator:   corr,
		poller:       poll,
		store:        store,
		notifier:     opts.Notifier,
		logger:       opts.Logger,
		bindAttempts: opts.BindAttempts,
		newToken:     opts.NewToken,
	}
}

// Execute dispatches req and follows it. Without req.Wait it returns once
// the run is bound. A non-nil Result accompanies errors raised after
// binding so callers can still report or cancel the run.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	// Check for cancellation before starting
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// Step 1: Refuse a launch whose name is already active
	if req.Kind == KindLaunch {
		existing, err := o.store.ActiveDeployment(ctx, req.NetworkName)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%s is active as deployment %d: %w", req.NetworkName, existing.ID, history.ErrDuplicateActiveName)
		case !errors.Is(err, history.ErrNotFound):
			return nil, err
		}
	}

	// Step 2: Attach a correlation token when the workflow accepts one
	inputs := make(map[string]string, len(req.Inputs)+1)
	for k, v := range req.Inputs {
		inputs[k] = v
	}
	var token string
	if req.TokenInput != "" {
		token = o.newToken()
		inputs[req.TokenInput] = token
	}

	// Step 3: Dispatch
	ack, err := o.remote.Dispatch(ctx, actions.DispatchRequest{
		Workflow: req.Workflow,
		Ref:      req.Ref,
		Inputs:   inputs,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("Workflow dispatched", "workflow", req.WorkflowName, "ref", req.Ref, "network", req.NetworkName)

	// Step 4: Correlate and bind; a lost race excludes the run and retries
	result := &Result{Inputs: inputs}
	if err := o.bind(ctx, req, ack, token, result); err != nil {
		return nil, err
	}

	if !req.Wait {
		return result, nil
	}

	// Step 5: Poll to completion
	polled, err := o.poller.Poll(ctx, result.Run.ID)
	if err != nil {
		var timeout *poller.PollTimeoutError
		if errors.As(err, &timeout) && timeout.Last != nil {
			result.Run = timeout.Last
			o.recordOutcome(ctx, timeout.Last)
		}
		return result, err
	}
	result.Run = polled.Run
	result.Completed = true

	// Step 6: Persist the outcome
	if err := o.store.RecordRunOutcome(ctx, polled.Run.ID, string(polled.Run.Status), polled.Run.Conclusion); err != nil {
		return result, fmt.Errorf("failed to record outcome of run %d: %w", polled.Run.ID, err)
	}
	if result.Deployment != nil {
		if d, err := o.store.GetDeployment(ctx, result.Deployment.ID); err == nil {
			result.Deployment = d
		}
	}

	if !polled.Run.Succeeded() {
		return result, &RunFailedError{RunID: polled.Run.ID, Conclusion: polled.Run.Conclusion}
	}

	// Step 7: A successful destroy frees the name
	if req.Kind == KindDestroy {
		if _, err := o.store.MarkDestroyed(ctx, req.NetworkName); err != nil {
			if !errors.Is(err, history.ErrNotFound) {
				return result, err
			}
			o.logger.Warn("Destroyed network has no active deployment", "network", req.NetworkName)
		} else {
			result.Destroyed = true
		}
	}

	// Step 8: Optionally announce the deployment
	if req.Notify && result.Deployment != nil && o.notifier != nil {
		if err := o.post(ctx, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (o *Orchestrator) bind(ctx context.Context, req Request, ack *actions.DispatchAck, token string, result *Result) error {
	var exclude []int64
	var lastErr error

	for attempt := 1; attempt <= o.bindAttempts; attempt++ {
		run, err := o.correlator.Correlate(ctx, correlator.Request{
			Workflow:     req.Workflow,
			Ref:          req.Ref,
			DispatchedAt: ack.DispatchedAt,
			Token:        token,
			Exclude:      exclude,
		})
		if err != nil {
			return err
		}

		url := run.URL
		if url == "" {
			url = o.remote.RunURL(run.ID)
		}

		err = o.record(ctx, req, run, url, result)
		if err == nil {
			result.Run = run
			o.logger.Info("Run bound", "run_id", run.ID, "url", url, "attempt", attempt)
			return nil
		}

		o.correlator.Release(run.ID)
		if !errors.Is(err, history.ErrRunAlreadyBound) {
			return err
		}
		o.logger.Warn("Lost bind race, correlating again", "run_id", run.ID, "attempt", attempt)
		exclude = append(exclude, run.ID)
		lastErr = err
	}

	return lastErr
}

func (o *Orchestrator) record(ctx context.Context, req Request, run *actions.Run, url string, result *Result) error {
	if req.Kind == KindLaunch {
		d := &history.Deployment{
			Name:            req.NetworkName,
			NetworkID:       req.NetworkID,
			EnvironmentType: req.EnvironmentType,
			Workflow:        req.WorkflowName,
			Ref:             req.Ref,
			RunID:           run.ID,
			RunURL:          url,
			RelatedPR:       req.RelatedPR,
			Inputs:          result.Inputs,
			RunStatus:       string(run.Status),
		}
		if req.Description != "" {
			d.Description = &req.Description
		}
		saved, err := o.store.RecordDeployment(ctx, d)
		if err != nil {
			return err
		}
		result.Deployment = saved
		return nil
	}

	saved, err := o.store.RecordWorkflowRun(ctx, &history.WorkflowRunRecord{
		Workflow:    req.WorkflowName,
		NetworkName: req.NetworkName,
		Ref:         req.Ref,
		RunID:       run.ID,
		RunURL:      url,
		Inputs:      result.Inputs,
		RunStatus:   string(run.Status),
	})
	if err != nil {
		return err
	}
	result.Record = saved
	return nil
}

func (o *Orchestrator) recordOutcome(ctx context.Context, run *actions.Run) {
	if err := o.store.RecordRunOutcome(ctx, run.ID, string(run.Status), run.Conclusion); err != nil {
		o.logger.Warn("Failed to record run status", "run_id", run.ID, "error", err)
	}
}

func (o *Orchestrator) post(ctx context.Context, result *Result) error {
	repost := result.Deployment.Posted
	if err := o.notifier.NotifyDeployment(ctx, notify.NewDeploymentView(result.Deployment, repost)); err != nil {
		return err
	}
	if _, err := o.store.MarkPosted(ctx, result.Deployment.ID); err != nil {
		return err
	}
	result.Posted = true
	return nil
}

func validateRequest(req Request) error {
	switch req.Kind {
	case KindLaunch, KindDestroy, KindUpscale, KindDispatch:
	default:
		return fmt.Errorf("unknown workflow kind %q", req.Kind)
	}
	if req.Workflow == "" {
		return fmt.Errorf("workflow is required")
	}
	if req.Ref == "" {
		return fmt.Errorf("ref is required")
	}
	// Some maintenance workflows act on infrastructure, not a network.
	if req.NetworkName == "" && req.Kind != KindDispatch {
		return fmt.Errorf("network name is required")
	}
	return nil
}
