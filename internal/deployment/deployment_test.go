package deployment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"netrunner/internal/actions"
	"netrunner/internal/correlator"
	"netrunner/internal/history"
	"netrunner/internal/notify"
	"netrunner/internal/poller"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRemote struct {
	mu         sync.Mutex
	dispatched []actions.DispatchRequest
	err        error
}

func (f *fakeRemote) Dispatch(ctx context.Context, req actions.DispatchRequest) (*actions.DispatchAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.dispatched = append(f.dispatched, req)
	return &actions.DispatchAck{Workflow: req.Workflow, Ref: req.Ref, DispatchedAt: t0}, nil
}

func (f *fakeRemote) RunURL(runID int64) string {
	return actions.RunURL("maidsafe", "sn-testnet-workflows", runID)
}

// fakeCorrelator hands out candidate runs in order, skipping excluded ones.
type fakeCorrelator struct {
	mu       sync.Mutex
	runs     []int64
	requests []correlator.Request
	released []int64
	err      error
}

func (f *fakeCorrelator) Correlate(ctx context.Context, req correlator.Request) (*actions.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	excluded := map[int64]bool{}
	for _, id := range req.Exclude {
		excluded[id] = true
	}
	for _, id := range f.runs {
		if !excluded[id] {
			return &actions.Run{ID: id, Status: actions.StatusQueued, Ref: req.Ref}, nil
		}
	}
	return nil, correlator.ErrCorrelationTimeout
}

func (f *fakeCorrelator) Release(runID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, runID)
}

type fakePoller struct {
	conclusion string
	err        error
	last       *actions.Run
}

func (f *fakePoller) Poll(ctx context.Context, runID int64) (*poller.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.last != nil {
		return nil, &poller.PollTimeoutError{RunID: runID, Elapsed: time.Hour, Last: f.last}
	}
	return &poller.Result{Run: &actions.Run{ID: runID, Status: actions.StatusCompleted, Conclusion: f.conclusion}}, nil
}

type fakeNotifier struct {
	deployments []notify.DeploymentView
	err         error
}

func (f *fakeNotifier) NotifyDeployment(ctx context.Context, v notify.DeploymentView) error {
	if f.err != nil {
		return f.err
	}
	f.deployments = append(f.deployments, v)
	return nil
}

func (f *fakeNotifier) NotifyComparison(ctx context.Context, v notify.ComparisonView) error {
	return nil
}

func newTestHistory(t *testing.T) *history.History {
	t.Helper()
	h, err := history.NewHistory(filepath.Join(t.TempDir(), "netrunner.db"))
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func launchRequest(name string) Request {
	return Request{
		Kind:            KindLaunch,
		WorkflowName:    "launch-network",
		Workflow:        "144945387",
		Ref:             "main",
		Inputs:          map[string]string{"network-name": name},
		NetworkName:     name,
		NetworkID:       3,
		EnvironmentType: "development",
		Wait:            true,
	}
}

func TestExecute_LaunchSuccess(t *testing.T) {
	h := newTestHistory(t)
	remote := &fakeRemote{}
	corr := &fakeCorrelator{runs: []int64{101}}
	n := &fakeNotifier{}
	o := NewOrchestrator(remote, corr, &fakePoller{conclusion: "success"}, h, Options{
		Notifier: n,
		Logger:   quietLogger(),
		NewToken: func() string { return "tok-1" },
	})

	req := launchRequest("DEV-01")
	req.TokenInput = "correlation-id"
	req.Notify = true
	req.Description = "nightly"

	result, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Failed to execute launch: %v", err)
	}

	if result.RunID() != 101 {
		t.Errorf("Expected run 101, got %d", result.RunID())
	}
	if !result.Completed || !result.Posted {
		t.Errorf("Expected completed and posted, got %+v", result)
	}
	if got := remote.dispatched[0].Inputs["correlation-id"]; got != "tok-1" {
		t.Errorf("Expected token input 'tok-1', got %q", got)
	}
	if corr.requests[0].Token != "tok-1" {
		t.Errorf("Expected correlator to receive token, got %q", corr.requests[0].Token)
	}
	if _, ok := req.Inputs["correlation-id"]; ok {
		t.Error("Expected caller's inputs to be left untouched")
	}

	d, err := h.ActiveDeployment(context.Background(), "DEV-01")
	if err != nil {
		t.Fatalf("Failed to load deployment: %v", err)
	}
	if d.RunID != 101 || d.Conclusion() != "success" || !d.Posted {
		t.Errorf("Unexpected stored deployment: %+v", d)
	}
	if d.RunURL != "https://github.com/maidsafe/sn-testnet-workflows/actions/runs/101" {
		t.Errorf("Unexpected run url %q", d.RunURL)
	}
	if len(n.deployments) != 1 || n.deployments[0].Name != "DEV-01" {
		t.Errorf("Expected one notification for DEV-01, got %+v", n.deployments)
	}
}

func TestExecute_DuplicateActiveName(t *testing.T) {
	h := newTestHistory(t)
	remote := &fakeRemote{}
	o := NewOrchestrator(remote, &fakeCorrelator{runs: []int64{1, 2}}, &fakePoller{conclusion: "success"}, h, Options{Logger: quietLogger()})

	if _, err := o.Execute(context.Background(), launchRequest("DEV-02")); err != nil {
		t.Fatalf("Failed to execute first launch: %v", err)
	}

	_, err := o.Execute(context.Background(), launchRequest("DEV-02"))
	if !errors.Is(err, history.ErrDuplicateActiveName) {
		t.Fatalf("Expected ErrDuplicateActiveName, got %v", err)
	}
	if len(remote.dispatched) != 1 {
		t.Errorf("Expected no second dispatch, got %d", len(remote.dispatched))
	}
}

func TestExecute_RetriesLostBindRace(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	// Run 7 already belongs to another dispatch.
	if _, err := h.RecordWorkflowRun(ctx, &history.WorkflowRunRecord{
		Workflow: "upscale-network", NetworkName: "STG-01", Ref: "main", RunID: 7, RunStatus: "queued",
	}); err != nil {
		t.Fatalf("Failed to seed run: %v", err)
	}

	corr := &fakeCorrelator{runs: []int64{7, 8}}
	o := NewOrchestrator(&fakeRemote{}, corr, &fakePoller{conclusion: "success"}, h, Options{Logger: quietLogger()})

	result, err := o.Execute(ctx, launchRequest("DEV-03"))
	if err != nil {
		t.Fatalf("Failed to execute launch: %v", err)
	}
	if result.RunID() != 8 {
		t.Errorf("Expected run 8 after retry, got %d", result.RunID())
	}
	if len(corr.requests) != 2 {
		t.Fatalf("Expected 2 correlation attempts, got %d", len(corr.requests))
	}
	if ex := corr.requests[1].Exclude; len(ex) != 1 || ex[0] != 7 {
		t.Errorf("Expected second attempt to exclude run 7, got %v", ex)
	}
	if len(corr.released) != 1 || corr.released[0] != 7 {
		t.Errorf("Expected claim on run 7 released, got %v", corr.released)
	}
}

func TestExecute_BindAttemptsExhausted(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2} {
		if _, err := h.RecordWorkflowRun(ctx, &history.WorkflowRunRecord{
			Workflow: "destroy-network", NetworkName: "x", Ref: "main", RunID: id, RunStatus: "queued",
		}); err != nil {
			t.Fatalf("Failed to seed run: %v", err)
		}
	}

	o := NewOrchestrator(&fakeRemote{}, &fakeCorrelator{runs: []int64{1, 2, 3}}, &fakePoller{}, h, Options{
		BindAttempts: 2,
		Logger:       quietLogger(),
	})
	_, err := o.Execute(ctx, launchRequest("DEV-04"))
	if !errors.Is(err, history.ErrRunAlreadyBound) {
		t.Fatalf("Expected ErrRunAlreadyBound, got %v", err)
	}
	if _, err := h.ActiveDeployment(ctx, "DEV-04"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Expected no deployment recorded, got %v", err)
	}
}

func TestExecute_RunFailedStillRecorded(t *testing.T) {
	h := newTestHistory(t)
	n := &fakeNotifier{}
	o := NewOrchestrator(&fakeRemote{}, &fakeCorrelator{runs: []int64{55}}, &fakePoller{conclusion: "failure"}, h, Options{
		Notifier: n,
		Logger:   quietLogger(),
	})

	req := launchRequest("DEV-05")
	req.Notify = true
	result, err := o.Execute(context.Background(), req)

	var failed *RunFailedError
	if !errors.As(err, &failed) || failed.Conclusion != "failure" {
		t.Fatalf("Expected RunFailedError with failure, got %v", err)
	}
	if !errors.Is(err, ErrRunFailed) {
		t.Error("Expected error to wrap ErrRunFailed")
	}
	if result == nil || result.Deployment == nil {
		t.Fatal("Expected result with deployment alongside failure")
	}
	if result.Deployment.Conclusion() != "failure" {
		t.Errorf("Expected stored conclusion 'failure', got %q", result.Deployment.Conclusion())
	}
	if len(n.deployments) != 0 {
		t.Error("Expected no notification for a failed run")
	}
}

func TestExecute_PollTimeoutKeepsLastStatus(t *testing.T) {
	h := newTestHistory(t)
	last := &actions.Run{ID: 9, Status: actions.StatusInProgress}
	o := NewOrchestrator(&fakeRemote{}, &fakeCorrelator{runs: []int64{9}}, &fakePoller{last: last}, h, Options{Logger: quietLogger()})

	result, err := o.Execute(context.Background(), launchRequest("DEV-06"))
	if !errors.Is(err, poller.ErrPollTimeout) {
		t.Fatalf("Expected ErrPollTimeout, got %v", err)
	}
	if result.Completed {
		t.Error("Expected result not completed")
	}

	d, err := h.ActiveDeployment(context.Background(), "DEV-06")
	if err != nil {
		t.Fatalf("Failed to load deployment: %v", err)
	}
	if d.RunStatus != "in_progress" || d.RunConclusion != nil {
		t.Errorf("Expected in_progress with no conclusion, got %q %v", d.RunStatus, d.RunConclusion)
	}
}

func TestExecute_NoWait(t *testing.T) {
	h := newTestHistory(t)
	poll := &fakePoller{err: errors.New("should not poll")}
	o := NewOrchestrator(&fakeRemote{}, &fakeCorrelator{runs: []int64{12}}, poll, h, Options{Logger: quietLogger()})

	req := launchRequest("DEV-07")
	req.Wait = false
	result, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Failed to execute without wait: %v", err)
	}
	if result.Completed || result.Deployment.RunStatus != "queued" {
		t.Errorf("Expected queued and not completed, got %+v", result.Deployment)
	}
}

func TestExecute_DestroyMarksDeployment(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	o := NewOrchestrator(&fakeRemote{}, &fakeCorrelator{runs: []int64{20, 21}}, &fakePoller{conclusion: "success"}, h, Options{Logger: quietLogger()})

	if _, err := o.Execute(ctx, launchRequest("STG-01")); err != nil {
		t.Fatalf("Failed to launch: %v", err)
	}

	result, err := o.Execute(ctx, Request{
		Kind:         KindDestroy,
		WorkflowName: "destroy-network",
		Workflow:     "63357826",
		Ref:          "main",
		Inputs:       map[string]string{"network-name": "STG-01"},
		NetworkName:  "STG-01",
		Wait:         true,
	})
	if err != nil {
		t.Fatalf("Failed to destroy: %v", err)
	}
	if !result.Destroyed || result.Record == nil || result.Record.RunID != 21 {
		t.Errorf("Unexpected destroy result: %+v", result)
	}
	if _, err := h.ActiveDeployment(ctx, "STG-01"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Expected no active deployment after destroy, got %v", err)
	}

	// Every candidate run is now bound, so nothing new is recorded.
	result, err = o.Execute(ctx, Request{
		Kind: KindDestroy, WorkflowName: "destroy-network", Workflow: "63357826",
		Ref: "main", NetworkName: "STG-09", Wait: true,
	})
	if err == nil {
		t.Fatal("Expected correlation to fail with no free runs")
	}
	if result != nil {
		t.Errorf("Expected nil result when nothing was bound, got %+v", result)
	}
}

func TestExecute_DispatchRecordsRunOnly(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	o := NewOrchestrator(&fakeRemote{}, &fakeCorrelator{runs: []int64{30, 31}}, &fakePoller{conclusion: "success"}, h, Options{Logger: quietLogger()})

	if _, err := o.Execute(ctx, launchRequest("DEV-03")); err != nil {
		t.Fatalf("Failed to launch: %v", err)
	}

	result, err := o.Execute(ctx, Request{
		Kind:         KindDispatch,
		WorkflowName: "kill-droplets",
		Workflow:     "128878189",
		Ref:          "main",
		Inputs:       map[string]string{"droplet-names": "DEV-03-node-1"},
		Wait:         true,
	})
	if err != nil {
		t.Fatalf("Failed to dispatch: %v", err)
	}
	if result.Record == nil || result.Record.RunID != 31 || result.Record.Workflow != "kill-droplets" {
		t.Errorf("Expected run 31 recorded under kill-droplets, got %+v", result.Record)
	}
	if result.Deployment != nil || result.Destroyed {
		t.Errorf("Expected no deployment side effects, got %+v", result)
	}
	if _, err := h.ActiveDeployment(ctx, "DEV-03"); err != nil {
		t.Errorf("Expected DEV-03 to stay active, got %v", err)
	}
}

func TestExecute_Validation(t *testing.T) {
	o := NewOrchestrator(&fakeRemote{}, &fakeCorrelator{}, &fakePoller{}, newTestHistory(t), Options{Logger: quietLogger()})

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown kind", Request{Kind: "rebuild", Workflow: "1", Ref: "main", NetworkName: "x"}},
		{"missing workflow", Request{Kind: KindLaunch, Ref: "main", NetworkName: "x"}},
		{"missing ref", Request{Kind: KindLaunch, Workflow: "1", NetworkName: "x"}},
		{"missing name", Request{Kind: KindUpscale, Workflow: "1", Ref: "main"}},
		{"dispatch missing workflow", Request{Kind: KindDispatch, Ref: "main"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.Execute(context.Background(), tt.req); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	remote := &fakeRemote{}
	o := NewOrchestrator(remote, &fakeCorrelator{}, &fakePoller{}, newTestHistory(t), Options{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.Execute(ctx, launchRequest("DEV-08")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(remote.dispatched) != 0 {
		t.Error("Expected no dispatch after cancellation")
	}
}
