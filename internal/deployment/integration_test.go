package deployment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"netrunner/internal/actions"
	"netrunner/internal/config"
	"netrunner/internal/correlator"
	"netrunner/internal/deployment"
	"netrunner/internal/history"
	"netrunner/internal/poller"
	"netrunner/internal/server"
)

const (
	owner = "maidsafe"
	repo  = "sn-testnet-workflows"
)

// fakeActions is a minimal GitHub Actions API: each dispatch creates a
// queued run that completes after a few status reads.
type fakeActions struct {
	mu     sync.Mutex
	nextID int64
	runs   []map[string]any
	reads  map[int64]int
}

func newFakeActions() *fakeActions {
	return &fakeActions{nextID: 9001, reads: make(map[int64]int)}
}

func (f *fakeActions) mux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	base := "/repos/" + owner + "/" + repo + "/actions"

	mux.HandleFunc("POST "+base+"/workflows/{id}/dispatches", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Ref    string            `json:"ref"`
			Inputs map[string]string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode dispatch: %v", err)
		}

		f.mu.Lock()
		id := f.nextID
		f.nextID++
		f.runs = append([]map[string]any{{
			"id":            id,
			"head_branch":   body.Ref,
			"status":        "queued",
			"display_title": fmt.Sprintf("Launch %s (%s)", body.Inputs["network-name"], body.Inputs["dispatch-id"]),
			"created_at":    time.Now().UTC().Format(time.RFC3339),
			"html_url":      fmt.Sprintf("https://github.com/%s/%s/actions/runs/%d", owner, repo, id),
		}}, f.runs...)
		f.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET "+base+"/workflows/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"total_count": len(f.runs), "workflow_runs": f.runs})
	})

	mux.HandleFunc("GET "+base+"/runs/{run}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, run := range f.runs {
			if fmt.Sprint(run["id"]) != r.PathValue("run") {
				continue
			}
			id := run["id"].(int64)
			f.reads[id]++
			switch {
			case f.reads[id] >= 3:
				run["status"] = "completed"
				run["conclusion"] = "success"
			case f.reads[id] == 2:
				run["status"] = "in_progress"
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(run)
			return
		}
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	return mux
}

// TestEndToEndLaunch dispatches a launch against a fake Actions API and
// reads the recorded deployment back through the status API.
func TestEndToEndLaunch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gh := httptest.NewServer(newFakeActions().mux(t))
	t.Cleanup(gh.Close)

	client, err := actions.NewClient("test-token", owner, repo, actions.Options{BaseURL: gh.URL})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	hist, err := history.NewHistory(filepath.Join(t.TempDir(), "netrunner.db"))
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	corr := correlator.New(client, hist, correlator.Config{Interval: 10 * time.Millisecond, Window: 5 * time.Second, Skew: 10 * time.Second}, logger)
	poll := poller.New(client, poller.Config{Interval: 10 * time.Millisecond, MaxDuration: 5 * time.Second}, logger)

	var transitions []string
	poll.OnTransition(func(from, to actions.Status, run *actions.Run) {
		transitions = append(transitions, string(to))
	})

	orch := deployment.NewOrchestrator(client, corr, poll, hist, deployment.Options{Logger: logger})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := orch.Execute(ctx, deployment.Request{
		Kind:            deployment.KindLaunch,
		WorkflowName:    config.LaunchNetwork,
		Workflow:        actions.Workflow(config.DefaultWorkflows[config.LaunchNetwork].ID),
		Ref:             "main",
		Inputs:          map[string]string{"network-name": "DEV-01", "environment-type": "development"},
		TokenInput:      "dispatch-id",
		NetworkName:     "DEV-01",
		NetworkID:       1,
		EnvironmentType: "development",
		Wait:            true,
	})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	t.Run("RunBoundAndCompleted", func(t *testing.T) {
		if result.RunID() != 9001 {
			t.Errorf("Expected run 9001, got %d", result.RunID())
		}
		if !result.Completed {
			t.Error("Expected run to be completed")
		}
		if result.Inputs["dispatch-id"] == "" {
			t.Error("Expected dispatch-id token in the inputs")
		}
		if got := strings.Join(transitions, ","); got != "in_progress,completed" {
			t.Errorf("Unexpected transitions %q", got)
		}
	})

	t.Run("StatusAPI", func(t *testing.T) {
		api := httptest.NewServer(server.NewServer(hist, logger, server.Options{}).Router())
		t.Cleanup(api.Close)

		resp, err := http.Get(api.URL + "/api/deployments?name=DEV-01")
		if err != nil {
			t.Fatalf("Failed to list deployments: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		var body struct {
			Deployments []history.Deployment `json:"deployments"`
			Count       int                  `json:"count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if body.Count != 1 {
			t.Fatalf("Expected 1 deployment, got %d", body.Count)
		}
		d := body.Deployments[0]
		if d.RunID != 9001 || d.RunStatus != "completed" {
			t.Errorf("Unexpected deployment run state: %d %s", d.RunID, d.RunStatus)
		}
		if d.RunConclusion == nil || *d.RunConclusion != "success" {
			t.Errorf("Expected success conclusion, got %v", d.RunConclusion)
		}
	})

	t.Run("SecondLaunchRejected", func(t *testing.T) {
		_, err := orch.Execute(ctx, deployment.Request{
			Kind:         deployment.KindLaunch,
			WorkflowName: config.LaunchNetwork,
			Workflow:     actions.Workflow(config.DefaultWorkflows[config.LaunchNetwork].ID),
			Ref:          "main",
			Inputs:       map[string]string{"network-name": "DEV-01"},
			NetworkName:  "DEV-01",
		})
		if err == nil {
			t.Fatal("Expected duplicate name error")
		}
	})
}
