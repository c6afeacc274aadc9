package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"netrunner/internal/history"
	"netrunner/internal/smoketest"
)

func sampleDeployment(id int64, name string) *history.Deployment {
	desc := "candidate build"
	pr := 2771
	conclusion := "success"
	return &history.Deployment{
		ID:               id,
		Name:             name,
		NetworkID:        3,
		EnvironmentType:  "development",
		Workflow:         "launch-network",
		Ref:              "main",
		RunID:            1000 + id,
		RunURL:           "https://github.com/maidsafe/sn-testnet-workflows/actions/runs/1001",
		CreatedAt:        time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		RelatedPR:        &pr,
		Description:      &desc,
		Inputs:           map[string]string{"network-name": name, "bin-versions": "1,2,3"},
		RunStatus:        "completed",
		RunConclusion:    &conclusion,
		SmokeTest:        smoketest.Failed,
		SmokeTestAnswers: smoketest.Answers{"elk": smoketest.No, "nodes": smoketest.Yes, "uploaders": smoketest.NA},
	}
}

func TestDeploymentReport(t *testing.T) {
	report := DeploymentReport(NewDeploymentView(sampleDeployment(1, "DEV-01"), false))

	for _, want := range []string{
		"*DEV-01*",
		"candidate build",
		"Deployed: 2025-03-01 09:30:00",
		"Workflow run: https://github.com/maidsafe/sn-testnet-workflows/actions/runs/1001",
		"Outcome: success",
		"Related PR: #2771",
		"Link: https://github.com/maidsafe/autonomi/pull/2771",
		"bin-versions: 1,2,3",
		"*SMOKE TEST RESULTS*",
		"✅   Are all nodes running?",
		"❌   Is ELK receiving logs?",
		"N/A  Do the uploaders have no errors?",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected report to contain %q\n%s", want, report)
		}
	}

	if strings.Index(report, "Are all nodes running?") > strings.Index(report, "Is ELK receiving logs?") {
		t.Error("Expected answers in questionnaire order")
	}
	if strings.Contains(report, "(repost)") {
		t.Error("Expected no repost marker on first post")
	}
}

func TestDeploymentReportWithoutSmokeTest(t *testing.T) {
	d := sampleDeployment(1, "DEV-01")
	d.SmokeTestAnswers = nil
	d.RunStatus = "in_progress"
	d.RunConclusion = nil

	report := DeploymentReport(NewDeploymentView(d, true))
	if !strings.Contains(report, "No smoke test results recorded") {
		t.Errorf("Expected missing smoke test line\n%s", report)
	}
	if !strings.Contains(report, "Outcome: in_progress") {
		t.Errorf("Expected in-progress outcome\n%s", report)
	}
	if !strings.Contains(report, "*DEV-01* (repost)") {
		t.Errorf("Expected repost marker\n%s", report)
	}
}

func sampleComparison() *history.Comparison {
	link := "https://slack.example/thread/1"
	return &history.Comparison{
		ID:         7,
		Label:      "rc vs stable",
		ThreadLink: &link,
		Members: []history.ComparisonMember{
			{Position: 0, DeploymentID: 1, Label: "stable", Deployment: sampleDeployment(1, "DEV-01")},
			{Position: 1, DeploymentID: 2, Label: "rc-1", Deployment: sampleDeployment(2, "DEV-02")},
			{Position: 2, DeploymentID: 3, Deployment: sampleDeployment(3, "DEV-03")},
		},
	}
}

func TestComparisonReport(t *testing.T) {
	v, err := NewComparisonView(sampleComparison())
	if err != nil {
		t.Fatalf("Failed to build view: %v", err)
	}
	if v.Ref.Label != "stable" || len(v.Tests) != 2 {
		t.Fatalf("Unexpected view: %+v", v)
	}
	if v.Tests[1].Label != "DEV-03" {
		t.Errorf("Expected unlabelled member to use its name, got %q", v.Tests[1].Label)
	}

	report := ComparisonReport(v)
	for _, want := range []string{
		"*ENVIRONMENT COMPARISON*",
		"Slack thread: https://slack.example/thread/1",
		"*REF*: stable [`DEV-01`]",
		"*TEST1*: rc-1 [`DEV-02`]",
		"*TEST2*: DEV-03 [`DEV-03`]",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected report to contain %q\n%s", want, report)
		}
	}

	smoke := ComparisonSmokeTestReport(v)
	if !strings.HasPrefix(smoke, "*SMOKE TEST RESULTS*") {
		t.Errorf("Unexpected smoke test report\n%s", smoke)
	}
	if strings.Index(smoke, "*TEST1*") > strings.Index(smoke, "*REF*") {
		t.Error("Expected tests before the reference")
	}
}

func TestNewComparisonViewRequiresDeployments(t *testing.T) {
	c := sampleComparison()
	c.Members[1].Deployment = nil
	if _, err := NewComparisonView(c); err == nil {
		t.Error("Expected error for unresolved member")
	}

	c = sampleComparison()
	c.Members = c.Members[:1]
	if _, err := NewComparisonView(c); err == nil {
		t.Error("Expected error for single member")
	}
}

func TestSlackNotifier(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		var msg map[string]string
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		mu.Lock()
		texts = append(texts, msg["text"])
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewSlackNotifier(srv.URL, srv.Client(), nil)
	if err != nil {
		t.Fatalf("Failed to create notifier: %v", err)
	}

	ctx := context.Background()
	if err := n.NotifyDeployment(ctx, NewDeploymentView(sampleDeployment(1, "DEV-01"), false)); err != nil {
		t.Fatalf("Failed to notify deployment: %v", err)
	}
	v, _ := NewComparisonView(sampleComparison())
	if err := n.NotifyComparison(ctx, v); err != nil {
		t.Fatalf("Failed to notify comparison: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(texts))
	}
	if !strings.HasPrefix(texts[0], "*DEV-01*") {
		t.Errorf("Unexpected deployment message: %q", texts[0])
	}
	if !strings.HasPrefix(texts[1], "*ENVIRONMENT COMPARISON*") || !strings.HasPrefix(texts[2], "*SMOKE TEST RESULTS*") {
		t.Errorf("Unexpected comparison messages: %q / %q", texts[1], texts[2])
	}
}

func TestSlackNotifierErrors(t *testing.T) {
	if _, err := NewSlackNotifier("  ", nil, nil); err != ErrNoWebhook {
		t.Errorf("Expected ErrNoWebhook, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n, err := NewSlackNotifier(srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create notifier: %v", err)
	}
	err = n.NotifyDeployment(context.Background(), NewDeploymentView(sampleDeployment(1, "DEV-01"), false))
	if err == nil || !strings.Contains(err.Error(), "invalid_payload") {
		t.Errorf("Expected webhook error with body, got %v", err)
	}
}

func TestSlackNotifierRedactsWebhookURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/services/T000/B000/secret"
	srv.Close()

	n, err := NewSlackNotifier(url, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create notifier: %v", err)
	}
	err = n.NotifyDeployment(context.Background(), NewDeploymentView(sampleDeployment(1, "DEV-01"), false))
	if err == nil {
		t.Fatal("Expected error from closed server")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("Expected webhook URL redacted, got %v", err)
	}
}
