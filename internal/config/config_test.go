package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netrunner.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Owner != DefaultOwner || cfg.Repo != DefaultRepo || cfg.Ref != "main" {
		t.Errorf("Unexpected repository defaults: %s/%s@%s", cfg.Owner, cfg.Repo, cfg.Ref)
	}
	if cfg.Database != "/data/netrunner/netrunner.db" {
		t.Errorf("Expected database under XDG_DATA_HOME, got %s", cfg.Database)
	}
	if cfg.Workflows[LaunchNetwork].ID != "144945387" {
		t.Errorf("Expected launch workflow id, got %+v", cfg.Workflows[LaunchNetwork])
	}
	if cfg.Correlation.Interval != 2*time.Second || cfg.Correlation.Window != time.Minute || cfg.Correlation.Skew != 10*time.Second {
		t.Errorf("Unexpected correlation defaults: %+v", cfg.Correlation)
	}
	if cfg.Polling.Interval != 15*time.Second || cfg.Polling.MaxDuration != time.Hour || cfg.Polling.MaxConsecutiveErrors != 5 {
		t.Errorf("Unexpected polling defaults: %+v", cfg.Polling)
	}
	if cfg.BindAttempts != 3 {
		t.Errorf("Expected 3 bind attempts, got %d", cfg.BindAttempts)
	}
	if cfg.Path != "" {
		t.Errorf("Expected no path for defaults, got %s", cfg.Path)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
owner: acme
repo: infra
database: /tmp/runner.db
workflows:
  launch-network:
    id: launch.yml
    token_input: run-token
  destroy-network:
    token_input: run-token
correlation:
  interval: 1s
  window: 30s
polling:
  interval: 10s
  max_duration: 3h
bind_attempts: 5
server:
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Owner != "acme" || cfg.Repo != "infra" || cfg.Database != "/tmp/runner.db" {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	launch, err := cfg.Workflow(LaunchNetwork)
	if err != nil {
		t.Fatalf("Failed to get workflow: %v", err)
	}
	if launch.ID != "launch.yml" || launch.TokenInput != "run-token" {
		t.Errorf("Unexpected launch workflow: %+v", launch)
	}
	destroy, _ := cfg.Workflow(DestroyNetwork)
	if destroy.ID != "63357826" || destroy.TokenInput != "run-token" {
		t.Errorf("Expected default id with configured token input, got %+v", destroy)
	}
	if cfg.Correlation.Window != 30*time.Second || cfg.Correlation.Skew != DefaultCorrelationSkew {
		t.Errorf("Unexpected correlation: %+v", cfg.Correlation)
	}
	if cfg.Polling.MaxDuration != 3*time.Hour {
		t.Errorf("Expected 3h max duration, got %s", cfg.Polling.MaxDuration)
	}
	if cfg.BindAttempts != 5 || cfg.Server.Port != 9000 {
		t.Errorf("Unexpected bind attempts or port: %d %d", cfg.BindAttempts, cfg.Server.Port)
	}
	if cfg.Path != path {
		t.Errorf("Expected path %s, got %s", path, cfg.Path)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "owner: [", "failed to parse YAML config"},
		{"window shorter than interval", "correlation:\n  interval: 10s\n  window: 5s\n", "correlation window"},
		{"max duration shorter than interval", "polling:\n  interval: 1m\n  max_duration: 30s\n", "polling max_duration"},
		{"slashed owner", "owner: a/b\n", "single path segments"},
		{"insecure webhook", "notify:\n  slack_webhook_url: http://hooks\n", "https URL"},
		{"bad port", "server:\n  port: 70000\n", "server port"},
		{"workflow path", "workflows:\n  launch-network:\n    id: .github/workflows/x.yml\n", "workflow 'launch-network'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("NETRUNNER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if got := Resolve("/explicit.yml"); got != "/explicit.yml" {
		t.Errorf("Expected explicit path, got %s", got)
	}

	t.Setenv("NETRUNNER_CONFIG", "/from-env.yml")
	if got := Resolve(""); got != "/from-env.yml" {
		t.Errorf("Expected env path, got %s", got)
	}
}

func TestWebhookURL(t *testing.T) {
	t.Setenv("NETRUNNER_SLACK_WEBHOOK_URL", "")
	t.Setenv("ANT_RUNNER_COMPARISON_WEBHOOK_URL", "https://legacy")

	cfg := Default()
	if got := cfg.WebhookURL(); got != "https://legacy" {
		t.Errorf("Expected legacy webhook, got %s", got)
	}

	t.Setenv("NETRUNNER_SLACK_WEBHOOK_URL", "https://env")
	if got := cfg.WebhookURL(); got != "https://env" {
		t.Errorf("Expected env webhook, got %s", got)
	}

	cfg.Notify.SlackWebhookURL = "https://config"
	if got := cfg.WebhookURL(); got != "https://config" {
		t.Errorf("Expected config webhook, got %s", got)
	}
}
