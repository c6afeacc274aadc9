package auth

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range EnvVars {
		t.Setenv(name, "")
	}
}

func TestResolveTokenOrder(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)

	if _, _, err := ResolveToken(""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Expected ErrNoToken, got %v", err)
	}

	if err := Store("from-keyring"); err != nil {
		t.Fatalf("Failed to store token: %v", err)
	}
	token, source, err := ResolveToken("")
	if err != nil {
		t.Fatalf("Failed to resolve token: %v", err)
	}
	if token != "from-keyring" || source != SourceKeyring {
		t.Errorf("Expected keyring token, got %s from %s", token, source)
	}

	t.Setenv("GITHUB_TOKEN", "from-github-env")
	token, source, _ = ResolveToken("")
	if token != "from-github-env" || source != EnvSource("GITHUB_TOKEN") {
		t.Errorf("Expected GITHUB_TOKEN, got %s from %s", token, source)
	}

	t.Setenv("WORKFLOW_RUNNER_PAT", "from-pat")
	token, source, _ = ResolveToken("")
	if token != "from-pat" || source != EnvSource("WORKFLOW_RUNNER_PAT") {
		t.Errorf("Expected WORKFLOW_RUNNER_PAT, got %s from %s", token, source)
	}

	token, source, _ = ResolveToken("  from-flag ")
	if token != "from-flag" || source != SourceFlag {
		t.Errorf("Expected flag token, got %s from %s", token, source)
	}
}

func TestStoreAndDelete(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)

	if err := Store("  "); err == nil {
		t.Error("Expected error storing empty token")
	}

	if err := Store("secret"); err != nil {
		t.Fatalf("Failed to store token: %v", err)
	}
	if err := Delete(); err != nil {
		t.Fatalf("Failed to delete token: %v", err)
	}
	if err := Delete(); err != nil {
		t.Errorf("Expected deleting a missing token to succeed, got %v", err)
	}
	if _, _, err := ResolveToken(""); !errors.Is(err, ErrNoToken) {
		t.Errorf("Expected ErrNoToken after delete, got %v", err)
	}
}
