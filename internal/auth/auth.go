// Package auth resolves the GitHub token used to dispatch and watch runs.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "netrunner"
	keyringUser    = "github-token"
)

// EnvVars are checked in order after the --token flag.
var EnvVars = []string{"WORKFLOW_RUNNER_PAT", "GITHUB_TOKEN"}

// ErrNoToken is returned when no source provides a token.
var ErrNoToken = errors.New("no GitHub token: pass --token, set WORKFLOW_RUNNER_PAT or run 'netrunner auth login'")

// Source describes where a token came from.
type Source string

const (
	SourceFlag    Source = "flag"
	SourceKeyring Source = "keyring"
)

// EnvSource names an environment variable source.
func EnvSource(name string) Source {
	return Source("env:" + name)
}

// ResolveToken returns the first token found in the flag value, the
// environment and the OS keyring.
func ResolveToken(flag string) (string, Source, error) {
	if t := strings.TrimSpace(flag); t != "" {
		return t, SourceFlag, nil
	}
	for _, name := range EnvVars {
		if t := strings.TrimSpace(os.Getenv(name)); t != "" {
			return t, EnvSource(name), nil
		}
	}

	t, err := keyring.Get(keyringService, keyringUser)
	switch {
	case err == nil && t != "":
		return t, SourceKeyring, nil
	case err == nil, errors.Is(err, keyring.ErrNotFound):
		return "", "", ErrNoToken
	default:
		return "", "", fmt.Errorf("failed to read keyring: %w", err)
	}
}

// Store saves token in the OS keyring.
func Store(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Delete removes the stored token. Deleting a missing token is not an
// error.
func Delete() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
