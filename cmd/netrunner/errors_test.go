package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"netrunner/internal/actions"
	"netrunner/internal/auth"
	"netrunner/internal/correlator"
	"netrunner/internal/deployment"
	"netrunner/internal/history"
	"netrunner/internal/notify"
	"netrunner/internal/poller"
	"netrunner/internal/smoketest"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
		code int
	}{
		{"poll timeout", fmt.Errorf("launch: %w", &poller.PollTimeoutError{RunID: 9}), "PollTimeout", 2},
		{"correlation timeout", fmt.Errorf("find run: %w", correlator.ErrCorrelationTimeout), "CorrelationTimeout", 1},
		{"run bound", history.ErrRunAlreadyBound, "RunAlreadyBound", 1},
		{"duplicate name", fmt.Errorf("DEV-01: %w", history.ErrDuplicateActiveName), "DuplicateActiveName", 1},
		{"invalid reference", &history.InvalidReferenceError{Missing: []int64{4}}, "InvalidReference", 1},
		{"too few", history.ErrTooFewDeployments, "TooFewDeployments", 1},
		{"run failed", &deployment.RunFailedError{RunID: 3, Conclusion: "failure"}, "RunFailed", 1},
		{"history not found", history.ErrNotFound, "NotFound", 1},
		{"remote not found", actions.ErrNotFound, "NotFound", 1},
		{"remote", &actions.RemoteError{Op: "list runs", StatusCode: 500, Err: errors.New("boom")}, "RemoteError", 1},
		{"no token", auth.ErrNoToken, "NoToken", 1},
		{"no webhook", notify.ErrNoWebhook, "NoWebhook", 1},
		{"cancelled", context.Canceled, "Cancelled", 1},
		{"smoke test cancelled", smoketest.ErrCancelled, "Cancelled", 1},
		{"aborted", errAborted, "Cancelled", 1},
		{"usage", newUsageError("invalid id %q", "x"), "Usage", 1},
		{"other", errors.New("disk full"), "Error", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorKind(tt.err); got != tt.kind {
				t.Errorf("errorKind() = %q, want %q", got, tt.kind)
			}
			if got := exitCode(tt.err); got != tt.code {
				t.Errorf("exitCode() = %d, want %d", got, tt.code)
			}
		})
	}
}
