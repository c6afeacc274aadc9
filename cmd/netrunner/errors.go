package main

import (
	"context"
	"errors"

	"netrunner/internal/actions"
	"netrunner/internal/auth"
	"netrunner/internal/correlator"
	"netrunner/internal/deployment"
	"netrunner/internal/history"
	"netrunner/internal/notify"
	"netrunner/internal/poller"
	"netrunner/internal/smoketest"
)

const (
	exitError   = 1
	exitUnknown = 2
)

// errorKind names the failure class printed with an error.
func errorKind(err error) string {
	var (
		pollTimeout *poller.PollTimeoutError
		invalidRef  *history.InvalidReferenceError
		runFailed   *deployment.RunFailedError
	)

	switch {
	case errors.As(err, &pollTimeout):
		return "PollTimeout"
	case errors.Is(err, correlator.ErrCorrelationTimeout):
		return "CorrelationTimeout"
	case errors.Is(err, history.ErrRunAlreadyBound):
		return "RunAlreadyBound"
	case errors.Is(err, history.ErrDuplicateActiveName):
		return "DuplicateActiveName"
	case errors.As(err, &invalidRef):
		return "InvalidReference"
	case errors.Is(err, history.ErrTooFewDeployments):
		return "TooFewDeployments"
	case errors.As(err, &runFailed):
		return "RunFailed"
	case errors.Is(err, history.ErrNotFound), errors.Is(err, actions.ErrNotFound):
		return "NotFound"
	case actions.IsRemote(err):
		return "RemoteError"
	case errors.Is(err, auth.ErrNoToken):
		return "NoToken"
	case errors.Is(err, notify.ErrNoWebhook):
		return "NoWebhook"
	case errors.Is(err, context.Canceled), errors.Is(err, smoketest.ErrCancelled), errors.Is(err, errAborted):
		return "Cancelled"
	case isUsageError(err):
		return "Usage"
	}
	return "Error"
}

// exitCode is 2 when the run's outcome is unknown, 1 otherwise.
func exitCode(err error) int {
	if errors.Is(err, poller.ErrPollTimeout) {
		return exitUnknown
	}
	return exitError
}
