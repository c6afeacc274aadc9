package actions

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// RemoteError is a network or API failure talking to GitHub.
type RemoteError struct {
	Op          string
	StatusCode  int
	RateLimited bool
	Err         error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: github returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Temporary reports whether a later attempt may succeed.
func (e *RemoteError) Temporary() bool {
	if e.RateLimited || e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRemote reports whether err is, or wraps, a RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
