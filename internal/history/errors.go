package history

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrRunAlreadyBound means another record already owns the run id.
	ErrRunAlreadyBound = errors.New("run already bound to another record")

	// ErrDuplicateActiveName means an active deployment already uses the name.
	ErrDuplicateActiveName = errors.New("an active deployment with this name already exists")

	// ErrInvalidReference means a comparison named a deployment that does not exist.
	ErrInvalidReference = errors.New("invalid deployment reference")

	// ErrTooFewDeployments means a comparison was given fewer than two deployments.
	ErrTooFewDeployments = errors.New("a comparison needs at least two deployments")
)

// InvalidReferenceError lists the deployment ids that did not resolve.
type InvalidReferenceError struct {
	Missing []int64
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("%v: deployments %v do not exist", ErrInvalidReference, e.Missing)
}

func (e *InvalidReferenceError) Unwrap() error {
	return ErrInvalidReference
}
