package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest is returned by Register for a request without an ID
	// or a Build function.
	ErrInvalidRequest = errors.New("registry: invalid request")

	// ErrClosed is returned by Register after Close.
	ErrClosed = errors.New("registry: closed")

	// ErrUnresolvedDependency marks a dependency that was never published
	// within the dependency timeout.
	ErrUnresolvedDependency = errors.New("registry: unresolved dependency")
)

// UnresolvedError names the segment whose dependencies failed and the labels
// that were still missing.
type UnresolvedError struct {
	Segment string
	Missing []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("segment %q: label(s) not found: %s", e.Segment, strings.Join(e.Missing, ", "))
}

func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolvedDependency
}

// panicError wraps a value recovered from segment-supplied code.
type panicError struct {
	segment string
	stage   string
	value   any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("segment %q: panic in %s: %v", e.segment, e.stage, e.value)
}
