package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPhase is matched by every StateError.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")

	// ErrClosed is returned by operations on a closed Coordinator.
	ErrClosed = errors.New("session closed")
)

// StateError reports an operation invoked in a phase that does not
// support it.
type StateError struct {
	Op    string
	Phase Phase
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.Phase)
}

func (e *StateError) Unwrap() error { return ErrInvalidPhase }

// RejectedError carries the detail of an ERROR control response.
type RejectedError struct {
	Op     string
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Detail)
}

// userMessage returns the text shown to the user for err.
func userMessage(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Detail
	}
	return err.Error()
}
