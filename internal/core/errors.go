package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openclaw/opsd/internal/storage"
)

// Sentinel errors for operation refusals. Callers discriminate with errors.Is.
var (
	// ErrNotFound is shared with the storage layer so errors.Is works
	// on wrapped errors from either package.
	ErrNotFound              = storage.ErrNotFound
	ErrInvalidStage          = errors.New("invalid stage")
	ErrNoOpTransition        = errors.New("task already in target stage")
	ErrNonAdjacentTransition = errors.New("non-adjacent transition requires force")
	ErrGatesNotPassed        = errors.New("gates not passed")
	ErrDependencyBlocked     = errors.New("blocked by unresolved dependencies")
	ErrAlreadyActive         = errors.New("task already active")
	ErrValidation            = errors.New("validation failed")
)

// TransitionError is a refused stage transition. It wraps one of the
// sentinel errors above and carries the details a caller needs to
// report or remediate the refusal.
type TransitionError struct {
	TaskID       string
	FromStage    string
	TargetStage  string
	Reason       error
	MissingGates []string
	BlockedBy    []string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("transition %s from %s to %s: %v", e.TaskID, e.FromStage, e.TargetStage, e.Reason)
	if len(e.MissingGates) > 0 {
		msg += fmt.Sprintf(" (missing gates: %s)", strings.Join(e.MissingGates, ", "))
	}
	if len(e.BlockedBy) > 0 {
		msg += fmt.Sprintf(" (blocked by: %s)", strings.Join(e.BlockedBy, ", "))
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return e.Reason }

// ValidationError reports a bad field on a create or update request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
