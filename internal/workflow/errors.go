package workflow

import "errors"

var (
	// ErrNotFound indicates the work item or actor does not exist.
	ErrNotFound = errors.New("workflow: not found")
	// ErrForbidden indicates the actor may not take this transition,
	// including every self-approval attempt.
	ErrForbidden = errors.New("workflow: forbidden")
	// ErrInvalidTransition indicates the target is not a direct successor
	// of the current status.
	ErrInvalidTransition = errors.New("workflow: invalid transition")
	// ErrConflict indicates the work item was concurrently transitioned
	// away from the expected status.
	ErrConflict = errors.New("workflow: conflicting transition")
)
