package models

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared across the executor, cache, and scheduler.
// Callers classify with errors.Is.
var (
	// ErrUnreachable indicates the target device could not be reached.
	ErrUnreachable = errors.New("device unreachable")

	// ErrAuthFailure indicates the remote host rejected our credentials.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrTimeout indicates the command exceeded its deadline and was killed.
	ErrTimeout = errors.New("command timed out")

	// ErrActionFailed indicates the command ran but reported an
	// application-level failure.
	ErrActionFailed = errors.New("action failed")

	// ErrConfigInvalid rejects malformed device or job definitions at
	// mutation time, before they reach any evaluation loop.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrSkipped marks a run suppressed by the overlap guard or an unmet
	// precondition. Informational, not a failure.
	ErrSkipped = errors.New("run skipped")

	errInvalidDuration = fmt.Errorf("invalid duration")
)
