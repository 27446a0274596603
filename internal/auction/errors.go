package auction

import (
	"errors"
	"fmt"

	"github.com/roach88/stigmergy/internal/entity"
)

// RoundErrorCode categorizes round failures.
type RoundErrorCode string

const (
	// ErrCodeSnapshotFailed indicates the entity could not be read.
	ErrCodeSnapshotFailed RoundErrorCode = "SNAPSHOT_FAILED"

	// ErrCodeNoHandler indicates the winner has no registered invoker.
	ErrCodeNoHandler RoundErrorCode = "NO_HANDLER"

	// ErrCodeInvocationFailed indicates the winner returned an error.
	ErrCodeInvocationFailed RoundErrorCode = "INVOCATION_FAILED"

	// ErrCodeInvocationTimeout indicates the winner exceeded its budget.
	ErrCodeInvocationTimeout RoundErrorCode = "INVOCATION_TIMEOUT"

	// ErrCodeApplyFailed indicates the staged writes could not be committed.
	ErrCodeApplyFailed RoundErrorCode = "APPLY_FAILED"
)

// RoundError is a failed round. It is scoped to one entity: no other
// entity's state or round is affected, and none of the round's writes
// were applied.
type RoundError struct {
	Code    RoundErrorCode
	Entity  entity.Entity
	System  string
	RoundID string
	Err     error
}

// Error implements the error interface.
func (e *RoundError) Error() string {
	if e.System != "" {
		return fmt.Sprintf("%s: round %s on %s (system=%s): %v", e.Code, e.RoundID, e.Entity, e.System, e.Err)
	}
	return fmt.Sprintf("%s: round %s on %s: %v", e.Code, e.RoundID, e.Entity, e.Err)
}

// Unwrap returns the underlying failure.
func (e *RoundError) Unwrap() error { return e.Err }

// IsRoundError returns true if err wraps a *RoundError.
func IsRoundError(err error) bool {
	var re *RoundError
	return errors.As(err, &re)
}

// IsTimeout returns true if err is a round that timed out.
func IsTimeout(err error) bool {
	var re *RoundError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvocationTimeout
	}
	return false
}
