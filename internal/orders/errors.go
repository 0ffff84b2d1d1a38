package orders

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a requested status change is not
// allowed from the order's current state, including any attempt to leave a
// terminal state.
var ErrInvalidTransition = errors.New("invalid order status transition")

// ErrOrderNotFound is returned when the order id does not exist.
var ErrOrderNotFound = errors.New("order not found")

// CommitErrorKind classifies a failed commit.
type CommitErrorKind string

const (
	// CommitValidationFailed means the candidate's data does not price up.
	CommitValidationFailed CommitErrorKind = "validation_failed"
	// CommitPersistenceFailed means the storage layer rejected the write.
	CommitPersistenceFailed CommitErrorKind = "persistence_failed"
)

// CommitError wraps a failed order commit. Callers must not tell the
// customer an order succeeded when they receive one.
type CommitError struct {
	Kind CommitErrorKind
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("order commit failed (%s): %v", e.Kind, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
