package nestedset

import (
	"errors"
	"fmt"
)

var (
	// ErrPreconditionViolation is returned when the caller asks for something the
	// forest cannot satisfy: a missing parent, a move under the node's own
	// descendant, a duplicate id or malformed interval data. Not retryable.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrConcurrencyConflict is returned when a lock could not be acquired in time
	// or the store detected a conflicting concurrent write. The unit of work was
	// rolled back and the caller may retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrConsistencyViolation is returned when an interval invariant does not
	// hold. It points at a bug or corrupted data; only Rebuild repairs it.
	ErrConsistencyViolation = errors.New("consistency violation")

	// ErrNotFound is wrapped together with ErrPreconditionViolation when a
	// referenced node does not exist.
	ErrNotFound = errors.New("node not found")
)

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionViolation, fmt.Sprintf(format, args...))
}

func notFound[ID comparable](what string, id ID) error {
	return fmt.Errorf("%w: %s %v: %w", ErrPreconditionViolation, what, id, ErrNotFound)
}

func consistencyf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConsistencyViolation, fmt.Sprintf(format, args...))
}

// ConflictError wraps a store level error as a retryable concurrency conflict.
func ConflictError(err error) error {
	if err == nil || errors.Is(err, ErrConcurrencyConflict) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
}

// IsRetryable reports whether the operation that returned err may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
