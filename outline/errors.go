package outline

import (
	"errors"
	"fmt"
)

// Errors returned by outline operations. Callers match them with errors.Is;
// none are retried internally.
var (
	// ErrNotFound means a referenced node does not exist.
	ErrNotFound = errors.New("outline: node not found")

	// ErrInvalidPosition means prev does not reference a current sibling
	// under the stated parent.
	ErrInvalidPosition = errors.New("outline: invalid position")

	// ErrCycle means a move would make a node its own ancestor.
	ErrCycle = errors.New("outline: cycle detected")

	// ErrDocumentUnavailable means the document's serialization unit cannot
	// accept work. Callers should retry with backoff.
	ErrDocumentUnavailable = errors.New("outline: document unavailable")

	// ErrPersistence is the generic storage failure. No partial pointer
	// state is left behind when it is returned.
	ErrPersistence = errors.New("outline: persistence failure")
)

// PersistenceError wraps a storage-layer failure so that callers can match
// errors.Is(err, ErrPersistence) and still unwrap the cause.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("outline: persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
