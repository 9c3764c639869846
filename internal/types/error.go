package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the storage and locking contracts. Callers classify
// with errors.Is and map the class to a transport status at the edge.
var (
	// ErrNotFound signals that no row matched an identifier, or that no
	// audit entries cover a requested reversion point.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous signals that an identifier resolved to more than one row.
	ErrAmbiguous = errors.New("identifier matches multiple objects")

	// ErrLocked signals a lock held by another actor, or an unlock attempt
	// by a non-holder.
	ErrLocked = errors.New("object is locked by another user")

	// ErrConflict signals a mutation blocked by a state invariant, such as
	// deleting a register that still holds live objects.
	ErrConflict = errors.New("conflict")
)

// ValidationError carries the per-property messages produced by schema
// validation. The message list is capped by the validator, never here.
type ValidationError struct {
	Errors []PropertyError `json:"errors"`
}

// PropertyError is a single schema violation.
type PropertyError struct {
	Property string `json:"property"`
	Message  string `json:"message"`
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Errors[0].Property, e.Errors[0].Message)
}

// StorageError wraps a backend failure during read or write so it can be
// distinguished from domain errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err unless it is nil or already classified.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
