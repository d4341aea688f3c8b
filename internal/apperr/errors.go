// Package apperr holds the error kinds shared by the payment and graduation services.
// Callers classify with errors.As; every kind unwraps to its cause.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed caller input. No state was changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports that the requested state change was already applied by someone else.
type ConflictError struct {
	Resource string
	Key      string
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: conflict", e.Resource, e.Key)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a database failure. The surrounding transaction was rolled back
// and the operation may be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err unless it is nil or already classified.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsConflict(err) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
