package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("invalid input")
	ErrConflict            = errors.New("code already in use")
	ErrNotFound            = errors.New("link not found")
	ErrAllocationExhausted = errors.New("no free code found")
	ErrStore               = errors.New("store failure")
)

// ValidationError describes malformed caller input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StoreError wraps an unexpected persistence fault with the operation and the
// code or id it was about. It matches ErrStore and unwraps to the driver error.
type StoreError struct {
	Op   string
	Code string
	ID   int64
	Err  error
}

func (e *StoreError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("store %s (code=%s): %v", e.Op, e.Code, e.Err)
	case e.ID != 0:
		return fmt.Sprintf("store %s (id=%d): %v", e.Op, e.ID, e.Err)
	default:
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// IsValidation reports whether err is caused by malformed input.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err indicates a code uniqueness conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsExhausted reports whether random allocation ran out of attempts.
func IsExhausted(err error) bool { return errors.Is(err, ErrAllocationExhausted) }
