// Package apperr defines the error kinds shared by all domain services.
//
// Domain packages wrap one of the kind sentinels so that callers (the HTTP
// layer in particular) can classify any error with errors.Is or KindOf
// without knowing the concrete domain type.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound reports a missing order, product or promo, or a promo that
	// can no longer be used.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists reports a duplicate unique key on create.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidState reports an operation on an order whose status forbids it.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation reports malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict reports a write that lost a race against a concurrent writer.
	ErrConflict = errors.New("conflict")
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidState
	KindValidation
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidState:
		return "invalid_state"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// KindOf returns the kind of err. Errors that wrap none of the sentinels are
// internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation returns a *ValidationError for field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
