package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing client input.
	ErrValidation = errors.New("validation failed")
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrStorage wraps failures reported by the underlying store.
	ErrStorage = errors.New("storage failure")
)

// FieldError describes a rejected input field. It matches ErrValidation under errors.Is.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Reason
}

// Unwrap exposes the validation sentinel.
func (e *FieldError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStorage, err))
}
