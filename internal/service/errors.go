package service

import (
	"errors"

	"github.com/rs/zerolog"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotAMember       = errors.New("not a member")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation failed")
	// ErrStorage is the opaque failure returned when the store misbehaves. The
	// underlying error is logged, never returned.
	ErrStorage = errors.New("operation failed")
)

// ValidationError names the offending field. errors.Is(err, ErrValidation) holds.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func storageFailure(log zerolog.Logger, op string, err error) error {
	log.Error().Err(err).Str("op", op).Msg("storage operation failed")
	return ErrStorage
}
