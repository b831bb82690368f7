package chat

import (
	"errors"

	"github.com/lalith-99/agencychat/internal/repository"
)

var (
	// ErrInvalidArgument covers missing or malformed required fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound means a referenced channel does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable is the repository sentinel, re-exported so callers
	// of this package need not import repository to classify errors.
	ErrStoreUnavailable = repository.ErrStoreUnavailable
)

// ValidationError names the offending field. It matches ErrInvalidArgument
// under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
