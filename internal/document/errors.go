package document

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist or was deleted.
	ErrNotFound = errors.New("not found")
	// ErrVersionNotFound also matches ErrNotFound.
	ErrVersionNotFound = fmt.Errorf("version %w", ErrNotFound)
	ErrForbidden       = errors.New("forbidden")

	// ErrAlreadyInitialized guards a second initial version for one document.
	ErrAlreadyInitialized = errors.New("document already initialized")
	// ErrVersionConflict means (document, version number) is already taken.
	ErrVersionConflict    = errors.New("version number conflict")
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrInvalidInput       = errors.New("invalid input")
	ErrArchiveUnavailable = errors.New("snapshot archive not configured")
)

// Unavailable wraps a backend failure so that it matches ErrStorageUnavailable
// while keeping the driver error in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
