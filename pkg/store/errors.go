package store

import (
	"errors"
	"fmt"
)

// ErrInvalidDocumentKey is returned when container or fileName is empty.
var ErrInvalidDocumentKey = errors.New("store: container and fileName are required")

// StorageUnavailableError wraps a backend failure so callers can distinguish
// "record absent" from "could not check".
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("store: %s failed: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// IsStorageUnavailable reports whether err is a backend failure.
func IsStorageUnavailable(err error) bool {
	var unavailable *StorageUnavailableError
	return errors.As(err, &unavailable)
}
