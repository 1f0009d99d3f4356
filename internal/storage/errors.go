package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every storage backend. Callers branch on
// these with errors.Is rather than inspecting provider messages.
var (
	// ErrNotFound is returned when no object exists at the requested key.
	ErrNotFound = errors.New("object not found")

	// ErrKeyExists is returned for a Put without Overwrite against an
	// occupied key.
	ErrKeyExists = errors.New("object already exists at this key")

	// ErrInvalidKey is returned for a malformed key, including path
	// traversal attempts like "../".
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTooLarge is returned when an object exceeds the configured
	// upload size limit.
	ErrTooLarge = errors.New("object exceeds maximum size")

	// ErrAccessDenied is returned when the backing store refuses the
	// operation, typically a bucket policy or ACL on S3.
	ErrAccessDenied = errors.New("access denied")
)

// StorageError carries the operation and key alongside the underlying
// failure, so a log line reads "storage Get "quadrats/reef-07.jpg": ...".
// errors.Is still reaches the sentinel through Unwrap.
type StorageError struct {
	Op  string // the failing operation: "Put", "Get", "Delete", ...
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsKeyExists reports whether err means the key is already occupied.
func IsKeyExists(err error) bool {
	return errors.Is(err, ErrKeyExists)
}

// IsAccessDenied reports whether err means the store refused access.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidKey reports whether err means the key was malformed.
func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}

// IsTooLarge reports whether err means the object exceeded the size limit.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}
