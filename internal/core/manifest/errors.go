// Package manifest loads and validates per-application deployment descriptors.
// Loading is deterministic: the same directory contents always produce the
// same Application value. Reading the descriptor file and checking that the
// entrypoint exists are the only I/O in this package.
package manifest

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrMissingField is returned when a required descriptor field is absent.
	ErrMissingField = errors.New("required field is missing")

	// ErrInvalidFormat is returned when the descriptor cannot be parsed or a
	// field value fails validation.
	ErrInvalidFormat = errors.New("invalid descriptor format")

	// ErrDescriptorNotFound is returned when the application directory has no
	// descriptor file.
	ErrDescriptorNotFound = errors.New("descriptor file not found")

	// ErrEntrypointNotFound is returned when the declared main file does not
	// exist in the application directory.
	ErrEntrypointNotFound = errors.New("entrypoint file not found")

	// ErrOverlappingRoots is returned when two applications declare the same
	// source root.
	ErrOverlappingRoots = errors.New("application roots overlap")
)

// ManifestError wraps errors with context about which application and field
// failed.
type ManifestError struct {
	App     string // Application name or directory
	Field   string // Descriptor field if applicable
	Message string
	Err     error
}

func (e *ManifestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("app %s: field %s: %s", e.App, e.Field, e.Message)
	}
	return fmt.Sprintf("app %s: %s", e.App, e.Message)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// NewManifestError creates a new ManifestError.
func NewManifestError(app, field, message string, err error) *ManifestError {
	return &ManifestError{
		App:     app,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
