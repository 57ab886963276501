// Package errors consolidates error definitions for the shakewatch project.
//
// This package provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
//
// The propagation policy is: per-record errors (bad filename, bad embedded
// metadata) are logged and the record is skipped; per-operation errors are
// isolated to the store operation that raised them; only storage
// initialization errors terminate the process.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound         = errors.New("not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrFileNotFound     = errors.New("file not found")

	// Validation errors
	ErrInvalidFilename   = errors.New("invalid filename")
	ErrInvalidMetadata   = errors.New("invalid embedded metadata")
	ErrInvalidCoordinate = errors.New("invalid coordinate string")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrMissingField      = errors.New("missing required field")

	// Transient source errors
	ErrFeedUnavailable = errors.New("event feed unavailable")
	ErrTimeout         = errors.New("timeout")

	// Storage errors
	ErrStorageInit = errors.New("storage initialization failed")
	ErrClosed      = errors.New("store is closed")

	// Concurrency
	ErrScanInProgress = errors.New("scan already in progress")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsNotFound returns true if err is a not-found error.
// Not-found is usually not fatal: callers return nil or skip the record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrSnapshotNotFound) ||
		errors.Is(err, ErrFileNotFound)
}

// IsValidation returns true if err is a validation error.
// Validation errors skip the single record and continue the batch.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidFilename) ||
		errors.Is(err, ErrInvalidMetadata) ||
		errors.Is(err, ErrInvalidCoordinate) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsTransient returns true if the error should be retried on the next
// poll cycle rather than propagated upward.
func IsTransient(err error) bool {
	return errors.Is(err, ErrFeedUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsFatal returns true if err must terminate the process.
// Only storage initialization qualifies: the system cannot proceed
// without its durable catalogs.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStorageInit)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewStorageInit creates a fatal storage initialization error.
func NewStorageInit(path string, err error) error {
	return fmt.Errorf("open %s: %v: %w", path, err, ErrStorageInit)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}
