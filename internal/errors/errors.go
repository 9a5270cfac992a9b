// Package errors provides the consolidated error definitions for skyshard.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found / empty conditions
	ErrNotFound          = errors.New("not found")
	ErrCatalogNotFound   = errors.New("catalog not found")
	ErrPartitionNotFound = errors.New("partition not found")
	ErrNoCatalogMatch    = errors.New("no catalog matches selector")
	ErrRootMissing       = errors.New("dataset root does not exist")

	// Schema gaps - recoverable per key, the query continues without it
	ErrUnknownAttribute    = errors.New("unknown attribute")
	ErrNonNumericThreshold = errors.New("non-numeric filter threshold")
	ErrColumnMissing       = errors.New("column not in schema")
	ErrColumnType          = errors.New("column type mismatch")

	// Validation errors
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidPixel    = errors.New("invalid pixel id")
	ErrInvalidNside    = errors.New("invalid nside")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidSelector = errors.New("invalid catalog selector")

	// Already exists errors
	ErrAlreadyExists        = errors.New("already exists")
	ErrCatalogAlreadyExists = errors.New("catalog already exists")
	ErrDuplicateName        = errors.New("duplicate source name")

	// IO failures - propagated to the caller of the read/write operation
	ErrShardCorrupt   = errors.New("partition shard is corrupt")
	ErrShardRead      = errors.New("partition shard read failed")
	ErrShardWrite     = errors.New("partition shard write failed")
	ErrMetadataRead   = errors.New("catalogue metadata read failed")
	ErrMarkerRead     = errors.New("freshness marker read failed")

	// State errors
	ErrStreamConsumed = errors.New("query stream already consumed")
	ErrStoreClosed    = errors.New("datastore is closed")
	ErrSQLDisabled    = errors.New("SQL inspection is disabled")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a not-found or empty-result error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCatalogNotFound) ||
		errors.Is(err, ErrPartitionNotFound) ||
		errors.Is(err, ErrNoCatalogMatch) ||
		errors.Is(err, ErrRootMissing)
}

// IsSchemaGap returns true if err is a recoverable schema mismatch:
// the offending filter or column is skipped and processing continues.
func IsSchemaGap(err error) bool {
	return errors.Is(err, ErrUnknownAttribute) ||
		errors.Is(err, ErrNonNumericThreshold) ||
		errors.Is(err, ErrColumnMissing) ||
		errors.Is(err, ErrColumnType)
}

// IsIOFailure returns true if err is a structural storage failure that
// must propagate to the caller of the read or write operation.
func IsIOFailure(err error) bool {
	return errors.Is(err, ErrShardCorrupt) ||
		errors.Is(err, ErrShardRead) ||
		errors.Is(err, ErrShardWrite) ||
		errors.Is(err, ErrMetadataRead) ||
		errors.Is(err, ErrMarkerRead)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidPixel) ||
		errors.Is(err, ErrInvalidNside) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidSelector)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
// Returns nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with formatted context.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
