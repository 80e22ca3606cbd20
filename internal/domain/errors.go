package domain

import "errors"

var (
	// ErrDimensionMismatch means two vectors that must share a dimension do not.
	// It signals a data-integrity bug rather than a recoverable condition.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyDocument indicates a document produced no text at all.
	ErrEmptyDocument = errors.New("document has no text")

	// ErrNotFound indicates the requested plan or chunk does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBackendUnavailable indicates the embedding backend could not be loaded or reached.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")
)
