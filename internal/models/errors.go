package models

import "errors"

// Error kinds shared by the index, the embedding adapters and the HTTP layer.
// Callers discriminate with errors.Is; producers wrap with fmt.Errorf("...: %w").
var (
	// ErrDimensionMismatch is returned when a vector's length differs from the configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidArgument is returned for malformed requests (empty query, top_k <= 0, non-finite vector).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSourceUnavailable is returned when the raw input of an embedding cannot be read.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrEmbeddingFailure is returned when the embedding model fails internally.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrNotFound is returned when a record id is unknown.
	ErrNotFound = errors.New("not found")
)
