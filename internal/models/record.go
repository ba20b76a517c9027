// Package models defines core data structures for records, queries, and search results.
package models

import (
	"fmt"
	"time"
)

// Metadata describes where an embedding came from.
type Metadata struct {
	Path       string            `json:"path"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// VectorRecord is a stored embedding. Records are immutable once appended to the index.
type VectorRecord struct {
	ID        uint64    `json:"id"`
	Vector    []float32 `json:"-"`
	Norm      float64   `json:"-"` // L2 norm of Vector, computed at append time
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestRequest is the input for indexing one image.
type IngestRequest struct {
	Path       string            `json:"path"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Validate ensures the request names an image.
func (r *IngestRequest) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: valid image path required", ErrInvalidArgument)
	}
	return nil
}

// IngestResponse is returned after an image has been indexed.
type IngestResponse struct {
	ID     uint64 `json:"id"`
	Path   string `json:"path"`
	Status string `json:"status"`
}
