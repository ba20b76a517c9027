// Package vector provides the in-memory embedding index and exact cosine similarity search.
package vector

import (
	"context"

	"github.com/hyperjump/visionquery/internal/models"
)

// VectorIndex stores embeddings with metadata and answers exact top-k cosine queries.
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Add copies vec into a new record and returns its id.
	Add(ctx context.Context, vec []float32, meta models.Metadata) (uint64, error)
	// Search returns at most k records ordered by descending score, ties by ascending id.
	Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error)
	// Get returns the record with the given id.
	Get(id uint64) (*models.VectorRecord, bool)
	Size() int
	Dimensions() int
	Type() string
	Close() error
}
