package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/visionquery/internal/models"
)

// DefaultParallelThreshold is the snapshot size from which a multi-worker index scans in parallel.
const DefaultParallelThreshold = 4096

// MemoryIndex is an in-memory vector index using brute-force cosine search over a Store.
// Searches work on a snapshot taken under the read lock, so concurrent searches never
// block each other and a long scan never blocks appends.
type MemoryIndex struct {
	store             *Store
	workers           int
	parallelThreshold int
}

// Option configures a MemoryIndex.
type Option func(*MemoryIndex)

// WithSearchWorkers sets how many goroutines scan a large snapshot. Values <= 1 scan sequentially.
func WithSearchWorkers(n int) Option {
	return func(m *MemoryIndex) { m.workers = n }
}

// WithParallelThreshold sets the minimum snapshot size for a parallel scan.
func WithParallelThreshold(n int) Option {
	return func(m *MemoryIndex) {
		if n > 0 {
			m.parallelThreshold = n
		}
	}
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int, opts ...Option) (*MemoryIndex, error) {
	store, err := NewStore(dimensions)
	if err != nil {
		return nil, err
	}
	m := &MemoryIndex{
		store:             store,
		workers:           1,
		parallelThreshold: DefaultParallelThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers < 1 {
		m.workers = 1
	}
	return m, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add appends a vector with its metadata.
func (m *MemoryIndex) Add(ctx context.Context, vec []float32, meta models.Metadata) (uint64, error) {
	return m.store.Append(vec, meta)
}

// Search returns the top-k records by cosine similarity.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if err := checkVector(query, m.store.Dimensions()); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", models.ErrInvalidArgument, k)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := m.store.Snapshot()
	workers := 1
	if len(records) >= m.parallelThreshold {
		workers = m.workers
	}
	return rank(records, query, k, workers), nil
}

// Get returns the record with the given id.
func (m *MemoryIndex) Get(id uint64) (*models.VectorRecord, bool) {
	return m.store.Get(id)
}

// Snapshot returns a consistent view of all stored records.
func (m *MemoryIndex) Snapshot() []*models.VectorRecord {
	return m.store.Snapshot()
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	return m.store.Count()
}

// Dimensions returns the vector dimension of the index.
func (m *MemoryIndex) Dimensions() int {
	return m.store.Dimensions()
}

// Workers returns the number of goroutines used for a parallel scan.
func (m *MemoryIndex) Workers() int {
	return m.workers
}

// Close is a no-op for MemoryIndex; the records live as long as the process.
func (m *MemoryIndex) Close() error {
	return nil
}
