package vector

import (
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/visionquery/internal/models"
)

// firstID is the id given to the first record of a store.
const firstID uint64 = 1

// Store is an append-only collection of VectorRecords.
// Appends are exclusive; snapshots are shared and never observe a partially written record.
type Store struct {
	dimensions int
	mu         sync.RWMutex
	records    []*models.VectorRecord
	nextID     uint64
}

// NewStore creates an empty store for vectors of the given dimension.
func NewStore(dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &Store{
		dimensions: dimensions,
		records:    make([]*models.VectorRecord, 0),
		nextID:     firstID,
	}, nil
}

// Append copies vec and meta into a new record and returns the assigned id.
func (s *Store) Append(vec []float32, meta models.Metadata) (uint64, error) {
	if err := checkVector(vec, s.dimensions); err != nil {
		return 0, err
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	rec := &models.VectorRecord{
		Vector:    cp,
		Norm:      L2Norm(cp),
		Metadata:  cloneMetadata(meta),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return rec.ID, nil
}

// Snapshot returns every record stored so far. The slice is capacity-clipped, so later
// appends are never visible through it, and records are never modified after publication.
func (s *Store) Snapshot() []*models.VectorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	return s.records[:n:n]
}

// Get returns the record with the given id.
func (s *Store) Get(id uint64) (*models.VectorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < firstID || id-firstID >= uint64(len(s.records)) {
		return nil, false
	}
	return s.records[id-firstID], true
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dimensions returns the fixed vector dimension.
func (s *Store) Dimensions() int {
	return s.dimensions
}

func cloneMetadata(meta models.Metadata) models.Metadata {
	out := models.Metadata{Path: meta.Path}
	if len(meta.Attributes) > 0 {
		out.Attributes = cloneAttributes(meta.Attributes)
	}
	return out
}

func cloneAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
