package vector

import (
	"context"
	"testing"

	"github.com/hyperjump/visionquery/internal/models"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex("memory", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()

	if _, err := idx.Add(context.Background(), []float32{1, 0, 0}, models.Metadata{Path: "a.jpg"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	if idx.Type() != "memory" {
		t.Errorf("Type=%s", idx.Type())
	}
}

func TestNewVectorIndex_Empty(t *testing.T) {
	// empty string defaults to memory
	idx, err := NewVectorIndex("", 3, WithSearchWorkers(2))
	if err != nil {
		t.Fatalf("NewVectorIndex(''): %v", err)
	}
	defer idx.Close()
	if idx.Size() != 0 || idx.Dimensions() != 3 {
		t.Errorf("Size=%d Dimensions=%d", idx.Size(), idx.Dimensions())
	}
	if idx.(*MemoryIndex).Workers() != 2 {
		t.Errorf("Workers=%d, want 2", idx.(*MemoryIndex).Workers())
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	if _, err := NewVectorIndex("hnsw", 3); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	if _, err := NewVectorIndex("memory", 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}
