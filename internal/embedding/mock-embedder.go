package embedding

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/visionquery/internal/models"
	"github.com/hyperjump/visionquery/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and for running without a model.
// Text vectors are derived from the text hash. An image is embedded as the text of its
// file name stem ("red_car.jpg" embeds like "red car"), so a query equal to the stem
// finds the image with similarity 1. The image file must still be readable.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedText returns a deterministic unit vector based on the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := HashString(strings.ToLower(strings.TrimSpace(text)))
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedImage checks that the file is readable and embeds its name stem.
func (e *MockEmbedder) EmbedImage(ctx context.Context, ref string) ([]float32, error) {
	f, err := os.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrSourceUnavailable, ref, err)
	}
	_ = f.Close()
	return e.EmbedText(ctx, StemText(ref))
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Provider returns "mock".
func (e *MockEmbedder) Provider() string {
	return ProviderMock
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// StemText turns "/data/red_car-01.jpg" into "red car 01".
func StemText(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Join(strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	}), " ")
}
