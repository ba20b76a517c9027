package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/hyperjump/visionquery/internal/models"
)

// Validating checks every vector an Embedder returns: the length must equal the
// configured dimension and every component must be finite.
type Validating struct {
	Embedder
	dimensions int
}

// NewValidating wraps e. dimensions is the dimension the index was created with.
func NewValidating(e Embedder, dimensions int) *Validating {
	return &Validating{Embedder: e, dimensions: dimensions}
}

// EmbedImage embeds the image and validates the result.
func (v *Validating) EmbedImage(ctx context.Context, ref string) ([]float32, error) {
	emb, err := v.Embedder.EmbedImage(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := v.check(emb); err != nil {
		return nil, err
	}
	return emb, nil
}

// EmbedText embeds the text and validates the result.
func (v *Validating) EmbedText(ctx context.Context, text string) ([]float32, error) {
	emb, err := v.Embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := v.check(emb); err != nil {
		return nil, err
	}
	return emb, nil
}

// Dimensions returns the dimension vectors are checked against.
func (v *Validating) Dimensions() int {
	return v.dimensions
}

func (v *Validating) check(emb []float32) error {
	if len(emb) != v.dimensions {
		return fmt.Errorf("%w: %s embedder returned %d components, configured %d",
			models.ErrDimensionMismatch, v.Provider(), len(emb), v.dimensions)
	}
	for i, x := range emb {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: component %d is not finite", models.ErrEmbeddingFailure, i)
		}
	}
	return nil
}
