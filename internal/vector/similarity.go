package vector

import (
	"fmt"
	"math"

	"github.com/hyperjump/visionquery/internal/models"
)

// InnerProduct returns the inner product of two vectors.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a,b) / (|a| * |b|) in [-1, 1].
// A zero-magnitude operand yields 0 rather than NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return cosine(a, L2Norm(a), b, L2Norm(b))
}

// cosine uses precomputed norms so a scan only pays for the dot product.
func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	s := InnerProduct(a, b) / (normA * normB)
	// rounding can push self-similarity just past 1
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// checkVector enforces the fixed dimension and rejects NaN or Inf components.
func checkVector(v []float32, dimensions int) error {
	if len(v) != dimensions {
		return fmt.Errorf("%w: got %d, expected %d", models.ErrDimensionMismatch, len(v), dimensions)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is not finite", models.ErrInvalidArgument, i)
		}
	}
	return nil
}
