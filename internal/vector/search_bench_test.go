package vector

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/hyperjump/visionquery/internal/models"
)

func BenchmarkMemoryIndex_Search(b *testing.B) {
	const dims = 512
	for _, size := range []int{1000, 10000} {
		for _, workers := range []int{1, 4} {
			b.Run(fmt.Sprintf("n=%d/workers=%d", size, workers), func(b *testing.B) {
				idx, _ := NewMemoryIndex(dims, WithSearchWorkers(workers), WithParallelThreshold(1))
				rng := rand.New(rand.NewSource(int64(size)))
				for i := 0; i < size; i++ {
					_, _ = idx.Add(context.Background(), randomVector(rng, dims), models.Metadata{Path: "img"})
				}
				q := randomVector(rng, dims)
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					_, _ = idx.Search(context.Background(), q, 10)
				}
			})
		}
	}
}
