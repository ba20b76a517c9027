package vector

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/hyperjump/visionquery/internal/models"
)

type candidate struct {
	rec   *models.VectorRecord
	score float64
}

// ranksBefore orders by descending score, then ascending id.
func ranksBefore(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.rec.ID < b.rec.ID
}

// candidateHeap keeps the k best candidates seen so far; the root is the worst of them.
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return ranksBefore(h[j], h[i]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x interface{}) {
	*h = append(*h, x.(candidate))
}

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// scan returns the best k candidates of records, unordered.
func scan(records []*models.VectorRecord, query []float32, queryNorm float64, k int) []candidate {
	h := make(candidateHeap, 0, k)
	for _, rec := range records {
		c := candidate{rec: rec, score: cosine(query, queryNorm, rec.Vector, rec.Norm)}
		if h.Len() < k {
			heap.Push(&h, c)
		} else if ranksBefore(c, h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	return h
}

// scanParallel splits records into contiguous partitions, scans each in its own goroutine
// and returns the union of the partial top-k sets.
func scanParallel(records []*models.VectorRecord, query []float32, queryNorm float64, k, workers int) []candidate {
	size := (len(records) + workers - 1) / workers
	partials := make([][]candidate, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * size
		if start >= len(records) {
			break
		}
		end := min(start+size, len(records))
		wg.Add(1)
		go func(w int, part []*models.VectorRecord) {
			defer wg.Done()
			partials[w] = scan(part, query, queryNorm, k)
		}(w, records[start:end])
	}
	wg.Wait()

	merged := make([]candidate, 0, workers*k)
	for _, p := range partials {
		merged = append(merged, p...)
	}
	return merged
}

// rank scores records against query and returns the top k as ordered results.
// workers <= 1 scans sequentially. The caller validates query and k.
func rank(records []*models.VectorRecord, query []float32, k, workers int) []models.SearchResult {
	if len(records) == 0 {
		return []models.SearchResult{}
	}
	k = min(k, len(records))
	queryNorm := L2Norm(query)

	var best []candidate
	if workers > 1 && len(records) > workers {
		best = scanParallel(records, query, queryNorm, k, workers)
	} else {
		best = scan(records, query, queryNorm, k)
	}
	sort.Slice(best, func(i, j int) bool { return ranksBefore(best[i], best[j]) })
	if len(best) > k {
		best = best[:k]
	}

	results := make([]models.SearchResult, len(best))
	for i, c := range best {
		results[i] = models.SearchResult{
			ID:         c.rec.ID,
			Path:       c.rec.Metadata.Path,
			Score:      c.score,
			Rank:       i + 1,
			Attributes: cloneAttributes(c.rec.Metadata.Attributes),
		}
	}
	return results
}
