package embedding

import (
	"container/list"
	"context"
	"strings"
	"sync"
)

// lruCache is a fixed-capacity map that drops the least recently used entry on overflow.
type lruCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front is most recently used

	hits, misses uint64
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

func newLRUCache[K comparable, V any](capacity int) *lruCache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &lruCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// get moves a hit to the front, so it needs the exclusive lock.
func (c *lruCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.hits++
		c.order.MoveToFront(el)
		return el.Value.(*lruEntry[K, V]).value, true
	}
	c.misses++
	var zero V
	return zero, false
}

func (c *lruCache[K, V]) put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry[K, V]).key)
	}
}

func (c *lruCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CacheStats reports text cache effectiveness.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// CachedEmbedder memoizes text embeddings by query text, ignoring differences in
// whitespace. Image embeddings are not cached: the file behind a path may change
// between calls.
type CachedEmbedder struct {
	Embedder
	texts *lruCache[string, []float32]
}

// NewCachedEmbedder wraps e with an LRU cache holding up to capacity query vectors.
func NewCachedEmbedder(e Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{Embedder: e, texts: newLRUCache[string, []float32](capacity)}
}

// EmbedText returns the cached vector for text or computes and caches it.
// Callers get their own copy of the vector.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := strings.Join(strings.Fields(text), " ")
	if cached, ok := c.texts.get(key); ok {
		return append([]float32(nil), cached...), nil
	}
	emb, err := c.Embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.texts.put(key, append([]float32(nil), emb...))
	return emb, nil
}

// Stats returns a snapshot of the cache counters.
func (c *CachedEmbedder) Stats() CacheStats {
	c.texts.mu.Lock()
	defer c.texts.mu.Unlock()
	return CacheStats{Entries: c.texts.order.Len(), Hits: c.texts.hits, Misses: c.texts.misses}
}
