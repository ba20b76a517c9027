// Package search coordinates the embedder and the vector index: it is the single entry
// point the HTTP layer, the CLI server and the watcher use to ingest and query images.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/visionquery/internal/config"
	"github.com/hyperjump/visionquery/internal/embedding"
	"github.com/hyperjump/visionquery/internal/models"
	"github.com/hyperjump/visionquery/internal/vector"
	"go.uber.org/zap"
)

// StatusIndexed is the status reported for a successfully ingested image.
const StatusIndexed = "indexed"

// Engine owns the vector index. The embedder is always called before the index is
// touched, so slow inference never holds the index lock and a failed request leaves the
// index unchanged.
type Engine struct {
	index    vector.VectorIndex
	embedder embedding.Embedder
	config   *config.SearchConfig
	logger   *zap.Logger
	started  time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine over index using embedder. cfg may be nil.
func NewEngine(index vector.VectorIndex, embedder embedding.Embedder, cfg *config.SearchConfig, opts ...Option) (*Engine, error) {
	if index == nil || embedder == nil {
		return nil, fmt.Errorf("%w: index and embedder are required", models.ErrInvalidArgument)
	}
	if embedder.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, index expects %d",
			models.ErrDimensionMismatch, embedder.Dimensions(), index.Dimensions())
	}
	if cfg == nil {
		cfg = &config.SearchConfig{DefaultTopK: models.DefaultTopK}
	}
	e := &Engine{
		index:    index,
		embedder: embedder,
		config:   cfg,
		logger:   zap.NewNop(),
		started:  time.Now(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Ingest embeds the image at req.Path and appends it to the index.
func (e *Engine) Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	vec, err := e.embedder.EmbedImage(ctx, req.Path)
	if err != nil {
		return nil, fmt.Errorf("embed image %s: %w", req.Path, err)
	}
	id, err := e.index.Add(ctx, vec, models.Metadata{Path: req.Path, Attributes: req.Attributes})
	if err != nil {
		return nil, fmt.Errorf("index image %s: %w", req.Path, err)
	}
	e.logger.Debug("image indexed", zap.Uint64("id", id), zap.String("path", req.Path))
	return &models.IngestResponse{ID: id, Path: req.Path, Status: StatusIndexed}, nil
}

// Search embeds the query text and returns the top-k most similar images.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query, e.config); err != nil {
		return nil, err
	}
	vec, err := e.embedder.EmbedText(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := e.index.Search(ctx, vec, query.K())
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return newResponse(query.Query, results, startTime), nil
}

// SearchVector returns the top-k records most similar to vec.
func (e *Engine) SearchVector(ctx context.Context, vec []float32, k int) ([]models.SearchResult, error) {
	return e.index.Search(ctx, vec, k)
}

// Similar returns up to k images most similar to the already-indexed record id, excluding
// the record itself. It reuses the stored vector and never calls the embedder.
func (e *Engine) Similar(ctx context.Context, id uint64, k int) (*models.SearchResponse, error) {
	startTime := time.Now()
	if k <= 0 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", models.ErrInvalidArgument, k)
	}
	if maxK := e.config.MaxTopK; maxK > 0 && k > maxK {
		k = maxK
	}
	rec, ok := e.index.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: image %d", models.ErrNotFound, id)
	}
	// the index holds at least rec, so k+1 cannot overflow
	k = min(k, e.index.Size())
	results, err := e.index.Search(ctx, rec.Vector, k+1)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	filtered := make([]models.SearchResult, 0, k)
	for _, r := range results {
		if r.ID == id || len(filtered) == k {
			continue
		}
		r.Rank = len(filtered) + 1
		filtered = append(filtered, r)
	}
	return newResponse(rec.Metadata.Path, filtered, startTime), nil
}

// Image returns the stored record for id. The record must not be modified.
func (e *Engine) Image(id uint64) (*models.VectorRecord, error) {
	rec, ok := e.index.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: image %d", models.ErrNotFound, id)
	}
	return rec, nil
}

// Health reports liveness and the record count. It never touches the embedder.
func (e *Engine) Health() models.HealthResponse {
	return models.HealthResponse{Status: "ok", RecordCount: e.index.Size()}
}

// Status reports index and embedder diagnostics.
func (e *Engine) Status() models.StatusResponse {
	workers := 1
	if w, ok := e.index.(interface{ Workers() int }); ok {
		workers = w.Workers()
	}
	return models.StatusResponse{
		RecordCount:   e.index.Size(),
		Dimensions:    e.index.Dimensions(),
		IndexType:     e.index.Type(),
		SearchWorkers: workers,
		Embedder:      e.embedder.Provider(),
		UptimeSeconds: int64(time.Since(e.started).Seconds()),
	}
}

// Count returns the number of indexed images.
func (e *Engine) Count() int {
	return e.index.Size()
}

func newResponse(query string, results []models.SearchResult, startTime time.Time) *models.SearchResponse {
	if results == nil {
		results = []models.SearchResult{}
	}
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		Query:     query,
		QueryTime: time.Since(startTime).Milliseconds(),
	}
}
