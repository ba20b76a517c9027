// Package indexer ingests image files from disk into the search engine.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/visionquery/internal/fileid"
	"github.com/hyperjump/visionquery/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Attribute keys recorded with every file ingested by the indexer.
const (
	AttrSource = "source"
	AttrDigest = "digest"
	AttrMtime  = "mtime"
	AttrSize   = "size"
)

// ErrExtensionNotAllowed is returned by IndexFile for files outside the configured extensions.
var ErrExtensionNotAllowed = errors.New("extension not allowed")

// Ingester is the part of the search engine the indexer needs.
type Ingester interface {
	Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error)
}

type fileState struct {
	id     uint64
	digest string
	mtime  int64
	size   int64
}

// Indexer ingests files and remembers what it ingested, so an unchanged file is never
// indexed twice. The store is append-only; a changed file gets a new record.
type Indexer struct {
	engine      Ingester
	extensions  []string
	concurrency int
	source      string
	logger      *zap.Logger

	mu     sync.Mutex
	files  map[string]fileState
	flight singleflight.Group
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, file skipped, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithConcurrency sets how many files IndexDirectory embeds at once.
func WithConcurrency(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// WithSource sets the value of the "source" attribute on ingested records.
func WithSource(source string) IndexerOption {
	return func(idx *Indexer) { idx.source = source }
}

// NewIndexer creates an indexer feeding engine. If extensions is empty, every regular file
// is attempted and the embedder decides whether it is an image.
func NewIndexer(engine Ingester, extensions []string, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		engine:      engine,
		extensions:  extensions,
		concurrency: 4,
		source:      "indexer",
		logger:      zap.NewNop(),
		files:       make(map[string]fileState),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Result describes the outcome of IndexFile.
type Result struct {
	Path    string
	ID      uint64
	Skipped bool
}

// IndexFile ingests the image at path. It is skipped when the same path was already
// ingested with identical content. Returns ErrExtensionNotAllowed for filtered files.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*Result, error) {
	key := fileid.PathKey(path)
	if !idx.Allowed(key) {
		return nil, fmt.Errorf("%w: %s", ErrExtensionNotAllowed, filepath.Ext(key))
	}
	// Concurrent calls for one path share a single ingest.
	v, err, _ := idx.flight.Do(key, func() (interface{}, error) {
		return idx.indexFile(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	return &res, nil
}

func (idx *Indexer) indexFile(ctx context.Context, key string) (*Result, error) {
	info, err := os.Stat(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSourceUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrSourceUnavailable, key)
	}

	prev, seen := idx.lookup(key)
	mtime, size := info.ModTime().UnixNano(), info.Size()
	if seen && prev.mtime == mtime && prev.size == size {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", key))
		return &Result{Path: key, ID: prev.id, Skipped: true}, nil
	}
	digest, err := fileid.Digest(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSourceUnavailable, err)
	}
	if seen && prev.digest == digest {
		idx.remember(key, fileState{id: prev.id, digest: digest, mtime: mtime, size: size})
		idx.logger.Debug("indexer skipping file with unchanged content", zap.String("path", key))
		return &Result{Path: key, ID: prev.id, Skipped: true}, nil
	}

	resp, err := idx.engine.Ingest(ctx, &models.IngestRequest{
		Path: key,
		Attributes: map[string]string{
			AttrSource: idx.source,
			AttrDigest: digest,
			AttrMtime:  strconv.FormatInt(mtime, 10),
			AttrSize:   strconv.FormatInt(size, 10),
		},
	})
	if err != nil {
		return nil, err
	}
	idx.remember(key, fileState{id: resp.ID, digest: digest, mtime: mtime, size: size})
	idx.logger.Debug("indexer file indexed", zap.String("path", key), zap.Uint64("id", resp.ID))
	return &Result{Path: key, ID: resp.ID}, nil
}

// IndexDirectory walks dir and indexes every allowed regular file, at most concurrency at a
// time. A file that fails does not stop the walk; failures are logged and joined into the
// returned error. Returns the number of files newly indexed.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, recursive bool) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}

	var (
		indexed  atomic.Int64
		failMu   sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	walkErr := filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !idx.Allowed(path) {
			return nil
		}
		g.Go(func() error {
			res, err := idx.IndexFile(gctx, path)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				idx.logger.Warn("indexer failed to index file", zap.String("path", path), zap.Error(err))
				failMu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", path, err))
				failMu.Unlock()
				return nil
			}
			if !res.Skipped {
				indexed.Add(1)
			}
			return nil
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return int(indexed.Load()), err
	}
	if walkErr != nil {
		return int(indexed.Load()), walkErr
	}
	return int(indexed.Load()), errors.Join(failures...)
}

// Forget drops what the indexer remembers about path, so the file is indexed again if it
// reappears. The record already in the index is kept.
func (idx *Indexer) Forget(path string) bool {
	key := fileid.PathKey(path)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.files[key]
	delete(idx.files, key)
	if ok {
		idx.logger.Debug("indexer forgot file", zap.String("path", key))
	}
	return ok
}

// Tracked returns the number of files the indexer remembers.
func (idx *Indexer) Tracked() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.files)
}

// Allowed reports whether path has one of the configured extensions.
func (idx *Indexer) Allowed(path string) bool {
	return len(idx.extensions) == 0 || extensionAllowed(filepath.Ext(path), idx.extensions)
}

func (idx *Indexer) lookup(key string) (fileState, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	st, ok := idx.files[key]
	return st, ok
}

func (idx *Indexer) remember(key string, st fileState) {
	idx.mu.Lock()
	idx.files[key] = st
	idx.mu.Unlock()
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
