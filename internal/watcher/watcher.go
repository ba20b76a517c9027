// Package watcher keeps the index in step with image directories on disk: new or
// changed images are ingested after a short debounce, new folders are synced, and
// removed files are forgotten so they are ingested again if they come back.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/visionquery/internal/indexer"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Handler receives the files the watcher decides to ingest. *indexer.Indexer implements it.
type Handler interface {
	IndexFile(ctx context.Context, path string) (*indexer.Result, error)
	IndexDirectory(ctx context.Context, dir string, recursive bool) (int, error)
	Forget(path string) bool
	Allowed(path string) bool
}

// Watcher watches image directories and forwards file changes to a Handler.
type Watcher struct {
	roots     []string
	recursive bool
	handler   Handler
	debounce  time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	ctx       context.Context
	watcher   *fsnotify.Watcher
	pending   map[string]*time.Timer
	rootPaths map[string][]string // root -> directories added to fsnotify
	done      chan struct{}
	started   bool
	stopOnce  sync.Once
	inflight  sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. Files are filtered by handler.Allowed.
func NewWatcher(roots []string, recursive bool, handler Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		roots:     append([]string(nil), roots...),
		recursive: recursive,
		handler:   handler,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		ctx:       context.Background(),
		pending:   make(map[string]*time.Timer),
		rootPaths: make(map[string][]string),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called. Missing roots
// are created. Existing files are not ingested; call SyncExistingFiles for that.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.logger.Debug("watcher starting", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))
	for i, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err == nil {
			w.roots[i] = abs
		}
		if err := w.addRootLocked(w.roots[i]); err != nil {
			_ = fw.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if ev.Has(fsnotify.Create) {
				w.handleNewDirectory(path)
			}
			return
		}
		if w.handler.Allowed(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		// A rename reports the old name; the new name arrives as a Create.
		w.cancel(path)
		if w.handler.Allowed(path) && w.handler.Forget(path) {
			w.logger.Info("image removed from watched directory", zap.String("path", path))
		}
	}
}

// handleNewDirectory watches a directory created (or moved) under a root and ingests the
// images already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	fw, recursive, ctx := w.watcher, w.recursive, w.ctx
	w.mu.Unlock()
	if fw == nil || !recursive {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				w.logger.Warn("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	w.sync(ctx, dir)
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		rootClean := filepath.Clean(root)
		if rootClean == clean || inDir(rootClean, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// schedule ingests path once it has been quiet for the debounce interval, so a file that
// is still being copied is embedded once, after the last write.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if prev, ok := w.pending[path]; ok && prev.Stop() {
		w.inflight.Done()
	}
	w.inflight.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.inflight.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		ctx := w.ctx
		w.mu.Unlock()
		w.index(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		delete(w.pending, path)
		w.inflight.Done()
	}
}

func (w *Watcher) index(ctx context.Context, path string) {
	res, err := w.handler.IndexFile(ctx, path)
	switch {
	case err == nil && res.Skipped:
		w.logger.Debug("watcher skipped unchanged image", zap.String("path", path))
	case err == nil:
		w.logger.Info("image indexed", zap.String("path", path), zap.Uint64("id", res.ID))
	case errors.Is(err, context.Canceled):
	default:
		w.logger.Warn("watcher failed to index image", zap.String("path", path), zap.Error(err))
	}
}

func (w *Watcher) sync(ctx context.Context, dir string) {
	w.mu.Lock()
	recursive := w.recursive
	w.mu.Unlock()
	n, err := w.handler.IndexDirectory(ctx, dir, recursive)
	if err != nil {
		w.logger.Warn("watcher sync finished with errors", zap.String("dir", dir), zap.Int("indexed", n), zap.Error(err))
		return
	}
	w.logger.Info("watcher synced directory", zap.String("dir", dir), zap.Int("indexed", n))
}

// AddDirectory adds a root directory to watch and optionally syncs existing files in the
// background.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return errors.New("watcher not started")
	}
	for _, r := range w.roots {
		if filepath.Clean(r) == filepath.Clean(abs) {
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		return err
	}
	w.roots = append(w.roots, abs)
	w.logger.Debug("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		w.inflight.Add(1)
		go func(ctx context.Context) {
			defer w.inflight.Done()
			w.sync(ctx, abs)
		}(w.ctx)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !w.recursive {
		if err := w.watcher.Add(root); err != nil {
			return err
		}
		w.rootPaths[root] = []string{root}
		return nil
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.rootPaths[root] = paths
	return nil
}

// RemoveDirectory stops watching the given root. Images already indexed stay in the index.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	i := -1
	for j, r := range w.roots {
		if filepath.Clean(r) == abs {
			i = j
			break
		}
	}
	if i < 0 {
		return nil
	}
	for _, p := range w.rootPaths[abs] {
		_ = w.watcher.Remove(p)
	}
	delete(w.rootPaths, abs)
	w.roots = append(w.roots[:i], w.roots[i+1:]...)
	w.logger.Debug("watcher directory removed", zap.String("path", abs))
	return nil
}

// Directories returns a copy of the current watched root directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles ingests the images already present in every root. It blocks until
// all roots are synced.
func (w *Watcher) SyncExistingFiles(ctx context.Context) {
	for _, root := range w.Directories() {
		w.sync(ctx, root)
	}
}

// Stop stops the watcher, cancels pending ingests, and waits for running ones to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		if t.Stop() {
			w.inflight.Done()
		}
		delete(w.pending, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
	w.inflight.Wait()
}
