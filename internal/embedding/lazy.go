package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/visionquery/internal/models"
)

var errClosed = errors.New("embedder closed")

// Lazy defers construction of a model until the first embedding request, so the server
// can start and answer health checks while the model is still unloaded.
//
// Lifecycle: init runs at most once; a failed init is not retried and every later call
// returns the same error; Close releases the model and prevents any later init.
type Lazy struct {
	provider   string
	dimensions int
	init       func() (Embedder, error)

	once      sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	emb       Embedder
	err       error
}

var _ Embedder = (*Lazy)(nil)

// NewLazy returns an Embedder that calls init on first use.
func NewLazy(provider string, dimensions int, init func() (Embedder, error)) *Lazy {
	return &Lazy{provider: provider, dimensions: dimensions, init: init}
}

func (l *Lazy) get() (Embedder, error) {
	l.once.Do(func() {
		emb, err := l.init()
		if err == nil && emb == nil {
			err = errors.New("initializer returned no embedder")
		}
		l.mu.Lock()
		l.emb, l.err = emb, err
		l.mu.Unlock()
	})
	l.mu.RLock()
	emb, err := l.emb, l.err
	l.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %s model unavailable: %w", models.ErrEmbeddingFailure, l.provider, err)
	}
	return emb, nil
}

// Load forces initialization and reports its outcome.
func (l *Lazy) Load() error {
	_, err := l.get()
	return err
}

// EmbedImage initializes the model if needed and embeds the image.
func (l *Lazy) EmbedImage(ctx context.Context, ref string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedImage(ctx, ref)
}

// EmbedText initializes the model if needed and embeds the text.
func (l *Lazy) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedText(ctx, text)
}

// Dimensions returns the configured dimension without loading the model.
func (l *Lazy) Dimensions() int {
	return l.dimensions
}

// Provider returns the configured provider without loading the model.
func (l *Lazy) Provider() string {
	return l.provider
}

// Close releases the model if it was loaded. Every later call fails.
func (l *Lazy) Close() error {
	var err error
	l.closeOnce.Do(func() {
		// waits for a running init and prevents any later one
		l.once.Do(func() {})
		l.mu.Lock()
		emb := l.emb
		l.emb, l.err = nil, errClosed
		l.mu.Unlock()
		if emb != nil {
			err = emb.Close()
		}
	})
	return err
}
