package embedding

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hyperjump/visionquery/internal/config"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg.Provider. The model itself is loaded lazily on
// the first request. Returned vectors are checked against cfg.Dimensions, and text
// embeddings are cached when cfg.CacheSize > 0.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var load func() (Embedder, error)
	switch cfg.Provider {
	case ProviderONNX:
		load = func() (Embedder, error) {
			return NewONNXEmbedder(ONNXConfig{
				TextModelPath:  cfg.TextModelPath,
				ImageModelPath: cfg.ImageModelPath,
				Dimensions:     cfg.Dimensions,
				MaxTokens:      cfg.MaxTokens,
				ImageSize:      cfg.ImageSize,
				LibraryPath:    cfg.LibraryPath,
			})
		}
	case ProviderOpenAI:
		load = func() (Embedder, error) {
			client := &http.Client{Timeout: time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second}
			return NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.Dimensions,
				WithBaseURL(cfg.OpenAI.BaseURL),
				WithModel(cfg.OpenAI.Model),
				WithHTTPClient(client),
			), nil
		}
	case ProviderMock:
		load = func() (Embedder, error) {
			return NewMockEmbedder(cfg.Dimensions), nil
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, openai, mock)", cfg.Provider)
	}

	withFallback := func() (Embedder, error) {
		start := time.Now()
		e, err := load()
		if err != nil {
			if !cfg.AllowMockFallback {
				logger.Error("embedding model failed to load", zap.String("provider", cfg.Provider), zap.Error(err))
				return nil, err
			}
			logger.Warn("embedding model failed to load, falling back to mock embedder",
				zap.String("provider", cfg.Provider), zap.Error(err))
			return NewMockEmbedder(cfg.Dimensions), nil
		}
		logger.Info("embedding model loaded",
			zap.String("provider", cfg.Provider),
			zap.Int("dimensions", cfg.Dimensions),
			zap.Duration("took", time.Since(start)))
		return e, nil
	}

	var e Embedder = NewValidating(NewLazy(cfg.Provider, cfg.Dimensions, withFallback), cfg.Dimensions)
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
