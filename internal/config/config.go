// Package config provides configuration loading and structs for the VisionQuery server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the config file.
const (
	EnvOpenAIAPIKey      = "VISIONQUERY_OPENAI_API_KEY"
	EnvOpenAIBaseURL     = "VISIONQUERY_OPENAI_BASE_URL"
	EnvEmbeddingProvider = "VISIONQUERY_EMBEDDING_PROVIDER"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	CorsOrigins    []string      `yaml:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	// Provider is one of "onnx", "openai" or "mock".
	Provider          string       `yaml:"provider"`
	Dimensions        int          `yaml:"dimensions"`
	TextModelPath     string       `yaml:"text_model_path"`
	ImageModelPath    string       `yaml:"image_model_path"`
	ImageSize         int          `yaml:"image_size"`
	MaxTokens         int          `yaml:"max_tokens"`
	CacheSize         int          `yaml:"cache_size"`
	LibraryPath       string       `yaml:"library_path"`
	AllowMockFallback bool         `yaml:"allow_mock_fallback"`
	OpenAI            OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig holds settings for an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// SearchWorkers is the number of goroutines a single search may scan with.
	SearchWorkers int `yaml:"search_workers"`
	// ParallelThreshold is the record count below which a search scans sequentially.
	ParallelThreshold int `yaml:"parallel_threshold"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// IngestConfig holds settings for bulk and watched ingestion.
type IngestConfig struct {
	Extensions  []string `yaml:"extensions"`
	Concurrency int      `yaml:"concurrency"`
}

// Load reads and parses the config file at path, loads an optional .env file from the
// same directory, applies environment overrides, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	if cfg.Embedding.LibraryPath != "" {
		cfg.Embedding.LibraryPath = expandPath(cfg.Embedding.LibraryPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// A missing file is not an error. Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides config values with the VISIONQUERY_* environment variables that are set.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		cfg.Embedding.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		cfg.Embedding.OpenAI.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
		cfg.Embedding.OpenAI.BaseURL = v
	}
}

// Save writes the config to path. Used for persisting watch directory add/remove.
// The API key is never written back; keep it in the environment or .env.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Embedding.OpenAI.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
