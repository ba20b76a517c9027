package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/visionquery/internal/config"
	"github.com/hyperjump/visionquery/internal/models"
	"go.uber.org/zap"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"a dog on the beach", "-top-k", "3"},
			expected: []string{"-top-k", "3", "a dog on the beach"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-top-k", "3", "a dog on the beach"},
			expected: []string{"-top-k", "3", "a dog on the beach"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"a dog on the beach"},
			expected: []string{"a dog on the beach"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-top-k", "5"},
			expected: []string{"-top-k", "5", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"sunset"}, "sunset"},
		{"multiple words", []string{"red", "car"}, "red car"},
		{"single quoted phrase", []string{"red car"}, "red car"},
		{"three words", []string{"dog", "on", "grass"}, "dog on grass"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
		{"one space", []string{" "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSearchConfigPathFromArgs(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		defaultPath string
		want   string
	}{
		{"no config flag", []string{"-top-k", "5", "query"}, "/default.yaml", "/default.yaml"},
		{"-config present", []string{"-config", "/custom.yaml", "query"}, "/default.yaml", "/custom.yaml"},
		{"--config present", []string{"--config", "/other.yaml"}, "/default.yaml", "/other.yaml"},
		{"config at end", []string{"query", "-config", "/end.yaml"}, "/default.yaml", "/end.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchConfigPathFromArgs(tt.args, tt.defaultPath)
			if got != tt.want {
				t.Errorf("searchConfigPathFromArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchTopKDefaultFromConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
search:
  default_top_k: 12
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if got := searchTopKDefaultFromConfig(configPath); got != 12 {
		t.Errorf("searchTopKDefaultFromConfig() = %d; want 12", got)
	}
	// Missing file falls back to the built-in default
	if got := searchTopKDefaultFromConfig(filepath.Join(dir, "nonexistent.yaml")); got != models.DefaultTopK {
		t.Errorf("searchTopKDefaultFromConfig(nonexistent) = %d; want %d", got, models.DefaultTopK)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
embedding:
  provider: mock
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
embedding:
  provider: mock
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestStringList(t *testing.T) {
	var s stringList
	_ = s.Set("/a")
	_ = s.Set("/b")
	if len(s) != 2 || s.String() != "/a,/b" {
		t.Errorf("stringList = %v", s)
	}
}

func TestInitializeComponents_mock(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 16
	config.ApplyDefaults(cfg)

	c, err := initializeComponents(cfg, zap.NewNop(), "test")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Engine == nil || c.Indexer == nil || c.Metrics == nil {
		t.Fatalf("components not wired: %+v", c)
	}
	if c.Index.Dimensions() != 16 || c.Engine.Count() != 0 {
		t.Errorf("index dims=%d count=%d", c.Index.Dimensions(), c.Engine.Count())
	}
}

func TestSearchInProcess_requiresDirectories(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("embedding:\n  provider: mock\n  dimensions: 8\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := searchInProcess(context.Background(), configPath, nil, &models.SearchQuery{Query: "cat"})
	if err == nil {
		t.Fatal("expected error when no directories are configured")
	}
}

func TestSearchInProcess_emptyDirectory(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("embedding:\n  provider: mock\n  dimensions: 8\n"), 0600); err != nil {
		t.Fatal(err)
	}
	images := t.TempDir()
	resp, err := searchInProcess(context.Background(), configPath, []string{images}, &models.SearchQuery{Query: "cat"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 || resp.Results == nil {
		t.Errorf("resp = %+v", resp)
	}
}
