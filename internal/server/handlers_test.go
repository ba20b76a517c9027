package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/visionquery/internal/config"
	"github.com/hyperjump/visionquery/internal/embedding"
	"github.com/hyperjump/visionquery/internal/metrics"
	"github.com/hyperjump/visionquery/internal/models"
	"github.com/hyperjump/visionquery/internal/search"
	"github.com/hyperjump/visionquery/internal/vector"
	"go.uber.org/zap"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Embedding.Provider = embedding.ProviderMock
	cfg.Embedding.Dimensions = 8
	config.ApplyDefaults(cfg)
	return cfg
}

func newTestServer(t *testing.T, emb embedding.Embedder, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	idx, err := vector.NewMemoryIndex(emb.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	engine, err := search.NewEngine(idx, emb, &cfg.Search)
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(engine, cfg, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	return s, s.Router()
}

func do(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func writeImages(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		f, err := os.Create(paths[i])
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
	return paths
}

func TestHandleIngestAndSearch(t *testing.T) {
	_, h := newTestServer(t, embedding.NewMockEmbedder(8))
	paths := writeImages(t, "dog.png", "red_car.png", "beach.png")

	for i, p := range paths {
		target := "/api/v1/images"
		if i == 0 {
			target = "/ingest/image"
		}
		rec := do(t, h, http.MethodPost, target, models.IngestRequest{Path: p})
		if rec.Code != http.StatusCreated {
			t.Fatalf("ingest %s: status %d body %s", p, rec.Code, rec.Body)
		}
		var resp models.IngestResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.ID != uint64(i+1) || resp.Status != "indexed" || resp.Path != p {
			t.Errorf("ingest response = %+v", resp)
		}
	}

	for _, target := range []string{"/api/v1/search", "/search"} {
		rec := do(t, h, http.MethodPost, target, `{"query":"red car","top_k":2}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d body %s", target, rec.Code, rec.Body)
		}
		var resp models.SearchResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if len(resp.Results) != 2 || resp.Total != 2 {
			t.Fatalf("%s: results = %+v", target, resp.Results)
		}
		if filepath.Base(resp.Results[0].Path) != "red_car.png" || resp.Results[0].Rank != 1 {
			t.Errorf("%s: top result = %+v", target, resp.Results[0])
		}
	}

	rec := do(t, h, http.MethodPost, "/api/v1/search", `{"query":"dog"}`)
	var resp models.SearchResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Results) != 3 {
		t.Errorf("default top_k should return min(5, 3) results, got %d", len(resp.Results))
	}
}

func TestHandleIngest_Errors(t *testing.T) {
	_, h := newTestServer(t, embedding.NewMockEmbedder(8))
	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"bad json", `{"path":`, http.StatusBadRequest},
		{"empty path", `{}`, http.StatusBadRequest},
		{"missing file", models.IngestRequest{Path: filepath.Join(t.TempDir(), "gone.jpg")}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/images", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Errorf("want error body, got %s", rec.Body)
			}
		})
	}
}

func TestHandleSearch_Errors(t *testing.T) {
	_, h := newTestServer(t, embedding.NewMockEmbedder(8))
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty query", `{"query":""}`, http.StatusBadRequest},
		{"zero top_k", `{"query":"dog","top_k":0}`, http.StatusBadRequest},
		{"negative top_k", `{"query":"dog","top_k":-1}`, http.StatusBadRequest},
		{"wrong type", `{"query":"dog","top_k":"five"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/api/v1/search", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}

	rec := do(t, h, http.MethodPost, "/api/v1/search", `{"query":"dog"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Errorf("empty index: status %d body %s", rec.Code, rec.Body)
	}
}

type brokenEmbedder struct {
	*embedding.MockEmbedder
}

func (brokenEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: model crashed", models.ErrEmbeddingFailure)
}

func TestHandleSearch_EmbeddingFailure(t *testing.T) {
	_, h := newTestServer(t, brokenEmbedder{embedding.NewMockEmbedder(8)})
	rec := do(t, h, http.MethodPost, "/api/v1/search", `{"query":"dog"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health must not depend on the embedder: %d", rec.Code)
	}
}

func TestHandleImageAndSimilar(t *testing.T) {
	_, h := newTestServer(t, embedding.NewMockEmbedder(8))
	for _, p := range writeImages(t, "a.png", "b.png", "c.png") {
		do(t, h, http.MethodPost, "/api/v1/images", models.IngestRequest{Path: p, Attributes: map[string]string{"album": "test"}})
	}

	rec := do(t, h, http.MethodGet, "/api/v1/images/2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get image: %d %s", rec.Code, rec.Body)
	}
	var got models.VectorRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != 2 || filepath.Base(got.Metadata.Path) != "b.png" || got.Metadata.Attributes["album"] != "test" {
		t.Errorf("image = %+v", got)
	}
	if strings.Contains(rec.Body.String(), "vector") {
		t.Error("raw vector should not be serialized")
	}

	rec = do(t, h, http.MethodGet, "/api/v1/images/1/similar?top_k=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("similar: %d %s", rec.Code, rec.Body)
	}
	var resp models.SearchResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Errorf("similar should exclude the source image: %+v", resp.Results)
	}

	for target, want := range map[string]int{
		"/api/v1/images/99":                 http.StatusNotFound,
		"/api/v1/images/abc":                http.StatusBadRequest,
		"/api/v1/images/99/similar":         http.StatusNotFound,
		"/api/v1/images/1/similar?top_k=0":  http.StatusBadRequest,
		"/api/v1/images/1/similar?top_k=xx": http.StatusBadRequest,
	} {
		if rec := do(t, h, http.MethodGet, target, nil); rec.Code != want {
			t.Errorf("GET %s: status %d, want %d", target, rec.Code, want)
		}
	}
}

func TestHandleHealthAndStatus(t *testing.T) {
	_, h := newTestServer(t, embedding.NewMockEmbedder(8), WithWatch(&mockWatchService{dirs: []string{"/images"}}, ""))
	do(t, h, http.MethodPost, "/api/v1/images", models.IngestRequest{Path: writeImages(t, "x.png")[0]})

	rec := do(t, h, http.MethodGet, "/health", nil)
	var health models.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.RecordCount != 1 {
		t.Errorf("health = %+v", health)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/status", nil)
	var status struct {
		models.StatusResponse
		WatchDirectories []string `json:"watch_directories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.RecordCount != 1 || status.Dimensions != 8 || status.IndexType != "memory" || status.Embedder != "mock" {
		t.Errorf("status = %+v", status.StatusResponse)
	}
	if len(status.WatchDirectories) != 1 {
		t.Errorf("watch directories = %v", status.WatchDirectories)
	}
}

func TestMiddleware_RequestIDCORSAndMetrics(t *testing.T) {
	m := metrics.New()
	_, h := newTestServer(t, embedding.NewMockEmbedder(8), WithMetrics(m))

	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("response should carry a generated request id")
	}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(requestIDHeader) != "abc-123" {
		t.Errorf("incoming request id not echoed: %q", rec.Header().Get(requestIDHeader))
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("CORS preflight not answered: %v", rec.Header())
	}

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `http_requests_total{endpoint="/health",method="GET"} 2`) {
		t.Errorf("metrics missing request counter:\n%s", rec.Body)
	}
}

func TestHandleWatchDirectories(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	ws := &mockWatchService{}
	_, h := newTestServer(t, embedding.NewMockEmbedder(8), WithWatch(ws, cfgPath))

	rec := do(t, h, http.MethodPost, "/api/v1/watch/directories", map[string]interface{}{"path": dir, "sync": false})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", rec.Code, rec.Body)
	}
	saved, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Watch.Directories) != 1 || saved.Watch.Directories[0] != dir {
		t.Errorf("persisted directories = %v", saved.Watch.Directories)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/watch/directories", nil)
	var list struct {
		Directories []string `json:"directories"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Directories) != 1 {
		t.Errorf("list = %v", list.Directories)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil)
	if rec.Code != http.StatusOK || len(ws.dirs) != 0 {
		t.Errorf("remove: %d, dirs %v", rec.Code, ws.dirs)
	}

	for _, tt := range []struct {
		body interface{}
		want int
	}{
		{map[string]string{}, http.StatusBadRequest},
		{map[string]string{"path": filepath.Join(dir, "nope")}, http.StatusNotFound},
	} {
		if rec := do(t, h, http.MethodPost, "/api/v1/watch/directories", tt.body); rec.Code != tt.want {
			t.Errorf("add %v: status %d, want %d", tt.body, rec.Code, tt.want)
		}
	}
}

func TestHandleWatchDirectories_NotEnabled(t *testing.T) {
	_, h := newTestServer(t, embedding.NewMockEmbedder(8))
	if rec := do(t, h, http.MethodGet, "/api/v1/watch/directories", nil); rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", models.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("x: %w", models.ErrSourceUnavailable), http.StatusNotFound},
		{models.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("x: %w", models.ErrDimensionMismatch), http.StatusInternalServerError},
		{fmt.Errorf("x: %w", models.ErrEmbeddingFailure), http.StatusBadGateway},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
