package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/visionquery/internal/models"
)

type fakeEmbeddingServer struct {
	*httptest.Server
	mu     sync.Mutex
	inputs []string
	models []string
}

func (s *fakeEmbeddingServer) lastInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inputs) == 0 {
		return ""
	}
	return s.inputs[len(s.inputs)-1]
}

// newFakeEmbeddingServer answers every request with an OpenAI-compatible embedding
// response of dim components, or with status when status != 200.
func newFakeEmbeddingServer(t *testing.T, dim, status int) *fakeEmbeddingServer {
	t.Helper()
	s := &fakeEmbeddingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.inputs = append(s.inputs, req.Input...)
		s.models = append(s.models, req.Model)
		s.mu.Unlock()

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
			return
		}

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			vec := make([]float64, dim)
			for j := range vec {
				vec[j] = 0.01 * float64(j+1)
			}
			data[i] = item{Object: "embedding", Index: i, Embedding: vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func TestOpenAIEmbedder_EmbedText(t *testing.T) {
	const dim = 4
	srv := newFakeEmbeddingServer(t, dim, http.StatusOK)
	e := NewOpenAIEmbedder("test-key", dim, WithBaseURL(srv.URL), WithModel("clip-test"))

	vec, err := e.EmbedText(context.Background(), "a red car")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(vec) != dim {
		t.Fatalf("len(vec) = %d, want %d", len(vec), dim)
	}
	if got := srv.lastInput(); got != "a red car" {
		t.Errorf("server received %q", got)
	}
	srv.mu.Lock()
	sent := srv.models[0]
	srv.mu.Unlock()
	if e.Model() != "clip-test" || sent != "clip-test" {
		t.Errorf("model = %q, sent %q", e.Model(), sent)
	}
	if e.Provider() != ProviderOpenAI || e.Dimensions() != dim {
		t.Errorf("provider=%s dims=%d", e.Provider(), e.Dimensions())
	}
}

func TestOpenAIEmbedder_EmbedImage(t *testing.T) {
	const dim = 4
	srv := newFakeEmbeddingServer(t, dim, http.StatusOK)
	e := NewOpenAIEmbedder("test-key", dim, WithBaseURL(srv.URL))

	path := writePNG(t, t.TempDir(), "dot.png", 2, 2, color.White)
	if _, err := e.EmbedImage(context.Background(), path); err != nil {
		t.Fatalf("EmbedImage: %v", err)
	}
	if got := srv.lastInput(); !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("server received %.40q, want a PNG data URI", got)
	}
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	srv := newFakeEmbeddingServer(t, 4, http.StatusInternalServerError)
	e := NewOpenAIEmbedder("test-key", 4, WithBaseURL(srv.URL))
	ctx := context.Background()

	if _, err := e.EmbedText(ctx, "x"); !errors.Is(err, models.ErrEmbeddingFailure) {
		t.Errorf("server error: got %v, want ErrEmbeddingFailure", err)
	}
	if _, err := e.EmbedText(ctx, ""); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("empty text: got %v, want ErrInvalidArgument", err)
	}
	if _, err := e.EmbedImage(ctx, filepath.Join(t.TempDir(), "nope.png")); !errors.Is(err, models.ErrSourceUnavailable) {
		t.Errorf("missing image: got %v, want ErrSourceUnavailable", err)
	}
}
