package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/visionquery/internal/embedding"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/images/{id}/similar", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/images/"+id+"/similar", nil))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	out := scrape(t, m)
	want := `http_requests_total{endpoint="/api/v1/images/{id}/similar",method="GET"} 3`
	if !strings.Contains(out, want) {
		t.Errorf("missing %q in:\n%s", want, out)
	}
	if !strings.Contains(out, `http_requests_total{endpoint="unmatched",method="GET"} 1`) {
		t.Error("unrouted request should be counted as unmatched")
	}
	if strings.Contains(out, `/api/v1/images/1/similar`) {
		t.Error("raw path leaked into labels")
	}
	if !strings.Contains(out, `http_request_latency_seconds_count{endpoint="/api/v1/images/{id}/similar"} 3`) {
		t.Error("latency histogram not observed")
	}
}

func TestRegisterIndexSize(t *testing.T) {
	m := New()
	n := 7
	m.RegisterIndexSize(func() int { return n })
	if out := scrape(t, m); !strings.Contains(out, "visionquery_index_records 7") {
		t.Errorf("gauge missing:\n%s", out)
	}
	n = 9
	if out := scrape(t, m); !strings.Contains(out, "visionquery_index_records 9") {
		t.Error("gauge should read the current value on every scrape")
	}
}

type failingText struct {
	*embedding.MockEmbedder
}

func (failingText) EmbedText(context.Context, string) ([]float32, error) {
	return nil, errors.New("boom")
}

func TestInstrumentEmbedder(t *testing.T) {
	m := New()
	e := m.InstrumentEmbedder(failingText{embedding.NewMockEmbedder(4)})
	if e.Dimensions() != 4 || e.Provider() != embedding.ProviderMock {
		t.Errorf("metadata not passed through: %d %s", e.Dimensions(), e.Provider())
	}
	if _, err := e.EmbedText(context.Background(), "x"); err == nil {
		t.Fatal("expected error from wrapped embedder")
	}
	if _, err := e.EmbedImage(context.Background(), "/does/not/exist.jpg"); err == nil {
		t.Fatal("expected error for missing image")
	}
	out := scrape(t, m)
	for _, want := range []string{
		`visionquery_embedding_latency_seconds_count{modality="text"} 1`,
		`visionquery_embedding_latency_seconds_count{modality="image"} 1`,
		`visionquery_embedding_failures_total{modality="text"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestRegisterTextCache(t *testing.T) {
	m := New()
	cached := embedding.NewCachedEmbedder(embedding.NewMockEmbedder(4), 8)
	m.RegisterTextCache(cached.Stats)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cached.EmbedText(ctx, "a boat"); err != nil {
			t.Fatal(err)
		}
	}

	out := scrape(t, m)
	for _, want := range []string{
		"visionquery_text_cache_entries 1",
		"visionquery_text_cache_hits_total 2",
		"visionquery_text_cache_misses_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
