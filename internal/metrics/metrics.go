// Package metrics exposes Prometheus metrics for HTTP traffic, embedding latency and the
// index size.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/visionquery/internal/embedding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Modality label values.
const (
	ModalityImage = "image"
	ModalityText  = "text"
)

// Metrics owns a private registry so tests and multiple servers never collide on the
// global one.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	embedLatency  *prometheus.HistogramVec
	embedFailures *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "endpoint"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_latency_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		embedLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visionquery_embedding_latency_seconds",
			Help:    "Embedding latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"modality"}),
		embedFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visionquery_embedding_failures_total",
			Help: "Embedding calls that returned an error",
		}, []string{"modality"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.latency,
		m.embedLatency,
		m.embedFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterIndexSize exports the value of count as the visionquery_index_records gauge.
func (m *Metrics) RegisterIndexSize(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "visionquery_index_records",
		Help: "Number of image records in the index",
	}, func() float64 { return float64(count()) }))
}

// RegisterTextCache exports the query embedding cache counters.
func (m *Metrics) RegisterTextCache(stats func() embedding.CacheStats) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "visionquery_text_cache_entries",
			Help: "Query embeddings held in the cache",
		}, func() float64 { return float64(stats().Entries) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "visionquery_text_cache_hits_total",
			Help: "Query embeddings served from the cache",
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "visionquery_text_cache_misses_total",
			Help: "Query embeddings computed by the model",
		}, func() float64 { return float64(stats().Misses) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests and observes their latency. The endpoint label is the chi
// route pattern ("/api/v1/images/{id}/similar"), not the raw path, so ids do not create
// new series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			endpoint := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					endpoint = p
				}
			}
			m.requests.WithLabelValues(r.Method, endpoint).Inc()
			m.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}()
		next.ServeHTTP(w, r)
	})
}

// InstrumentEmbedder wraps e so every embedding call is timed by modality.
func (m *Metrics) InstrumentEmbedder(e embedding.Embedder) embedding.Embedder {
	return &instrumented{Embedder: e, m: m}
}

type instrumented struct {
	embedding.Embedder
	m *Metrics
}

func (i *instrumented) EmbedImage(ctx context.Context, ref string) ([]float32, error) {
	return i.observe(ModalityImage, func() ([]float32, error) { return i.Embedder.EmbedImage(ctx, ref) })
}

func (i *instrumented) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return i.observe(ModalityText, func() ([]float32, error) { return i.Embedder.EmbedText(ctx, text) })
}

func (i *instrumented) observe(modality string, call func() ([]float32, error)) ([]float32, error) {
	start := time.Now()
	vec, err := call()
	i.m.embedLatency.WithLabelValues(modality).Observe(time.Since(start).Seconds())
	if err != nil {
		i.m.embedFailures.WithLabelValues(modality).Inc()
	}
	return vec, err
}
