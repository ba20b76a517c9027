package models

// SearchResult is a single ranked hit. It is derived per query and never stored.
type SearchResult struct {
	ID         uint64            `json:"id"`
	Path       string            `json:"path"`
	Score      float64           `json:"score"`
	Rank       int               `json:"rank"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []SearchResult `json:"results"`
	Total     int            `json:"total"`
	Query     string         `json:"query,omitempty"`
	QueryTime int64          `json:"query_time_ms"`
}

// HealthResponse is the liveness document. It never depends on model readiness.
type HealthResponse struct {
	Status      string `json:"status"`
	RecordCount int    `json:"record_count"`
}

// StatusResponse describes the running index and its configuration.
type StatusResponse struct {
	RecordCount   int    `json:"record_count"`
	Dimensions    int    `json:"dimensions"`
	IndexType     string `json:"index_type"`
	SearchWorkers int    `json:"search_workers"`
	Embedder      string `json:"embedder"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
