package models

import (
	"fmt"
	"strings"
)

// DefaultTopK is the number of results returned when a query omits top_k.
const DefaultTopK = 5

// SearchQuery is a text-to-image search request.
// TopK is a pointer so that an explicit 0 can be told apart from an omitted value.
type SearchQuery struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

// Validate checks the query and resolves TopK. An omitted TopK becomes defaultTopK
// (DefaultTopK when defaultTopK <= 0); values above maxTopK are capped when maxTopK > 0.
func (q *SearchQuery) Validate(defaultTopK, maxTopK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("%w: query text required", ErrInvalidArgument)
	}
	if q.TopK == nil {
		k := defaultTopK
		if k <= 0 {
			k = DefaultTopK
		}
		q.TopK = &k
	}
	if *q.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidArgument, *q.TopK)
	}
	if maxTopK > 0 && *q.TopK > maxTopK {
		k := maxTopK
		q.TopK = &k
	}
	return nil
}

// K returns the resolved result count. Call after Validate.
func (q *SearchQuery) K() int {
	if q.TopK == nil {
		return DefaultTopK
	}
	return *q.TopK
}
