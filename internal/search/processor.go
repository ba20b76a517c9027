package search

import (
	"strings"

	"github.com/hyperjump/visionquery/internal/config"
	"github.com/hyperjump/visionquery/internal/models"
)

// ProcessQuery collapses runs of whitespace in the query text, then validates it and
// resolves top_k against cfg. A nil cfg uses the model defaults without a cap.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) error {
	query.Query = strings.Join(strings.Fields(query.Query), " ")
	var defaultTopK, maxTopK int
	if cfg != nil {
		defaultTopK, maxTopK = cfg.DefaultTopK, cfg.MaxTopK
	}
	return query.Validate(defaultTopK, maxTopK)
}
