// Package cli provides the client and output helpers behind the visionquery CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/visionquery/internal/models"
	"github.com/hyperjump/visionquery/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseOutputFormat maps a --output flag value to a format.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Unknown formats are written as text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%d\t%s\n", r.Rank, r.Score, r.ID, r.Path)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	if response.Query != "" {
		fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", response.Total, response.Query, response.QueryTime)
	} else {
		fmt.Fprintf(w, "\nFound %d results in %dms\n\n", response.Total, response.QueryTime)
	}
	for _, r := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | ID: %d\n", r.Rank, r.Score, r.ID)
		fmt.Fprintf(w, "Path: %s\n", r.Path)
		for _, k := range sortedKeys(r.Attributes) {
			fmt.Fprintf(w, "  %s: %s\n", k, utils.Truncate(r.Attributes[k], 80))
		}
		fmt.Fprintln(w)
	}
}

// WriteStatus writes server status as text or JSON. Compact is treated as text.
func WriteStatus(w io.Writer, status *StatusResult, format SearchOutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "records:            %d   # images in the index\n", status.RecordCount)
	fmt.Fprintf(w, "dimensions:         %d\n", status.Dimensions)
	fmt.Fprintf(w, "index_type:         %s\n", status.IndexType)
	fmt.Fprintf(w, "search_workers:     %d\n", status.SearchWorkers)
	fmt.Fprintf(w, "embedder:           %s\n", status.Embedder)
	fmt.Fprintf(w, "uptime_seconds:     %d\n", status.UptimeSeconds)
	if len(status.WatchDirectories) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# watched directories")
		for _, d := range status.WatchDirectories {
			fmt.Fprintln(w, d)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
