package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/visionquery/internal/models"
)

// DefaultServerURL is where the CLI expects a running server.
const DefaultServerURL = "http://localhost:8080"

// StatusResult is the shape of GET /api/v1/status.
type StatusResult struct {
	models.StatusResponse
	WatchDirectories []string `json:"watch_directories,omitempty"`
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a VisionQuery server over its JSON API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Search runs a text query.
func (c *Client) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	var out models.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/search", query, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ingest asks the server to embed and index the image at req.Path. The path is
// resolved on the server's filesystem.
func (c *Client) Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error) {
	var out models.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/images", req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Similar returns the images nearest to image id.
func (c *Client) Similar(ctx context.Context, id uint64, topK int) (*models.SearchResponse, error) {
	path := "/api/v1/images/" + strconv.FormatUint(id, 10) + "/similar"
	if topK > 0 {
		path += "?top_k=" + strconv.Itoa(topK)
	}
	var out models.SearchResponse
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches index and model status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var out StatusResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WatchList lists the server's watched directories.
func (c *Client) WatchList(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/watch/directories", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

// WatchAdd starts watching dir, indexing its existing images when sync is set.
func (c *Client) WatchAdd(ctx context.Context, dir string, sync bool) error {
	body := map[string]interface{}{"path": dir, "sync": sync}
	return c.do(ctx, http.MethodPost, "/api/v1/watch/directories", body, http.StatusCreated, nil)
}

// WatchRemove stops watching dir.
func (c *Client) WatchRemove(ctx context.Context, dir string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(dir), nil, http.StatusOK, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}, want int, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a reply, falling back to the raw body.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(b))
}
