package embedding

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hyperjump/visionquery/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is the CLIP model name served by most OpenAI-compatible embedding servers.
const DefaultOpenAIModel = "openai/clip-vit-base-patch32"

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint that hosts a CLIP
// model (for example a self-hosted inference server). Text is sent verbatim; images are
// sent as base64 data URIs, which such servers route to the vision encoder.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

type openAIConfig struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*openAIConfig)

// WithModel sets the embedding model name.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = client }
}

// NewOpenAIEmbedder creates a remote embedder producing vectors of dimensions components.
func NewOpenAIEmbedder(apiKey string, dimensions int, opts ...OpenAIOption) *OpenAIEmbedder {
	cfg := openAIConfig{
		model:      DefaultOpenAIModel,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAIEmbedder{
		client: &client,
		model:  cfg.model,
		dim:    dimensions,
	}
}

// EmbedText embeds a text query.
func (o *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", models.ErrInvalidArgument)
	}
	return o.embed(ctx, text)
}

// EmbedImage reads the image at ref and embeds it as a data URI.
func (o *OpenAIEmbedder) EmbedImage(ctx context.Context, ref string) ([]float32, error) {
	uri, err := ImageDataURI(ref)
	if err != nil {
		return nil, err
	}
	return o.embed(ctx, uri)
}

func (o *OpenAIEmbedder) embed(ctx context.Context, input string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{input}},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrEmbeddingFailure, o.model, err)
	}
	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", models.ErrEmbeddingFailure, len(resp.Data))
	}
	return float64sToFloat32s(resp.Data[0].Embedding), nil
}

// Dimensions returns the configured vector dimensionality.
func (o *OpenAIEmbedder) Dimensions() int {
	return o.dim
}

// Provider returns "openai".
func (o *OpenAIEmbedder) Provider() string {
	return ProviderOpenAI
}

// Model returns the model identifier sent to the server.
func (o *OpenAIEmbedder) Model() string {
	return o.model
}

// Close is a no-op; the HTTP client is shared.
func (o *OpenAIEmbedder) Close() error {
	return nil
}

func float64sToFloat32s(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
