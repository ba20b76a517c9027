// Package embedding turns images and text into vectors in a shared embedding space.
//
// The index never sees raw inputs: an Embedder is the only component that loads images
// or runs a model. Every implementation reports failures with the error kinds from
// package models: ErrSourceUnavailable when the input cannot be read and
// ErrEmbeddingFailure when the model itself fails.
package embedding

import "context"

// Embedder produces fixed-length vectors for images and text.
type Embedder interface {
	// EmbedImage embeds the image referenced by ref (a file path).
	EmbedImage(ctx context.Context, ref string) ([]float32, error)
	// EmbedText embeds a natural-language query.
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	// Provider names the backing model implementation ("onnx", "openai", "mock").
	Provider() string
	Close() error
}

const (
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)
