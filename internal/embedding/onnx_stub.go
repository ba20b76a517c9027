//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ONNXConfig locates the CLIP encoders (see onnx.go for the real implementation).
type ONNXConfig struct {
	TextModelPath  string
	ImageModelPath string
	Dimensions     int
	MaxTokens      int
	ImageSize      int
	LibraryPath    string
}

// ONNXEmbedder stub type when built without CGO.
type ONNXEmbedder struct{}

var errONNXUnavailable = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_ ONNXConfig) (*ONNXEmbedder, error) {
	return nil, errONNXUnavailable
}

func (e *ONNXEmbedder) EmbedImage(context.Context, string) ([]float32, error) {
	return nil, errONNXUnavailable
}

func (e *ONNXEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, errONNXUnavailable
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Provider() string { return ProviderONNX }

func (e *ONNXEmbedder) Close() error { return nil }
