//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hyperjump/visionquery/internal/models"
	"github.com/hyperjump/visionquery/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// Tensor names of the CLIP text and vision encoders as exported by Hugging Face Optimum.
const (
	onnxInputIDs      = "input_ids"
	onnxAttentionMask = "attention_mask"
	onnxPixelValues   = "pixel_values"
	onnxTextEmbeds    = "text_embeds"
	onnxImageEmbeds   = "image_embeds"
)

// ONNXConfig locates the CLIP encoders and fixes the tensor shapes.
type ONNXConfig struct {
	TextModelPath  string
	ImageModelPath string
	Dimensions     int
	MaxTokens      int
	ImageSize      int
	// LibraryPath optionally points at the onnxruntime shared library.
	LibraryPath    string
}

// ONNXEmbedder runs the CLIP text and vision encoders with ONNX Runtime.
// It requires CGO and the onnxruntime shared library. Each encoder has pre-allocated
// tensors, so runs on the same encoder are serialized by its own mutex.
type ONNXEmbedder struct {
	dimensions int
	maxTokens  int
	imageSize  int
	tokenizer  Tokenizer

	textMu              sync.Mutex
	textSession         *ort.AdvancedSession
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	textOutputTensor    *ort.Tensor[float32]

	imageMu           sync.Mutex
	imageSession      *ort.AdvancedSession
	pixelTensor       *ort.Tensor[float32]
	imageOutputTensor *ort.Tensor[float32]
}

// NewONNXEmbedder creates a CLIP embedder. InitializeEnvironment is called here, so an
// ONNXEmbedder is created once per process.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = clipContextLength
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = DefaultImageSize
	}
	for _, path := range []string{cfg.TextModelPath, cfg.ImageModelPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("model not found: %w", err)
		}
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	e := &ONNXEmbedder{
		dimensions: cfg.Dimensions,
		maxTokens:  cfg.MaxTokens,
		imageSize:  cfg.ImageSize,
		tokenizer:  &SimpleTokenizer{},
	}
	if err := e.initText(cfg.TextModelPath); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.initImage(cfg.ImageModelPath); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *ONNXEmbedder) initText(modelPath string) error {
	inputIDs, attentionMask := e.tokenizer.Tokenize("", e.maxTokens)
	var err error
	e.inputIDsTensor, err = ort.NewTensor(ort.NewShape(1, int64(e.maxTokens)), inputIDs)
	if err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.attentionMaskTensor, err = ort.NewTensor(ort.NewShape(1, int64(e.maxTokens)), attentionMask)
	if err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	e.textOutputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{onnxInputIDs, onnxAttentionMask},
		[]string{onnxTextEmbeds},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attentionMaskTensor},
		[]ort.ArbitraryTensor{e.textOutputTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text ONNX session: %w", err)
	}
	return nil
}

func (e *ONNXEmbedder) initImage(modelPath string) error {
	size := int64(e.imageSize)
	var err error
	e.pixelTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	e.imageOutputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.imageSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{onnxPixelValues},
		[]string{onnxImageEmbeds},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.imageOutputTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create image ONNX session: %w", err)
	}
	return nil
}

// EmbedText tokenizes text and runs the text encoder.
func (e *ONNXEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	inputIDs, attentionMask := e.tokenizer.Tokenize(text, e.maxTokens)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.textMu.Lock()
	defer e.textMu.Unlock()
	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("%w: text inference: %w", models.ErrEmbeddingFailure, err)
	}
	return e.readOutput(e.textOutputTensor), nil
}

// EmbedImage decodes and preprocesses the image at ref and runs the vision encoder.
// Decoding happens before the encoder lock is taken.
func (e *ONNXEmbedder) EmbedImage(ctx context.Context, ref string) ([]float32, error) {
	img, err := LoadImage(ref)
	if err != nil {
		return nil, err
	}
	pixels := PreprocessImage(img, e.imageSize)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.imageMu.Lock()
	defer e.imageMu.Unlock()
	copy(e.pixelTensor.GetData(), pixels)
	if err := e.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("%w: image inference: %w", models.ErrEmbeddingFailure, err)
	}
	return e.readOutput(e.imageOutputTensor), nil
}

func (e *ONNXEmbedder) readOutput(t *ort.Tensor[float32]) []float32 {
	emb := make([]float32, e.dimensions)
	copy(emb, t.GetData())
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Provider returns "onnx".
func (e *ONNXEmbedder) Provider() string {
	return ProviderONNX
}

// Close destroys the sessions and tensors and releases the ONNX environment.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.textSession != nil {
		err = e.textSession.Destroy()
		e.textSession = nil
	}
	if e.imageSession != nil {
		if imgErr := e.imageSession.Destroy(); err == nil {
			err = imgErr
		}
		e.imageSession = nil
	}
	if e.inputIDsTensor != nil {
		_ = e.inputIDsTensor.Destroy()
		e.inputIDsTensor = nil
	}
	if e.attentionMaskTensor != nil {
		_ = e.attentionMaskTensor.Destroy()
		e.attentionMaskTensor = nil
	}
	if e.textOutputTensor != nil {
		_ = e.textOutputTensor.Destroy()
		e.textOutputTensor = nil
	}
	if e.pixelTensor != nil {
		_ = e.pixelTensor.Destroy()
		e.pixelTensor = nil
	}
	if e.imageOutputTensor != nil {
		_ = e.imageOutputTensor.Destroy()
		e.imageOutputTensor = nil
	}
	_ = ort.DestroyEnvironment()
	return err
}
