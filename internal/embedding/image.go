package embedding

import (
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"strings"

	"github.com/hyperjump/visionquery/internal/models"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultImageSize is the CLIP ViT input resolution.
const DefaultImageSize = 224

// CLIP image normalization constants (RGB).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// LoadImage opens and decodes the image at path. Missing, unreadable and undecodable
// files are all reported as ErrSourceUnavailable.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrSourceUnavailable, path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", models.ErrSourceUnavailable, path, err)
	}
	return img, nil
}

// PreprocessImage center-crops img to a square, resizes it to size x size and returns
// CLIP-normalized pixel values in NCHW order (3 * size * size values).
func PreprocessImage(img image.Image, size int) []float32 {
	if size <= 0 {
		size = DefaultImageSize
	}
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := dst.PixOffset(x, y)
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[off+c]) / 255
				out[c*plane+i] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}

// ImageDataURI reads the file at path and returns it as a base64 data URI.
// Files that are missing or not images are reported as ErrSourceUnavailable.
func ImageDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrSourceUnavailable, path, err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: %s is not an image (%s)", models.ErrSourceUnavailable, path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
