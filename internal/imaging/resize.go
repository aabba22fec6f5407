// Package imaging decodes stored images and produces bounded renditions of
// them for review providers that reject large uploads.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is the encoder quality used for renditions.
const JPEGQuality = 85

// ErrEmptyImage is returned when asked to resize zero bytes.
var ErrEmptyImage = errors.New("imaging: empty image")

// Rendition is an encoded, resized image.
type Rendition struct {
	Data   []byte
	Width  int
	Height int
}

// Resize decodes src and scales it so its shorter side is at most shortSide,
// preserving the aspect ratio. Smaller images are re-encoded at their
// original size, never upscaled. The result is always JPEG.
func Resize(src []byte, shortSide int) (*Rendition, error) {
	if len(src) == 0 {
		return nil, ErrEmptyImage
	}
	if shortSide <= 0 {
		return nil, fmt.Errorf("imaging: invalid bound %d", shortSide)
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode: %w", err)
	}

	w, h := TargetSize(img.Bounds().Dx(), img.Bounds().Dy(), shortSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("imaging: encode %s as jpeg: %w", format, err)
	}
	return &Rendition{Data: buf.Bytes(), Width: w, Height: h}, nil
}

// TargetSize returns the dimensions of a w×h image scaled so that its
// shorter side is at most shortSide.
func TargetSize(w, h, shortSide int) (int, int) {
	short := min(w, h)
	if short <= shortSide || short <= 0 {
		return w, h
	}
	return max(w*shortSide/short, 1), max(h*shortSide/short, 1)
}

// Dimensions reads the pixel size of an encoded image without decoding it.
func Dimensions(src []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return 0, 0, fmt.Errorf("imaging: decode config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
