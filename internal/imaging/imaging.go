// Package imaging decodes panel images and prepares pixel buffers for
// detection and recognition.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Registered decoders for the formats panels arrive in.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// Decode decodes an encoded image and returns it with its format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// ToRGBA returns an RGBA copy of img with bounds starting at the origin.
// The source image is never modified.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Downscale shrinks img so its longer side is at most maxDim and returns the
// scale factor applied (1 when no scaling happened).
func Downscale(img image.Image, maxDim int) (image.Image, float64) {
	b := img.Bounds()
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}
	if maxDim <= 0 || longest <= maxDim {
		return img, 1
	}

	scale := float64(maxDim) / float64(longest)
	w := int(float64(b.Dx())*scale + 0.5)
	h := int(float64(b.Dy())*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, scale
}

// Crop copies the given box out of img, clipped to the image bounds.
func Crop(img image.Image, box types.BoundingBox) (image.Image, error) {
	b := img.Bounds()
	rect := image.Rect(
		b.Min.X+box.X,
		b.Min.Y+box.Y,
		b.Min.X+box.X+box.Width,
		b.Min.Y+box.Y+box.Height,
	).Intersect(b)
	if rect.Empty() {
		return nil, fmt.Errorf("region outside image bounds")
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
