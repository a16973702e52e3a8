package detection

import (
	"image"
	"image/color"
	"testing"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

func newCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fillRect(img, image.Rect(0, 0, w, h), color.White)
	return img
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

func TestDetectFilledRectangle(t *testing.T) {
	img := newCanvas(200, 200)
	fillRect(img, image.Rect(40, 50, 100, 90), color.Black)

	regions := NewDetector(DefaultOptions()).Detect(img)
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d: %+v", len(regions), regions)
	}

	r := regions[0]
	want := types.BoundingBox{X: 39, Y: 49, Width: 62, Height: 42}
	if r.Box != want {
		t.Errorf("expected box %+v, got %+v", want, r.Box)
	}
	if r.ID != "region_000" {
		t.Errorf("expected ID region_000, got %s", r.ID)
	}
	if r.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", r.Confidence)
	}
}

func TestDetectRegionsWithinBounds(t *testing.T) {
	img := newCanvas(300, 240)
	fillRect(img, image.Rect(10, 10, 60, 50), color.Black)
	fillRect(img, image.Rect(150, 20, 220, 70), color.Black)
	fillRect(img, image.Rect(40, 150, 120, 200), color.Black)

	regions := NewDetector(DefaultOptions()).Detect(img)
	if len(regions) != 3 {
		t.Fatalf("expected 3 regions, got %d", len(regions))
	}

	minSide := 240.0
	for _, r := range regions {
		b := r.Box
		if b.X < 0 || b.Y < 0 || b.X+b.Width > 300 || b.Y+b.Height > 240 {
			t.Errorf("region %s out of bounds: %+v", r.ID, b)
		}
		if float64(b.Width) < 0.05*minSide || float64(b.Height) < 0.05*minSide {
			t.Errorf("region %s too small: %+v", r.ID, b)
		}
		if float64(b.Width) > 0.5*minSide || float64(b.Height) > 0.5*minSide {
			t.Errorf("region %s too large: %+v", r.ID, b)
		}
		aspect := float64(b.Width) / float64(b.Height)
		if aspect < 0.3 || aspect > 3.0 {
			t.Errorf("region %s aspect %v out of range", r.ID, aspect)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("region %s confidence %v out of range", r.ID, r.Confidence)
		}
	}

	// raster discovery order follows the top edge of each ring
	if regions[0].Box.Y != 9 || regions[1].Box.Y != 19 || regions[2].Box.Y != 149 {
		t.Errorf("unexpected discovery order: %+v", regions)
	}
}

func TestDetectFilters(t *testing.T) {
	tests := []struct {
		name string
		rect image.Rectangle
	}{
		{name: "too small", rect: image.Rect(50, 50, 54, 54)},
		{name: "too large", rect: image.Rect(10, 10, 150, 150)},
		{name: "too wide", rect: image.Rect(20, 90, 100, 100)},
		{name: "too tall", rect: image.Rect(90, 20, 100, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := newCanvas(200, 200)
			fillRect(img, tt.rect, color.Black)

			regions := NewDetector(DefaultOptions()).Detect(img)
			if len(regions) != 0 {
				t.Errorf("expected no regions, got %+v", regions)
			}
		})
	}
}

func TestDetectBlankAndTinyImages(t *testing.T) {
	d := NewDetector(DefaultOptions())

	tests := []struct {
		name string
		img  image.Image
	}{
		{name: "white", img: newCanvas(100, 100)},
		{name: "uniform gray", img: image.NewUniform(color.Gray{Y: 128})},
		{name: "2x2", img: image.NewRGBA(image.Rect(0, 0, 2, 2))},
		{name: "zero", img: image.NewRGBA(image.Rectangle{})},
		{name: "nil", img: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := tt.img
			if u, ok := img.(*image.Uniform); ok {
				rgba := image.NewRGBA(image.Rect(0, 0, 64, 64))
				fillRect(rgba, rgba.Bounds(), u.C)
				img = rgba
			}
			regions := d.Detect(img)
			if regions == nil {
				t.Fatal("expected empty slice, got nil")
			}
			if len(regions) != 0 {
				t.Errorf("expected no regions, got %d", len(regions))
			}
		})
	}
}

func TestDetectDoesNotMutateInput(t *testing.T) {
	img := newCanvas(120, 120)
	fillRect(img, image.Rect(30, 30, 70, 60), color.Black)
	before := make([]byte, len(img.Pix))
	copy(before, img.Pix)

	NewDetector(DefaultOptions()).Detect(img)

	for i := range before {
		if img.Pix[i] != before[i] {
			t.Fatalf("input pixel buffer modified at offset %d", i)
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	img := newCanvas(300, 240)
	fillRect(img, image.Rect(10, 10, 60, 50), color.Black)
	fillRect(img, image.Rect(150, 20, 220, 70), color.Black)

	d := NewDetector(DefaultOptions())
	first := d.Detect(img)
	for i := 0; i < 3; i++ {
		again := d.Detect(img)
		if len(again) != len(first) {
			t.Fatalf("run %d: expected %d regions, got %d", i, len(first), len(again))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Errorf("run %d: region %d differs: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestDetectSubImageOffset(t *testing.T) {
	img := newCanvas(300, 300)
	fillRect(img, image.Rect(140, 150, 200, 190), color.Black)
	sub := img.SubImage(image.Rect(100, 100, 300, 300))

	regions := NewDetector(DefaultOptions()).Detect(sub)
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(regions))
	}
	want := types.BoundingBox{X: 39, Y: 49, Width: 62, Height: 42}
	if regions[0].Box != want {
		t.Errorf("expected box relative to sub-image origin %+v, got %+v", want, regions[0].Box)
	}
}

func TestDetectDownscaledMapsBack(t *testing.T) {
	img := newCanvas(400, 400)
	fillRect(img, image.Rect(80, 100, 200, 180), color.Black)

	opts := DefaultOptions()
	opts.MaxDimension = 200
	regions := NewDetector(opts).Detect(img)
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(regions))
	}

	b := regions[0].Box
	if b.X < 70 || b.X > 82 || b.Y < 90 || b.Y > 102 {
		t.Errorf("box origin not mapped back to source space: %+v", b)
	}
	if b.X+b.Width < 198 || b.X+b.Width > 210 || b.Y+b.Height < 178 || b.Y+b.Height > 190 {
		t.Errorf("box extent not mapped back to source space: %+v", b)
	}
}
