// Package detection locates candidate speech bubbles in a panel image.
//
// The detector is a pure function of its input: it converts the image to
// luminance, runs a Sobel edge filter, groups edge pixels into 4-connected
// components and keeps components whose bounding boxes look like bubbles.
package detection

import (
	"fmt"
	"image"
	"math"

	"github.com/unalkalkan/PanelReader/internal/imaging"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// Options tunes the detector. Zero values fall back to the defaults.
type Options struct {
	EdgeThreshold     float64
	MinSideRatio      float64
	MaxSideRatio      float64
	MinAspect         float64
	MaxAspect         float64
	MinPixels         int
	DefaultConfidence float64
	MaxDimension      int
}

// DefaultOptions returns the stock detector tuning.
func DefaultOptions() Options {
	return Options{
		EdgeThreshold:     30,
		MinSideRatio:      0.05,
		MaxSideRatio:      0.5,
		MinAspect:         0.3,
		MaxAspect:         3.0,
		MinPixels:         20,
		DefaultConfidence: 0.8,
	}
}

// OptionsFromConfig maps the detection config section onto Options.
func OptionsFromConfig(cfg types.DetectionConfig) Options {
	return Options{
		EdgeThreshold:     cfg.EdgeThreshold,
		MinSideRatio:      cfg.MinSideRatio,
		MaxSideRatio:      cfg.MaxSideRatio,
		MinAspect:         cfg.MinAspect,
		MaxAspect:         cfg.MaxAspect,
		MinPixels:         cfg.MinPixels,
		DefaultConfidence: cfg.DefaultConfidence,
		MaxDimension:      cfg.MaxDimension,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.EdgeThreshold <= 0 {
		o.EdgeThreshold = d.EdgeThreshold
	}
	if o.MinSideRatio <= 0 {
		o.MinSideRatio = d.MinSideRatio
	}
	if o.MaxSideRatio <= 0 {
		o.MaxSideRatio = d.MaxSideRatio
	}
	if o.MinAspect <= 0 {
		o.MinAspect = d.MinAspect
	}
	if o.MaxAspect <= 0 {
		o.MaxAspect = d.MaxAspect
	}
	if o.MinPixels <= 0 {
		o.MinPixels = d.MinPixels
	}
	if o.DefaultConfidence <= 0 {
		o.DefaultConfidence = d.DefaultConfidence
	}
	return o
}

// Detector finds bubble regions. It holds no per-image state and is safe
// for concurrent use.
type Detector struct {
	opts Options
}

// NewDetector creates a detector with the given options.
func NewDetector(opts Options) *Detector {
	return &Detector{opts: opts.withDefaults()}
}

// Detect returns the candidate regions of img in raster discovery order.
// Blank, uniform or tiny images yield an empty slice.
func (d *Detector) Detect(img image.Image) []types.Region {
	if img == nil {
		return []types.Region{}
	}
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW < 3 || srcH < 3 {
		return []types.Region{}
	}

	work, scale := imaging.Downscale(img, d.opts.MaxDimension)

	lum := luminance(work)
	edges := sobel(lum, d.opts.EdgeThreshold)
	comps := components(edges, lum.width, lum.height)

	minSide := lum.width
	if lum.height < minSide {
		minSide = lum.height
	}
	lo := d.opts.MinSideRatio * float64(minSide)
	hi := d.opts.MaxSideRatio * float64(minSide)

	regions := make([]types.Region, 0, len(comps))
	for _, c := range comps {
		if c.pixels < d.opts.MinPixels {
			continue
		}
		w := float64(c.maxX - c.minX + 1)
		h := float64(c.maxY - c.minY + 1)
		if w < lo || h < lo || w > hi || h > hi {
			continue
		}
		aspect := w / h
		if aspect < d.opts.MinAspect || aspect > d.opts.MaxAspect {
			continue
		}

		box := types.BoundingBox{
			X:      c.minX,
			Y:      c.minY,
			Width:  c.maxX - c.minX + 1,
			Height: c.maxY - c.minY + 1,
		}
		if scale != 1 {
			box = unscale(box, scale, srcW, srcH)
		}
		regions = append(regions, types.Region{
			ID:         fmt.Sprintf("region_%03d", len(regions)),
			Box:        box,
			Confidence: d.opts.DefaultConfidence,
		})
	}
	return regions
}

// unscale maps a box found on a downscaled image back to source pixels,
// clamped to the source bounds.
func unscale(box types.BoundingBox, scale float64, w, h int) types.BoundingBox {
	x0 := int(math.Floor(float64(box.X) / scale))
	y0 := int(math.Floor(float64(box.Y) / scale))
	x1 := int(math.Ceil(float64(box.X+box.Width) / scale))
	y1 := int(math.Ceil(float64(box.Y+box.Height) / scale))
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > w {
		x1 = w
	}
	if y1 > h {
		y1 = h
	}
	return types.BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
