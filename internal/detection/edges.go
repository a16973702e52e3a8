package detection

import (
	"image"
	"math"
)

// grayBuffer is an 8-bit luminance image in row-major order.
type grayBuffer struct {
	width, height int
	pix           []uint8
}

func (g *grayBuffer) at(x, y int) float64 {
	return float64(g.pix[y*g.width+x])
}

// luminance converts img into a fresh grayscale buffer.
func luminance(img image.Image) *grayBuffer {
	b := img.Bounds()
	g := &grayBuffer{width: b.Dx(), height: b.Dy()}
	g.pix = make([]uint8, g.width*g.height)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < g.height; y++ {
			row := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride:]
			for x := 0; x < g.width; x++ {
				i := (x + b.Min.X - rgba.Rect.Min.X) * 4
				g.pix[y*g.width+x] = luma(uint32(row[i]), uint32(row[i+1]), uint32(row[i+2]))
			}
		}
		return g
	}

	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			g.pix[y*g.width+x] = luma(r>>8, gr>>8, bl>>8)
		}
	}
	return g
}

func luma(r, g, b uint32) uint8 {
	v := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	if v > 255 {
		v = 255
	}
	return uint8(v + 0.5)
}

// sobel returns a binary edge map: true where the gradient magnitude
// exceeds threshold. Border pixels are never edges.
func sobel(g *grayBuffer, threshold float64) []bool {
	edges := make([]bool, g.width*g.height)
	for y := 1; y < g.height-1; y++ {
		for x := 1; x < g.width-1; x++ {
			tl, tc, tr := g.at(x-1, y-1), g.at(x, y-1), g.at(x+1, y-1)
			ml, mr := g.at(x-1, y), g.at(x+1, y)
			bl, bc, br := g.at(x-1, y+1), g.at(x, y+1), g.at(x+1, y+1)

			gx := (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy := (bl + 2*bc + br) - (tl + 2*tc + tr)
			if math.Sqrt(gx*gx+gy*gy) > threshold {
				edges[y*g.width+x] = true
			}
		}
	}
	return edges
}
