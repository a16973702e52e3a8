package detection

import (
	"sort"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// SortReadingOrder returns regions ordered the way a reader scans a page:
// top-to-bottom by row band, then left-to-right (or right-to-left for
// manga-style layouts). A region joins the current band when its top edge
// lies above the vertical center of the band's first region. IDs are kept.
func SortReadingOrder(regions []types.Region, rightToLeft bool) []types.Region {
	out := make([]types.Region, len(regions))
	copy(out, regions)
	if len(out) < 2 {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Box.Y < out[j].Box.Y
	})

	var bands [][]types.Region
	for _, r := range out {
		n := len(bands)
		if n > 0 {
			anchor := bands[n-1][0].Box
			if r.Box.Y < anchor.Y+anchor.Height/2 {
				bands[n-1] = append(bands[n-1], r)
				continue
			}
		}
		bands = append(bands, []types.Region{r})
	}

	out = out[:0]
	for _, band := range bands {
		sort.SliceStable(band, func(i, j int) bool {
			if rightToLeft {
				return band[i].Box.X+band[i].Box.Width > band[j].Box.X+band[j].Box.Width
			}
			return band[i].Box.X < band[j].Box.X
		})
		out = append(out, band...)
	}
	return out
}
