// Package association groups recognized text fragments into the bubble
// regions that contain them.
package association

import (
	"sort"
	"strings"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// RegionText is the text gathered for one region.
type RegionText struct {
	Region    types.Region         `json:"region"`
	Text      string               `json:"text"`
	Fragments []types.TextFragment `json:"fragments,omitempty"`
}

// Associate assigns every fragment to the first region (in list order) whose
// box fully contains it and joins each region's fragments top-to-bottom.
// The output has one entry per region, in region order. Regions without
// fragments are kept with empty text. Unassigned fragments are dropped.
func Associate(regions []types.Region, fragments []types.TextFragment) []RegionText {
	out := make([]RegionText, len(regions))
	for i, r := range regions {
		out[i].Region = r
	}

	for _, f := range fragments {
		for i, r := range regions {
			if r.Box.Contains(f.Box) {
				out[i].Fragments = append(out[i].Fragments, f)
				break
			}
		}
	}

	for i := range out {
		out[i].Text = joinFragments(out[i].Fragments)
	}
	return out
}

// joinFragments orders fragments by their top edge, keeping recognizer
// order for ties, and joins their trimmed text with single spaces.
func joinFragments(fragments []types.TextFragment) string {
	if len(fragments) == 0 {
		return ""
	}
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Box.Y < fragments[j].Box.Y
	})

	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if text := strings.TrimSpace(f.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
