package attribution

import (
	"sort"
	"strings"
	"time"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// Registry is the working copy of a user's character registry for one
// attribution pass. It is not safe for concurrent use; a pass owns it.
type Registry struct {
	entries types.CharacterRegistry
	names   map[string]string // normalized key -> display name
}

// NewRegistry copies initial into a working registry. Names that differ only
// in case collapse onto the alphabetically first display form.
func NewRegistry(initial types.CharacterRegistry) *Registry {
	r := &Registry{
		entries: make(types.CharacterRegistry, len(initial)),
		names:   make(map[string]string, len(initial)),
	}

	display := make([]string, 0, len(initial))
	for name := range initial {
		display = append(display, name)
	}
	sort.Strings(display)

	for _, name := range display {
		key := normalizeName(name)
		if key == "" {
			continue
		}
		if existing, ok := r.names[key]; ok {
			merged := r.entries[existing]
			entry := initial[name]
			merged.AppearanceCount += entry.AppearanceCount
			if entry.LastSeen.After(merged.LastSeen) {
				merged.LastSeen = entry.LastSeen
			}
			r.entries[existing] = merged
			continue
		}
		r.names[key] = name
		r.entries[name] = initial[name]
	}
	return r
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Canonical returns the display form a name is registered under.
func (r *Registry) Canonical(name string) (string, bool) {
	display, ok := r.names[normalizeName(name)]
	return display, ok
}

// Record counts one appearance of name at now and returns the display name
// it was recorded under. New characters are given the next voice index.
func (r *Registry) Record(name string, now time.Time) string {
	name = strings.TrimSpace(name)
	key := normalizeName(name)
	if key == "" || name == types.UnknownSpeaker {
		return name
	}

	if display, ok := r.names[key]; ok {
		entry := r.entries[display]
		entry.AppearanceCount++
		entry.LastSeen = now
		r.entries[display] = entry
		return display
	}

	r.names[key] = name
	r.entries[name] = types.CharacterEntry{
		AppearanceCount: 1,
		LastSeen:        now,
		VoiceIndex:      len(r.entries),
	}
	return name
}

// Lookup returns the entry for name, matched case-insensitively.
func (r *Registry) Lookup(name string) (types.CharacterEntry, bool) {
	display, ok := r.Canonical(name)
	if !ok {
		return types.CharacterEntry{}, false
	}
	return r.entries[display], true
}

// MostFrequentExcept returns the character with the highest appearance count
// other than exclude. Ties prefer the most recently seen, then the
// alphabetically first name.
func (r *Registry) MostFrequentExcept(exclude string) (string, bool) {
	excludeKey := normalizeName(exclude)

	var (
		best      string
		bestEntry types.CharacterEntry
		found     bool
	)
	for name, entry := range r.entries {
		if normalizeName(name) == excludeKey {
			continue
		}
		if !found || better(name, entry, best, bestEntry) {
			best, bestEntry, found = name, entry, true
		}
	}
	return best, found
}

func better(name string, entry types.CharacterEntry, bestName string, best types.CharacterEntry) bool {
	if entry.AppearanceCount != best.AppearanceCount {
		return entry.AppearanceCount > best.AppearanceCount
	}
	if !entry.LastSeen.Equal(best.LastSeen) {
		return entry.LastSeen.After(best.LastSeen)
	}
	return name < bestName
}

// Len returns the number of known characters.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Snapshot returns a copy of the registry suitable for persisting.
func (r *Registry) Snapshot() types.CharacterRegistry {
	out := make(types.CharacterRegistry, len(r.entries))
	for name, entry := range r.entries {
		out[name] = entry
	}
	return out
}
