package types

import (
	"fmt"
	"time"
)

// UnknownSpeaker labels dialogue whose speaker could not be determined
const UnknownSpeaker = "Unknown"

// BoundingBox is an axis-aligned rectangle in image pixel space
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether other lies fully inside b (edges inclusive)
func (b BoundingBox) Contains(other BoundingBox) bool {
	return other.X >= b.X &&
		other.Y >= b.Y &&
		other.X+other.Width <= b.X+b.Width &&
		other.Y+other.Height <= b.Y+b.Height
}

// Empty reports whether the box has no area
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Region is a detected area hypothesized to contain one speech bubble
type Region struct {
	ID         string      `json:"id"`
	Box        BoundingBox `json:"bounding_box"`
	Confidence float64     `json:"confidence"`
}

// TextFragment is a span of recognized text with its own bounding box
type TextFragment struct {
	Text       string      `json:"text"`
	Box        BoundingBox `json:"bounding_box"`
	Confidence float64     `json:"confidence"`
}

// UnitStatus tracks playback progress of a single dialogue unit
type UnitStatus string

const (
	UnitPending  UnitStatus = "pending"
	UnitSpeaking UnitStatus = "speaking"
	UnitDone     UnitStatus = "done"
	UnitFailed   UnitStatus = "failed"
)

// rank orders statuses so transitions can only move forward
func (s UnitStatus) rank() int {
	switch s {
	case UnitPending:
		return 0
	case UnitSpeaking:
		return 1
	case UnitDone, UnitFailed:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next is a forward transition
func (s UnitStatus) CanAdvanceTo(next UnitStatus) bool {
	return next.rank() > s.rank()
}

// VoiceConfig is a concrete synthesis configuration
type VoiceConfig struct {
	VoiceID  string            `json:"voice_id" yaml:"voice_id" validate:"required"`
	Provider string            `json:"provider" yaml:"provider" validate:"required"`
	Settings map[string]string `json:"settings,omitempty" yaml:"settings"`
}

// IsZero reports whether no voice has been configured
func (v VoiceConfig) IsZero() bool {
	return v.VoiceID == "" && v.Provider == ""
}

// DialogueUnit is one attributed, ordered line of dialogue ready for playback
type DialogueUnit struct {
	SequenceIndex int          `json:"sequence_index"`
	Speaker       string       `json:"speaker"`
	Text          string       `json:"dialogue"`
	SourceBox     *BoundingBox `json:"bounding_box,omitempty"`
	Voice         VoiceConfig  `json:"voice"`
	Status        UnitStatus   `json:"status"`
}

// Timeline is the ordered sequence of dialogue units for one panel
type Timeline []DialogueUnit

// Validate checks that every unit's SequenceIndex matches its position
func (t Timeline) Validate() error {
	for i, unit := range t {
		if unit.SequenceIndex != i {
			return fmt.Errorf("timeline unit at position %d has sequence index %d", i, unit.SequenceIndex)
		}
	}
	return nil
}

// Reindex rewrites sequence indexes to match positions
func (t Timeline) Reindex() {
	for i := range t {
		t[i].SequenceIndex = i
	}
}

// Clone returns a deep copy with every status reset to pending
func (t Timeline) Clone() Timeline {
	out := make(Timeline, len(t))
	for i, unit := range t {
		out[i] = unit
		out[i].Status = UnitPending
		if unit.SourceBox != nil {
			box := *unit.SourceBox
			out[i].SourceBox = &box
		}
		if unit.Voice.Settings != nil {
			settings := make(map[string]string, len(unit.Voice.Settings))
			for k, v := range unit.Voice.Settings {
				settings[k] = v
			}
			out[i].Voice.Settings = settings
		}
	}
	return out
}

// CharacterEntry holds what is known about one recurring speaker
type CharacterEntry struct {
	AppearanceCount int       `json:"appearance_count"`
	LastSeen        time.Time `json:"last_seen"`
	VoiceIndex      int       `json:"voice_index"`
}

// CharacterRegistry maps speaker display names to their entries
type CharacterRegistry map[string]CharacterEntry

// UserData is the per-user document held by the preference store
type UserData struct {
	UserID           string                 `json:"user_id"`
	Characters       CharacterRegistry      `json:"characters"`
	VoicePreferences map[string]VoiceConfig `json:"voice_preferences"`
	DefaultVoice     *VoiceConfig           `json:"default_voice,omitempty"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// NewUserData returns an empty document for a user
func NewUserData(userID string) *UserData {
	return &UserData{
		UserID:           userID,
		Characters:       make(CharacterRegistry),
		VoicePreferences: make(map[string]VoiceConfig),
	}
}
