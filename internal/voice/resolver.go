// Package voice picks the synthesis voice for each speaker.
package voice

import (
	"strings"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

const (
	// FallbackProvider is used when nothing else is configured.
	FallbackProvider = "stub"
	// FallbackVoice is used when nothing else is configured.
	FallbackVoice = "default"
)

// Resolver maps speakers to voice configs using user preferences and the
// process-wide defaults.
type Resolver struct {
	defaults types.VoiceDefaults
}

// NewResolver creates a resolver over the configured defaults.
func NewResolver(defaults types.VoiceDefaults) *Resolver {
	return &Resolver{defaults: defaults}
}

// Resolve returns the voice for speaker. The lookup order is the user's
// preference for that speaker, the user's default voice, the voice pool
// slot of a known character, the configured default voice, and finally the
// built-in stub voice. It never fails.
func (r *Resolver) Resolve(speaker string, prefs *types.UserData) types.VoiceConfig {
	if prefs != nil {
		if v, ok := lookupPreference(prefs.VoicePreferences, speaker); ok {
			return copyVoice(v)
		}
		if prefs.DefaultVoice != nil && !prefs.DefaultVoice.IsZero() {
			return copyVoice(*prefs.DefaultVoice)
		}
	}
	return r.processDefault(speaker, prefs)
}

func (r *Resolver) processDefault(speaker string, prefs *types.UserData) types.VoiceConfig {
	provider := r.defaults.DefaultProvider
	if provider == "" {
		provider = FallbackProvider
	}

	if len(r.defaults.Pool) > 0 && prefs != nil && speaker != types.UnknownSpeaker {
		if entry, ok := lookupCharacter(prefs.Characters, speaker); ok {
			idx := entry.VoiceIndex % len(r.defaults.Pool)
			if idx < 0 {
				idx += len(r.defaults.Pool)
			}
			return types.VoiceConfig{VoiceID: r.defaults.Pool[idx], Provider: provider}
		}
	}

	if r.defaults.DefaultVoice != "" {
		return types.VoiceConfig{VoiceID: r.defaults.DefaultVoice, Provider: provider}
	}
	return types.VoiceConfig{VoiceID: FallbackVoice, Provider: provider}
}

// Apply sets the voice of every unit in timeline.
func (r *Resolver) Apply(timeline types.Timeline, prefs *types.UserData) {
	for i := range timeline {
		timeline[i].Voice = r.Resolve(timeline[i].Speaker, prefs)
	}
}

func lookupPreference(prefs map[string]types.VoiceConfig, speaker string) (types.VoiceConfig, bool) {
	if v, ok := prefs[speaker]; ok && !v.IsZero() {
		return v, true
	}
	for name, v := range prefs {
		if strings.EqualFold(name, speaker) && !v.IsZero() {
			return v, true
		}
	}
	return types.VoiceConfig{}, false
}

func lookupCharacter(reg types.CharacterRegistry, speaker string) (types.CharacterEntry, bool) {
	if e, ok := reg[speaker]; ok {
		return e, true
	}
	for name, e := range reg {
		if strings.EqualFold(name, speaker) {
			return e, true
		}
	}
	return types.CharacterEntry{}, false
}

func copyVoice(v types.VoiceConfig) types.VoiceConfig {
	if v.Settings != nil {
		settings := make(map[string]string, len(v.Settings))
		for k, val := range v.Settings {
			settings[k] = val
		}
		v.Settings = settings
	}
	return v
}
