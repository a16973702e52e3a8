package util

import (
	"fmt"
	"path"
)

// GetAudioPath returns the storage path for one synthesized unit
func GetAudioPath(sessionID string, index int, format string) string {
	return path.Join("sessions", sessionID, "audio", fmt.Sprintf("%03d.%s", index, format))
}

// GetPreferencesPath returns the storage path for a user's preference document
func GetPreferencesPath(userID string) string {
	return path.Join("users", userID, "preferences.json")
}

// GetTimelinePath returns the storage path for a session's timeline snapshot
func GetTimelinePath(sessionID string) string {
	return path.Join("sessions", sessionID, "timeline.json")
}

// AudioFormats returns the audio formats a stored clip may have, in lookup order
func AudioFormats() []string {
	return []string{"wav", "mp3", "opus", "aac", "flac", "pcm"}
}

// AudioContentType maps an audio format to its MIME type
func AudioContentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// GetPanelPath returns the storage path for a stored pipeline result
func GetPanelPath(passID string) string {
	return path.Join("panels", passID, "result.json")
}

// GetPanelImagePath returns the storage path for the panel image a pass ran on
func GetPanelImagePath(passID string) string {
	return path.Join("panels", passID, "image")
}
