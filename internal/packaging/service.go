package packaging

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/internal/util"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

const manifestVersion = "1.0"

// Service packages stored sessions into ZIP archives
type Service struct {
	storage storage.Adapter
	now     func() time.Time
}

// NewService creates a new packaging service
func NewService(storage storage.Adapter) *Service {
	return &Service{
		storage: storage,
		now:     time.Now,
	}
}

// Manifest describes the contents of a session archive
type Manifest struct {
	SessionID string    `json:"session_id"`
	Units     int       `json:"units"`
	Clips     int       `json:"clips"`
	Missing   []int     `json:"missing_clips,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version"`
}

// CastEntry is one speaker in the archive's cast list
type CastEntry struct {
	Speaker string            `json:"speaker"`
	Voice   types.VoiceConfig `json:"voice"`
	Lines   []int             `json:"lines"`
}

// PackageSession creates a ZIP archive holding a session's timeline, its
// cast and every stored audio clip. Units without a stored clip are listed
// in the manifest instead.
func (s *Service) PackageSession(ctx context.Context, sessionID string) (io.Reader, error) {
	if s.storage == nil {
		return nil, apperr.New(apperr.KindNotFound, "packaging.session", "audio storage is not configured")
	}

	var timeline types.Timeline
	if err := storage.GetJSON(ctx, s.storage, util.GetTimelinePath(sessionID), &timeline); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "packaging.session", "no stored timeline for session").
				WithDetail("session_id", sessionID)
		}
		return nil, fmt.Errorf("failed to get timeline: %w", err)
	}

	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)

	if err := s.addJSONFile(zipWriter, "timeline.json", timeline); err != nil {
		return nil, fmt.Errorf("failed to add timeline: %w", err)
	}
	if err := s.addJSONFile(zipWriter, "cast.json", buildCast(timeline)); err != nil {
		return nil, fmt.Errorf("failed to add cast: %w", err)
	}

	manifest := &Manifest{
		SessionID: sessionID,
		Units:     len(timeline),
		CreatedAt: s.now(),
		Version:   manifestVersion,
	}
	for _, unit := range timeline {
		added, err := s.addClip(ctx, zipWriter, sessionID, unit.SequenceIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to add audio %d: %w", unit.SequenceIndex, err)
		}
		if added {
			manifest.Clips++
		} else {
			manifest.Missing = append(manifest.Missing, unit.SequenceIndex)
		}
	}

	if err := s.addJSONFile(zipWriter, "manifest.json", manifest); err != nil {
		return nil, fmt.Errorf("failed to add manifest: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), nil
}

// addClip copies the first stored format of a unit's clip into the archive
func (s *Service) addClip(ctx context.Context, zipWriter *zip.Writer, sessionID string, index int) (bool, error) {
	for _, format := range util.AudioFormats() {
		audioPath := util.GetAudioPath(sessionID, index, format)
		reader, err := s.storage.Get(ctx, audioPath)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		err = s.addFileFromReader(zipWriter, path.Join("audio", path.Base(audioPath)), reader)
		reader.Close()
		return err == nil, err
	}
	return false, nil
}

// buildCast groups timeline lines by speaker in order of first appearance
func buildCast(timeline types.Timeline) []CastEntry {
	cast := make([]CastEntry, 0)
	bySpeaker := make(map[string]int)
	for _, unit := range timeline {
		i, ok := bySpeaker[unit.Speaker]
		if !ok {
			i = len(cast)
			bySpeaker[unit.Speaker] = i
			cast = append(cast, CastEntry{Speaker: unit.Speaker, Voice: unit.Voice})
		}
		cast[i].Lines = append(cast[i].Lines, unit.SequenceIndex)
	}
	return cast
}

// addJSONFile adds a JSON file to the ZIP
func (s *Service) addJSONFile(zipWriter *zip.Writer, path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	writer, err := zipWriter.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := writer.Write(jsonData); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	return nil
}

// addFileFromReader adds a file from an io.Reader to the ZIP
func (s *Service) addFileFromReader(zipWriter *zip.Writer, path string, reader io.Reader) error {
	writer, err := zipWriter.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := io.Copy(writer, reader); err != nil {
		return fmt.Errorf("failed to copy data: %w", err)
	}

	return nil
}
