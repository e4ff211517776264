// Package export writes session archives.
package export

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// SessionRecord is one session in a parquet archive. Document bytes are
// never archived.
type SessionRecord struct {
	ID         string           `parquet:"id"`
	Title      string           `parquet:"title"`
	Prose      string           `parquet:"prose"`
	Provider   string           `parquet:"provider"`
	Model      string           `parquet:"model"`
	SourceSize int64            `parquet:"source_size"`
	CreatedAt  string           `parquet:"created_at"`
	Artifacts  []ArtifactRecord `parquet:"artifacts,list"`
}

// ArtifactRecord is one artifact of a SessionRecord.
type ArtifactRecord struct {
	ID          string `parquet:"id"`
	Description string `parquet:"description"`
	Code        string `parquet:"code"`
	Status      string `parquet:"status"`
	Error       string `parquet:"error"`
	UpdatedAt   string `parquet:"updated_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Record converts a session for archiving.
func Record(s *models.Session) SessionRecord {
	rec := SessionRecord{
		ID:         s.ID,
		Title:      s.Title,
		Prose:      s.Prose,
		Provider:   s.Provider,
		Model:      s.Model,
		SourceSize: s.SourceSize,
		CreatedAt:  formatTime(s.CreatedAt),
		Artifacts:  make([]ArtifactRecord, 0, len(s.Artifacts)),
	}
	for _, a := range s.Artifacts {
		rec.Artifacts = append(rec.Artifacts, ArtifactRecord{
			ID:          a.ID,
			Description: a.Description,
			Code:        a.Code,
			Status:      string(a.Status),
			Error:       a.Error,
			UpdatedAt:   formatTime(a.UpdatedAt),
		})
	}
	return rec
}

// Session converts an archived record back into a session.
func (r SessionRecord) Session() *models.Session {
	s := &models.Session{
		ID:         r.ID,
		Title:      r.Title,
		Prose:      r.Prose,
		Provider:   r.Provider,
		Model:      r.Model,
		SourceSize: r.SourceSize,
		CreatedAt:  parseTime(r.CreatedAt),
	}
	for _, a := range r.Artifacts {
		s.Artifacts = append(s.Artifacts, models.Artifact{
			ID:          a.ID,
			Description: a.Description,
			Code:        a.Code,
			Status:      models.Status(a.Status),
			Error:       a.Error,
			UpdatedAt:   parseTime(a.UpdatedAt),
		})
	}
	return s
}

// WriteParquet writes sessions as a parquet archive.
func WriteParquet(w io.Writer, sessions []*models.Session) error {
	rows := make([]SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, Record(s))
	}

	writer := parquet.NewGenericWriter[SessionRecord](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet archive: %w", err)
	}
	slog.Debug("Wrote parquet archive", "sessions", len(rows))
	return nil
}

// ReadParquet loads sessions from a parquet archive.
func ReadParquet(r io.ReaderAt, size int64) ([]*models.Session, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[SessionRecord](pf)
	defer reader.Close()

	var sessions []*models.Session
	rows := make([]SessionRecord, 64)
	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			sessions = append(sessions, row.Session())
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	slog.Debug("Read parquet archive", "sessions", len(sessions))
	return sessions, nil
}

// Manifest is the human-readable YAML summary of an archive.
type Manifest struct {
	ExportedAt string            `yaml:"exportedat"`
	Sessions   []ManifestSession `yaml:"sessions"`
}

type ManifestSession struct {
	ID        string             `yaml:"id"`
	Title     string             `yaml:"title"`
	CreatedAt string             `yaml:"createdat"`
	Artifacts []ManifestArtifact `yaml:"artifacts"`
}

type ManifestArtifact struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
	Error       string `yaml:"error,omitempty"`
}

// WriteManifest writes a YAML summary of sessions without prose or code.
func WriteManifest(w io.Writer, sessions []*models.Session, now time.Time) error {
	m := Manifest{ExportedAt: formatTime(now), Sessions: make([]ManifestSession, 0, len(sessions))}
	for _, s := range sessions {
		ms := ManifestSession{ID: s.ID, Title: s.Title, CreatedAt: formatTime(s.CreatedAt)}
		for _, a := range s.Artifacts {
			ms.Artifacts = append(ms.Artifacts, ManifestArtifact{
				ID:          a.ID,
				Description: a.Description,
				Status:      string(a.Status),
				Error:       a.Error,
			})
		}
		m.Sessions = append(m.Sessions, ms)
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
