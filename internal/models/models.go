package models

import "time"

// Status is the lifecycle state of a visualization artifact.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Session represents one uploaded document and its analysis result
type Session struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Prose     string     `json:"prose"`
	Artifacts []Artifact `json:"artifacts"`
	// CachedSource holds the original document bytes, only for uploads under the cache threshold.
	CachedSource []byte    `json:"cached_source,omitempty"`
	SourceMIME   string    `json:"source_mime,omitempty"`
	SourceSize   int64     `json:"source_size,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Artifact represents one generated visualization bound to a placeholder id
type Artifact struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Code        string    `json:"code,omitempty"`
	Status      Status    `json:"status,omitempty"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Marker is a parsed {{VISUALIZATION:<id>:<description>}} token
type Marker struct {
	ID          string
	Description string
	Raw         string
	Start       int
	End         int
}

// RelatedLink is an external resource suggested for a session's prose
type RelatedLink struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Artifact returns the artifact with the given id.
func (s *Session) Artifact(id string) (*Artifact, bool) {
	for i := range s.Artifacts {
		if s.Artifacts[i].ID == id {
			return &s.Artifacts[i], true
		}
	}
	return nil, false
}

// SetArtifact replaces the artifact with the same id, or appends it.
func (s *Session) SetArtifact(a Artifact) {
	if existing, ok := s.Artifact(a.ID); ok {
		*existing = a
		return
	}
	s.Artifacts = append(s.Artifacts, a)
}

// RemoveArtifact drops the artifact with the given id.
func (s *Session) RemoveArtifact(id string) bool {
	for i := range s.Artifacts {
		if s.Artifacts[i].ID == id {
			s.Artifacts = append(s.Artifacts[:i], s.Artifacts[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (s *Session) Clone() *Session {
	c := *s
	c.Artifacts = append([]Artifact(nil), s.Artifacts...)
	if s.CachedSource != nil {
		c.CachedSource = append([]byte(nil), s.CachedSource...)
	}
	return &c
}
