// Package storage holds the session list and writes it through to a Backend
// on every mutation.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
)

const (
	// Key is the single entry the ordered session list is persisted under.
	Key = "studyguide-sessions"

	// DefaultMaxCachedSourceBytes bounds which uploads keep their bytes on
	// the persisted session.
	DefaultMaxCachedSourceBytes = 4 << 20

	// NoticeSourceDropped is recorded once when cached document bytes had to
	// be stripped to make the session list fit.
	NoticeSourceDropped = "Storage is full, so saved documents were removed from your study guides. Regenerating a visualization will require uploading the document again."
)

// ErrSessionNotFound is returned for operations on an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// sessionState is per-session UI state that is never persisted.
type sessionState struct {
	manual       map[string]bool
	regenerating map[string]int
}

// SessionStore is the single owner of the session list.
type SessionStore struct {
	backend   Backend
	key       string
	maxCached int64
	onNotice  func(string)

	mu       sync.RWMutex
	sessions []*models.Session
	activeID string
	state    map[string]*sessionState
	sources  map[string][]byte
	notice   string
	degraded bool
}

// Option customises a SessionStore.
type Option func(*SessionStore)

// WithMaxCachedSourceBytes sets the upload size under which document bytes
// are persisted with the session.
func WithMaxCachedSourceBytes(n int64) Option {
	return func(s *SessionStore) { s.maxCached = n }
}

// WithKey overrides the persisted entry name.
func WithKey(key string) Option {
	return func(s *SessionStore) { s.key = key }
}

// WithNoticeHandler is called with the one-time degradation notice. It runs
// while the store is locked and must not call back into it.
func WithNoticeHandler(fn func(string)) Option {
	return func(s *SessionStore) { s.onNotice = fn }
}

// New returns an empty store over backend. Call Load to restore saved state.
func New(backend Backend, opts ...Option) *SessionStore {
	if backend == nil {
		backend = NewMemoryBackend(0)
	}
	s := &SessionStore{
		backend:   backend,
		key:       Key,
		maxCached: DefaultMaxCachedSourceBytes,
		state:     make(map[string]*sessionState),
		sources:   make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores the persisted session list, defaults missing artifact
// statuses to ready and activates the most recently added session.
func (s *SessionStore) Load(ctx context.Context) error {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	var sessions []*models.Session
	if len(data) > 0 {
		if err := json.Unmarshal(data, &sessions); err != nil {
			return fmt.Errorf("failed to decode sessions: %w", err)
		}
	}
	for _, sess := range sessions {
		for i := range sess.Artifacts {
			if sess.Artifacts[i].Status == "" {
				sess.Artifacts[i].Status = models.StatusReady
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = sessions
	s.state = make(map[string]*sessionState)
	s.activeID = ""
	if n := len(sessions); n > 0 {
		s.activeID = sessions[n-1].ID
	}
	slog.Info("Sessions restored", "count", len(sessions), "active", s.activeID)
	return nil
}

// Get returns a copy of the session with the given id.
func (s *SessionStore) Get(sessionID string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(sessionID); i >= 0 {
		return s.sessions[i].Clone(), true
	}
	return nil, false
}

// GetAll returns copies of every session in insertion order.
func (s *SessionStore) GetAll() []*models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// Add appends a session and makes it active. Uploaded bytes stay in the
// in-memory source cache regardless of size.
func (s *SessionStore) Add(ctx context.Context, sess *models.Session) {
	stored := sess.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(stored.CachedSource) > 0 {
		s.sources[stored.ID] = append([]byte(nil), stored.CachedSource...)
	}
	if i := s.index(stored.ID); i >= 0 {
		s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
	}
	s.sessions = append(s.sessions, stored)
	s.switchActive(stored.ID)
	s.persist(ctx)
}

// Update applies fn to the stored session and persists the result. Nothing
// is written when fn returns an error.
func (s *SessionStore) Update(ctx context.Context, sessionID string, fn func(*models.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(sessionID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	working := s.sessions[i].Clone()
	if err := fn(working); err != nil {
		return err
	}
	s.sessions[i] = working
	s.persist(ctx)
	return nil
}

// SetArtifact replaces or appends one artifact of a session.
func (s *SessionStore) SetArtifact(ctx context.Context, sessionID string, a models.Artifact) error {
	return s.Update(ctx, sessionID, func(sess *models.Session) error {
		sess.SetArtifact(a)
		return nil
	})
}

// Delete removes a session and everything it owns.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if s.DeleteMany(ctx, []string{sessionID}) == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// DeleteMany removes every listed session and reports how many existed.
func (s *SessionStore) DeleteMany(ctx context.Context, sessionIDs []string) int {
	drop := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.sessions[:0]
	removed := 0
	for _, sess := range s.sessions {
		if drop[sess.ID] {
			removed++
			delete(s.state, sess.ID)
			delete(s.sources, sess.ID)
			continue
		}
		kept = append(kept, sess)
	}
	s.sessions = kept
	if removed == 0 {
		return 0
	}
	if drop[s.activeID] {
		s.activeID = ""
		if n := len(s.sessions); n > 0 {
			s.activeID = s.sessions[n-1].ID
		}
	}
	s.persist(ctx)
	return removed
}

// Clear removes every session.
func (s *SessionStore) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
	s.activeID = ""
	s.state = make(map[string]*sessionState)
	s.sources = make(map[string][]byte)
	s.persist(ctx)
}

// Active returns the id of the active session, or "" when there is none.
func (s *SessionStore) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// SetActive switches the active session. Switching discards the previous
// session's manual-update markers and regeneration flags.
func (s *SessionStore) SetActive(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(sessionID) < 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.switchActive(sessionID)
	return nil
}

func (s *SessionStore) switchActive(sessionID string) {
	if s.activeID != sessionID {
		delete(s.state, s.activeID)
		delete(s.state, sessionID)
	}
	s.activeID = sessionID
}

func (s *SessionStore) stateFor(sessionID string) *sessionState {
	st, ok := s.state[sessionID]
	if !ok {
		st = &sessionState{manual: make(map[string]bool), regenerating: make(map[string]int)}
		s.state[sessionID] = st
	}
	return st
}

// MarkManual records that an artifact's mount point was replaced in place.
func (s *SessionStore) MarkManual(sessionID, artifactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateFor(sessionID).manual[artifactID] = true
}

// IsManual reports whether an artifact's mount point was replaced in place.
func (s *SessionStore) IsManual(sessionID, artifactID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state[sessionID]
	return ok && st.manual[artifactID]
}

// SetRegenerating counts a regeneration of an artifact in or out. The
// artifact stays regenerating until every started regeneration has ended.
func (s *SessionStore) SetRegenerating(sessionID, artifactID string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.stateFor(sessionID).regenerating[artifactID]++
		return
	}
	st, ok := s.state[sessionID]
	if !ok {
		return
	}
	if st.regenerating[artifactID] <= 1 {
		delete(st.regenerating, artifactID)
		return
	}
	st.regenerating[artifactID]--
}

// IsRegenerating reports whether a regeneration is in flight for an artifact.
func (s *SessionStore) IsRegenerating(sessionID, artifactID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state[sessionID]
	return ok && st.regenerating[artifactID] > 0
}

// CacheSource keeps the bytes of the latest upload for a session in memory.
func (s *SessionStore) CacheSource(sessionID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[sessionID] = append([]byte(nil), data...)
}

// Source resolves document bytes for regeneration: supplied bytes first,
// then the in-memory upload cache, then bytes persisted on the session.
func (s *SessionStore) Source(sessionID string, supplied []byte) ([]byte, bool) {
	if len(supplied) > 0 {
		return supplied, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.sources[sessionID]; ok && len(data) > 0 {
		return data, true
	}
	if i := s.index(sessionID); i >= 0 && len(s.sessions[i].CachedSource) > 0 {
		return s.sessions[i].CachedSource, true
	}
	return nil, false
}

// SourceAvailable reports whether Source would find bytes without an upload.
func (s *SessionStore) SourceAvailable(sessionID string) bool {
	_, ok := s.Source(sessionID, nil)
	return ok
}

// Notice returns the degradation notice if one is pending. Reading it
// clears it, so the user sees it once.
func (s *SessionStore) Notice() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.notice
	s.notice = ""
	return msg, msg != ""
}

func (s *SessionStore) index(sessionID string) int {
	for i, sess := range s.sessions {
		if sess.ID == sessionID {
			return i
		}
	}
	return -1
}

func (s *SessionStore) overThreshold(sess *models.Session) bool {
	size := sess.SourceSize
	if int64(len(sess.CachedSource)) > size {
		size = int64(len(sess.CachedSource))
	}
	return size >= s.maxCached
}

// persist writes the session list. Callers hold the write lock. Failures
// are logged; the in-memory list stays authoritative.
func (s *SessionStore) persist(ctx context.Context) {
	if len(s.sessions) == 0 {
		if err := s.backend.Delete(ctx, s.key); err != nil {
			slog.Error("Failed to clear persisted sessions", "err", err)
		}
		return
	}

	for _, sess := range s.sessions {
		if len(sess.CachedSource) > 0 && s.overThreshold(sess) {
			slog.Debug("Dropping cached source over threshold", "session_id", sess.ID, "bytes", len(sess.CachedSource))
			sess.CachedSource = nil
		}
	}

	data, err := json.Marshal(s.sessions)
	if err != nil {
		slog.Error("Failed to encode sessions", "err", err)
		return
	}
	slog.Debug("Persisting sessions", "count", len(s.sessions), "bytes", len(data))

	err = s.backend.Put(ctx, s.key, data)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		slog.Error("Failed to persist sessions", "err", err)
		return
	}

	slog.Warn("Session list over quota, retrying without cached sources", "bytes", len(data), "err", err)
	for _, sess := range s.sessions {
		sess.CachedSource = nil
	}
	data, err = json.Marshal(s.sessions)
	if err == nil {
		err = s.backend.Put(ctx, s.key, data)
	}
	if err != nil {
		slog.Error("Failed to persist sessions after dropping cached sources", "bytes", len(data), "err", err)
		return
	}
	if !s.degraded {
		s.degraded = true
		s.notice = NoticeSourceDropped
		if s.onNotice != nil {
			s.onNotice(s.notice)
		}
	}
}
