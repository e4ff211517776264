package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(id string, artifacts ...models.Artifact) *models.Session {
	return &models.Session{
		ID:        id,
		Title:     id + ".pdf",
		Prose:     fmt.Sprintf("# %s\n\n{{VISUALIZATION:abc:Sales Chart}}", id),
		Artifacts: artifacts,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)
	s := New(backend)
	for i := 0; i < 3; i++ {
		s.Add(ctx, session(fmt.Sprintf("s%d", i),
			models.Artifact{ID: "abc", Description: "Sales Chart", Code: "function App() {}", Status: models.StatusReady},
			models.Artifact{ID: "def", Description: "Quiz", Status: models.StatusError, Error: "boom"},
		))
	}

	restored := New(backend)
	require.NoError(t, restored.Load(ctx))
	all := restored.GetAll()
	require.Len(t, all, 3)
	for i, sess := range all {
		assert.Equal(t, fmt.Sprintf("s%d", i), sess.ID)
		assert.Equal(t, s.GetAll()[i].Prose, sess.Prose)
		assert.Equal(t, s.GetAll()[i].Artifacts, sess.Artifacts)
	}
	assert.Equal(t, "s2", restored.Active())
}

func TestLoadBackfillsMissingStatus(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)
	legacy := `[{"id":"s1","title":"a.pdf","prose":"x","artifacts":[{"id":"abc","description":"d","code":"c"}]}]`
	require.NoError(t, backend.Put(ctx, Key, []byte(legacy)))

	s := New(backend)
	require.NoError(t, s.Load(ctx))
	sess, ok := s.Get("s1")
	require.True(t, ok)
	assert.Equal(t, models.StatusReady, sess.Artifacts[0].Status)
	assert.Equal(t, "s1", s.Active())
}

func TestEmptyListClearsPersistedState(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)
	s := New(backend)
	s.Add(ctx, session("s1"))
	s.Add(ctx, session("s2"))

	data, err := backend.Get(ctx, Key)
	require.NoError(t, err)
	require.NotNil(t, data)

	assert.Equal(t, 2, s.DeleteMany(ctx, []string{"s1", "s2", "nope"}))
	data, err = backend.Get(ctx, Key)
	require.NoError(t, err)
	assert.Nil(t, data, "an empty list removes the key rather than storing []")
	assert.Equal(t, "", s.Active())
}

func TestCachedSourceOverThresholdIsNeverPersisted(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)
	s := New(backend, WithMaxCachedSourceBytes(1024))

	small := session("small")
	small.CachedSource = bytes.Repeat([]byte("a"), 100)
	small.SourceSize = 100
	big := session("big")
	big.CachedSource = bytes.Repeat([]byte("b"), 2048)
	big.SourceSize = 2048
	s.Add(ctx, small)
	s.Add(ctx, big)

	restored := New(backend)
	require.NoError(t, restored.Load(ctx))
	got, ok := restored.Get("big")
	require.True(t, ok)
	assert.Empty(t, got.CachedSource)
	got, ok = restored.Get("small")
	require.True(t, ok)
	assert.Len(t, got.CachedSource, 100)

	data, ok := s.Source("big", nil)
	assert.True(t, ok, "the in-memory upload cache still serves the big document")
	assert.Len(t, data, 2048)
}

func TestQuotaFailureStripsSourcesAndRecordsNoticeOnce(t *testing.T) {
	ctx := context.Background()
	var notices []string
	backend := NewMemoryBackend(2048)
	s := New(backend, WithNoticeHandler(func(msg string) { notices = append(notices, msg) }))

	for _, id := range []string{"s1", "s2"} {
		sess := session(id)
		sess.CachedSource = bytes.Repeat([]byte("x"), 900)
		sess.SourceSize = 900
		s.Add(ctx, sess)
	}

	data, err := backend.Get(ctx, Key)
	require.NoError(t, err)
	require.NotNil(t, data, "the retry without cached sources succeeds")
	var persisted []models.Session
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Len(t, persisted, 2)
	for _, sess := range persisted {
		assert.Empty(t, sess.CachedSource)
	}

	msg, ok := s.Notice()
	assert.True(t, ok)
	assert.Equal(t, NoticeSourceDropped, msg)
	_, ok = s.Notice()
	assert.False(t, ok, "reading the notice clears it")

	third := session("s3")
	third.CachedSource = bytes.Repeat([]byte("y"), 1500)
	third.SourceSize = 1500
	s.Add(ctx, third)
	assert.Len(t, notices, 1, "the notice is recorded once")
}

func TestQuotaRetryFailureIsDropped(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(10)
	s := New(backend)
	s.Add(ctx, session("s1"))

	data, err := backend.Get(ctx, Key)
	require.NoError(t, err)
	assert.Nil(t, data)
	_, ok := s.Get("s1")
	assert.True(t, ok, "memory state stays authoritative")
}

type failingBackend struct {
	*MemoryBackend
	err error
}

func (f failingBackend) Put(context.Context, string, []byte) error { return f.err }

func TestNonQuotaFailureDoesNotStripSources(t *testing.T) {
	ctx := context.Background()
	s := New(failingBackend{MemoryBackend: NewMemoryBackend(0), err: errors.New("disk on fire")})
	sess := session("s1")
	sess.CachedSource = []byte("%PDF-1.4")
	s.Add(ctx, sess)

	got, ok := s.Get("s1")
	require.True(t, ok)
	assert.Equal(t, []byte("%PDF-1.4"), got.CachedSource)
	_, noticed := s.Notice()
	assert.False(t, noticed)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.Add(ctx, session("s1", models.Artifact{ID: "abc", Status: models.StatusLoading}))

	require.NoError(t, s.SetArtifact(ctx, "s1", models.Artifact{ID: "abc", Code: "x", Status: models.StatusReady}))
	got, _ := s.Get("s1")
	assert.Equal(t, models.StatusReady, got.Artifacts[0].Status)

	err := s.Update(ctx, "s1", func(sess *models.Session) error {
		sess.Title = "changed"
		return errors.New("rejected")
	})
	assert.EqualError(t, err, "rejected")
	got, _ = s.Get("s1")
	assert.Equal(t, "s1.pdf", got.Title, "a failed update leaves state untouched")

	assert.ErrorIs(t, s.SetArtifact(ctx, "missing", models.Artifact{ID: "abc"}), ErrSessionNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrSessionNotFound)
}

func TestGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.Add(ctx, session("s1", models.Artifact{ID: "abc", Code: "x"}))

	got, _ := s.Get("s1")
	got.Artifacts[0].Code = "mutated"
	again, _ := s.Get("s1")
	assert.Equal(t, "x", again.Artifacts[0].Code)
}

func TestPerSessionStateClearedOnSwitch(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.Add(ctx, session("s1"))
	s.Add(ctx, session("s2"))
	require.NoError(t, s.SetActive("s1"))

	s.MarkManual("s1", "abc")
	s.SetRegenerating("s1", "def", true)
	assert.True(t, s.IsManual("s1", "abc"))
	assert.True(t, s.IsRegenerating("s1", "def"))
	assert.False(t, s.IsManual("s2", "abc"))

	require.NoError(t, s.SetActive("s1"))
	assert.True(t, s.IsManual("s1", "abc"), "re-selecting the active session keeps state")

	require.NoError(t, s.SetActive("s2"))
	assert.False(t, s.IsManual("s1", "abc"))
	assert.False(t, s.IsRegenerating("s1", "def"))
	assert.ErrorIs(t, s.SetActive("missing"), ErrSessionNotFound)
}

func TestRegeneratingCountsOverlappingRuns(t *testing.T) {
	tests := []struct {
		name  string
		steps []bool
		want  bool
	}{
		{name: "single run", steps: []bool{true, false}, want: false},
		{name: "first of two ends", steps: []bool{true, true, false}, want: true},
		{name: "both runs end", steps: []bool{true, true, false, false}, want: false},
		{name: "extra end is ignored", steps: []bool{true, false, false, true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil)
			for _, on := range tt.steps {
				s.SetRegenerating("s1", "abc", on)
			}
			assert.Equal(t, tt.want, s.IsRegenerating("s1", "abc"))
		})
	}
}

func TestSourcePriority(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	persisted := session("s1")
	persisted.CachedSource = []byte("persisted")
	persisted.SourceSize = 9
	s.Add(ctx, persisted)

	data, ok := s.Source("s1", []byte("supplied"))
	require.True(t, ok)
	assert.Equal(t, "supplied", string(data))

	s.CacheSource("s1", []byte("memory"))
	data, _ = s.Source("s1", nil)
	assert.Equal(t, "memory", string(data))

	restored := New(s.backend)
	require.NoError(t, restored.Load(ctx))
	data, ok = restored.Source("s1", nil)
	require.True(t, ok)
	assert.Equal(t, "persisted", string(data))

	s.Add(ctx, session("s2"))
	assert.False(t, s.SourceAvailable("s2"))
}

func TestBackends(t *testing.T) {
	ctx := context.Background()
	file, err := NewFileBackend(filepath.Join(t.TempDir(), "state"), 64)
	require.NoError(t, err)
	sqlite, err := OpenSQLite(":memory:", 64)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	backends := map[string]Backend{
		"memory": NewMemoryBackend(64),
		"file":   file,
		"sqlite": sqlite,
	}
	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			got, err := b.Get(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, b.Put(ctx, "k", []byte("one")))
			require.NoError(t, b.Put(ctx, "k", []byte("two")))
			got, err = b.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "two", string(got))

			assert.ErrorIs(t, b.Put(ctx, "k", bytes.Repeat([]byte("z"), 65)), ErrQuotaExceeded)

			require.NoError(t, b.Delete(ctx, "k"))
			require.NoError(t, b.Delete(ctx, "k"))
			got, err = b.Get(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}
