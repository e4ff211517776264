// Package realm builds isolated rendering contexts for generated UI code and
// owns the mount points those contexts are attached to.
package realm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
)

// Sandbox is the iframe sandbox token list. Without allow-same-origin the
// realm gets an opaque origin and cannot reach the host DOM or globals.
const Sandbox = "allow-scripts"

// Mount is one artifact's rendered realm, owned by the Host.
type Mount struct {
	SessionID   string
	ArtifactID  string
	Document    string
	CodeHash    string
	Regenerated bool
	CreatedAt   time.Time
}

// Badge controls the transient "regenerated" indicator.
type Badge struct {
	Visible time.Duration
	Fade    time.Duration
}

// DefaultBadge shows the indicator for three seconds, then fades it for one.
var DefaultBadge = Badge{Visible: 3 * time.Second, Fade: time.Second}

// Lifetime is how long the badge stays in the DOM.
func (b Badge) Lifetime() time.Duration { return b.Visible + b.Fade }

// HTML renders the badge; the host page removes it after Lifetime.
func (b Badge) HTML() string {
	return fmt.Sprintf(
		`<span class="viz-regenerated-badge" data-lifetime-ms="%d" style="animation: sg-badge-fade %dms linear %dms forwards">Regenerated</span>`,
		b.Lifetime().Milliseconds(), b.Fade.Milliseconds(), b.Visible.Milliseconds(),
	)
}

// Host creates and tracks realms. It does not own artifacts; it only reads
// their code to build disposable rendering contexts.
type Host struct {
	runtime Runtime
	badge   Badge

	mu     sync.Mutex
	mounts map[string]*Mount
}

// Option customises a Host.
type Option func(*Host)

// WithBadge overrides the regenerated indicator timing.
func WithBadge(b Badge) Option { return func(h *Host) { h.badge = b } }

// NewHost returns a Host that loads rt into every realm.
func NewHost(rt Runtime, opts ...Option) *Host {
	if rt == (Runtime{}) {
		rt = DefaultRuntime()
	}
	h := &Host{
		runtime: rt,
		badge:   DefaultBadge,
		mounts:  make(map[string]*Mount),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Badge returns the configured regenerated indicator.
func (h *Host) Badge() Badge { return h.badge }

func mountKey(sessionID, artifactID string) string {
	return sessionID + "\x00" + artifactID
}

func codeHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Attach returns the realm for a ready artifact. An existing mount is reused
// as long as the artifact's code is unchanged.
func (h *Host) Attach(sessionID string, a models.Artifact, mountID string) (*Mount, error) {
	hash := codeHash(a.Code)

	h.mu.Lock()
	existing, ok := h.mounts[mountKey(sessionID, a.ID)]
	h.mu.Unlock()
	if ok && existing.CodeHash == hash {
		return existing, nil
	}
	return h.build(sessionID, a, mountID, false)
}

// Replace always builds a fresh realm for one artifact, leaving every other
// mount untouched.
func (h *Host) Replace(sessionID string, a models.Artifact, mountID string) (*Mount, error) {
	return h.build(sessionID, a, mountID, true)
}

func (h *Host) build(sessionID string, a models.Artifact, mountID string, regenerated bool) (*Mount, error) {
	doc, err := Build(a.Code, Options{Runtime: h.runtime, Title: a.Description, MountID: mountID})
	if err != nil {
		return nil, err
	}
	m := &Mount{
		SessionID:   sessionID,
		ArtifactID:  a.ID,
		Document:    doc,
		CodeHash:    codeHash(a.Code),
		Regenerated: regenerated,
		CreatedAt:   time.Now(),
	}

	h.mu.Lock()
	h.mounts[mountKey(sessionID, a.ID)] = m
	h.mu.Unlock()

	slog.Debug("Realm built", "session_id", sessionID, "artifact_id", a.ID, "regenerated", regenerated, "bytes", len(doc))
	return m, nil
}

// Mount returns the current realm for an artifact, if one was built.
func (h *Host) Mount(sessionID, artifactID string) (*Mount, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.mounts[mountKey(sessionID, artifactID)]
	return m, ok
}

// Restore puts back the mount an artifact had before a Replace whose result
// could not be used. A nil mount removes the artifact's realm.
func (h *Host) Restore(sessionID, artifactID string, m *Mount) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m == nil {
		delete(h.mounts, mountKey(sessionID, artifactID))
		return
	}
	h.mounts[mountKey(sessionID, artifactID)] = m
}

// Forget drops every realm of a session.
func (h *Host) Forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prefix := sessionID + "\x00"
	for k := range h.mounts {
		if strings.HasPrefix(k, prefix) {
			delete(h.mounts, k)
		}
	}
}

// FrameHTML renders the iframe element for a mount, used when a single mount
// point is replaced outside of a full page render.
func (h *Host) FrameHTML(m *Mount, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<iframe class="viz-realm" sandbox="%s" loading="lazy" referrerpolicy="no-referrer" title="%s" srcdoc="%s"></iframe>`,
		Sandbox, html.EscapeString(title), html.EscapeString(m.Document))
	if m.Regenerated {
		b.WriteString(h.badge.HTML())
	}
	return b.String()
}
