// Package regenerate re-runs generation for a single artifact and swaps its
// mount point without touching sibling artifacts.
package regenerate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/studyguide/internal/document"
	"github.com/lehigh-university-libraries/studyguide/internal/events"
	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/lehigh-university-libraries/studyguide/internal/placeholder"
	"github.com/lehigh-university-libraries/studyguide/internal/realm"
	"github.com/lehigh-university-libraries/studyguide/internal/storage"
)

// ErrNoSource means no document bytes were supplied, cached or persisted.
var ErrNoSource = errors.New("the original document is not available; upload it again to regenerate this visualization")

// Store is the session state the workflow reads and reconciles.
type Store interface {
	Get(sessionID string) (*models.Session, bool)
	Source(sessionID string, supplied []byte) ([]byte, bool)
	SourceAvailable(sessionID string) bool
	SetArtifact(ctx context.Context, sessionID string, a models.Artifact) error
	Update(ctx context.Context, sessionID string, fn func(*models.Session) error) error
	MarkManual(sessionID, artifactID string)
	SetRegenerating(sessionID, artifactID string, on bool)
}

// Generator produces normalized code for one visualization.
type Generator interface {
	Generate(ctx context.Context, description string, doc *document.Document) (string, error)
}

// Publisher delivers events to open pages.
type Publisher interface {
	Publish(e events.Event)
}

// Request identifies the artifact to regenerate.
type Request struct {
	SessionID   string
	ArtifactID  string
	Description string
	// Supplied holds bytes uploaded with the request, if any.
	Supplied []byte
}

// Result is what the page needs to swap one mount point.
type Result struct {
	Artifact models.Artifact
	Mount    *realm.Mount
	// Frame replaces the contents of an existing mount point.
	Frame string
	// Fragment replaces the artifact's whole placeholder when it had no
	// mount point yet.
	Fragment string
}

type Workflow struct {
	store     Store
	generator Generator
	host      *realm.Host
	publisher Publisher

	wg sync.WaitGroup
}

func New(store Store, generator Generator, host *realm.Host, publisher Publisher) *Workflow {
	return &Workflow{store: store, generator: generator, host: host, publisher: publisher}
}

// Regenerate generates new code for one artifact, replaces its realm and
// pushes the new mount to open pages. Session state is reconciled in the
// background. An artifact that was missing or failed shows as loading while
// it is generated; on failure it goes back to its prior state.
func (w *Workflow) Regenerate(ctx context.Context, req Request) (*Result, error) {
	sess, ok := w.store.Get(req.SessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrSessionNotFound, req.SessionID)
	}

	data, ok := w.store.Source(req.SessionID, req.Supplied)
	if !ok {
		return nil, ErrNoSource
	}

	description := req.Description
	prior, hadPrior := sess.Artifact(req.ArtifactID)
	if hadPrior && description == "" {
		description = prior.Description
	}
	mime := sess.SourceMIME
	if mime == "" {
		mime = document.MIMEType
	}
	doc := &document.Document{Name: sess.Title, MIME: mime, Data: data}

	w.store.SetRegenerating(req.SessionID, req.ArtifactID, true)
	defer w.store.SetRegenerating(req.SessionID, req.ArtifactID, false)

	filling := !hadPrior || prior.Status != models.StatusReady
	if filling {
		if err := w.markLoading(ctx, req.SessionID, req.ArtifactID, description); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	code, err := w.generator.Generate(ctx, description, doc)
	if err != nil {
		slog.Error("Regeneration failed", "session_id", req.SessionID, "artifact_id", req.ArtifactID, "err", err)
		e := events.Event{
			Type:       events.ArtifactFailed,
			SessionID:  req.SessionID,
			ArtifactID: req.ArtifactID,
			Message:    err.Error(),
		}
		if filling {
			e.Fragment = w.restore(context.WithoutCancel(ctx), req.SessionID, req.ArtifactID, description, prior)
		}
		w.publish(e)
		return nil, err
	}

	a := models.Artifact{
		ID:          req.ArtifactID,
		Description: description,
		Code:        code,
		Status:      models.StatusReady,
		UpdatedAt:   time.Now(),
	}
	opts := placeholder.Options{SourceAvailable: w.store.SourceAvailable(req.SessionID)}
	mountID := placeholder.MountID(a.ID)
	previous, _ := w.host.Mount(req.SessionID, a.ID)
	m, err := w.host.Replace(req.SessionID, a, mountID)
	if err != nil {
		if filling {
			w.restore(context.WithoutCancel(ctx), req.SessionID, req.ArtifactID, description, prior)
		}
		return nil, fmt.Errorf("failed to build realm: %w", err)
	}

	updated := sess.Clone()
	updated.SetArtifact(a)
	fragment, err := w.host.AttachAll(placeholder.Fragment(a, opts), updated, func(id string) bool {
		return id == a.ID
	})
	if err != nil {
		w.host.Restore(req.SessionID, a.ID, previous)
		if filling {
			w.restore(context.WithoutCancel(ctx), req.SessionID, req.ArtifactID, description, prior)
		}
		return nil, err
	}
	w.store.MarkManual(req.SessionID, a.ID)

	res := &Result{
		Artifact: a,
		Mount:    m,
		Frame:    w.host.FrameHTML(m, description),
		Fragment: fragment + w.host.Badge().HTML(),
	}
	w.publish(events.Event{
		Type:        events.ArtifactUpdated,
		SessionID:   req.SessionID,
		ArtifactID:  a.ID,
		Description: description,
		MountID:     mountID,
		HTML:        res.Frame,
		Fragment:    res.Fragment,
		BadgeMS:     w.host.Badge().Lifetime().Milliseconds(),
	})
	slog.Info("Artifact regenerated", "session_id", req.SessionID, "artifact_id", a.ID, "duration", time.Since(start))

	w.wg.Add(1)
	go w.reconcile(context.WithoutCancel(ctx), req.SessionID, a)
	return res, nil
}

// markLoading records the artifact as loading and shows its progress
// fragment on open pages.
func (w *Workflow) markLoading(ctx context.Context, sessionID, artifactID, description string) error {
	loading := models.Artifact{
		ID:          artifactID,
		Description: description,
		Status:      models.StatusLoading,
		UpdatedAt:   time.Now(),
	}
	if err := w.store.SetArtifact(ctx, sessionID, loading); err != nil {
		return err
	}
	w.publish(events.Event{
		Type:        events.ArtifactLoading,
		SessionID:   sessionID,
		ArtifactID:  artifactID,
		Description: description,
		Fragment:    placeholder.Fragment(loading, placeholder.Options{}),
	})
	return nil
}

// restore puts back the artifact a failed fill replaced with a loading one
// and returns the fragment for its prior state.
func (w *Workflow) restore(ctx context.Context, sessionID, artifactID, description string, prior *models.Artifact) string {
	opts := placeholder.Options{SourceAvailable: w.store.SourceAvailable(sessionID)}
	err := w.store.Update(ctx, sessionID, func(s *models.Session) error {
		if prior != nil {
			s.SetArtifact(*prior)
		} else {
			s.RemoveArtifact(artifactID)
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to restore artifact", "session_id", sessionID, "artifact_id", artifactID, "err", err)
	}
	if prior != nil {
		return placeholder.Fragment(*prior, opts)
	}
	return placeholder.Missing(artifactID, description, opts)
}

func (w *Workflow) reconcile(ctx context.Context, sessionID string, a models.Artifact) {
	defer w.wg.Done()
	if err := w.store.SetArtifact(ctx, sessionID, a); err != nil {
		slog.Error("Failed to reconcile regenerated artifact", "session_id", sessionID, "artifact_id", a.ID, "err", err)
	}
}

// Wait blocks until every background reconciliation has finished.
func (w *Workflow) Wait() { w.wg.Wait() }

func (w *Workflow) publish(e events.Event) {
	if w.publisher != nil {
		w.publisher.Publish(e)
	}
}
