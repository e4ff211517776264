package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lehigh-university-libraries/studyguide/internal/placeholder"
	"github.com/lehigh-university-libraries/studyguide/internal/regenerate"
	"github.com/lehigh-university-libraries/studyguide/internal/storage"
)

// HandleRender returns the session's study guide as an HTML fragment with
// every ready artifact attached to its realm.
func (h *Handler) HandleRender(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	fragment, err := h.renderSession(sessionID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(fragment)); err != nil {
		slog.Error("Unable to write rendered session", "session_id", sessionID, "err", err)
	}
}

// HandleDownload serves the session as a standalone HTML page.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var buf bytes.Buffer
	if err := h.WritePage(&buf, sessionID); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="studyguide-%s.html"`, sessionID))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Unable to write page", "session_id", sessionID, "err", err)
	}
}

func (h *Handler) renderSession(sessionID string) (string, error) {
	session, ok := h.store.Get(sessionID)
	if !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrSessionNotFound, sessionID)
	}

	fragment, err := placeholder.Expand(session.Prose, session.Artifacts, placeholder.Options{
		SourceAvailable: h.store.SourceAvailable(sessionID),
		Regenerating: func(artifactID string) bool {
			return h.store.IsRegenerating(sessionID, artifactID)
		},
	})
	if err != nil {
		return "", err
	}
	return h.host.AttachAll(fragment, session, func(artifactID string) bool {
		return h.store.IsManual(sessionID, artifactID)
	})
}

// HandleRegenerate regenerates one artifact. The body is either JSON with an
// optional description, or a multipart form whose "file" part re-supplies
// the document.
func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	req := regenerate.Request{
		SessionID:  chi.URLParam(r, "sessionID"),
		ArtifactID: chi.URLParam(r, "artifactID"),
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		doc, err := h.readDocument(w, r)
		if err != nil {
			h.writeFailure(w, err)
			return
		}
		req.Description = r.FormValue("description")
		if doc != nil {
			req.Supplied = doc.Data
			h.store.CacheSource(req.SessionID, doc.Data)
		}
	} else if r.ContentLength != 0 {
		var body struct {
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.Description = body.Description
	}

	res, err := h.workflow.Regenerate(r.Context(), req)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, map[string]any{
		"artifact_id": res.Artifact.ID,
		"mount_id":    placeholder.MountID(res.Artifact.ID),
		"html":        res.Frame,
		"fragment":    res.Fragment,
		"badge_ms":    h.host.Badge().Lifetime().Milliseconds(),
	})
}

func (h *Handler) HandleRelated(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	links, err := h.related.Find(r.Context(), session.Prose)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, links)
}
