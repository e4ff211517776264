package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lehigh-university-libraries/studyguide/internal/events"
	"github.com/lehigh-university-libraries/studyguide/internal/models"
)

// SessionSummary is one entry of the session list.
type SessionSummary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Artifacts       int    `json:"artifacts"`
	Failed          int    `json:"failed"`
	SourceAvailable bool   `json:"source_available"`
	Active          bool   `json:"active"`
	CreatedAt       string `json:"created_at"`
}

// SessionView is a session as served to the page. Document bytes are never
// sent back.
type SessionView struct {
	*models.Session
	SourceAvailable bool `json:"source_available"`
	Active          bool `json:"active"`
}

func (h *Handler) view(session *models.Session) SessionView {
	session.CachedSource = nil
	return SessionView{
		Session:         session,
		SourceAvailable: h.store.SourceAvailable(session.ID),
		Active:          h.store.Active() == session.ID,
	}
}

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.store.GetAll()
	active := h.store.Active()
	sessionList := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		failed := 0
		for _, a := range session.Artifacts {
			if a.Status == models.StatusError {
				failed++
			}
		}
		sessionList = append(sessionList, SessionSummary{
			ID:              session.ID,
			Title:           session.Title,
			Artifacts:       len(session.Artifacts),
			Failed:          failed,
			SourceAvailable: h.store.SourceAvailable(session.ID),
			Active:          session.ID == active,
			CreatedAt:       session.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, sessionList)
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	h.writeJSON(w, h.view(session))
}

func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.store.SetActive(sessionID); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"active": sessionID})
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.store.Delete(r.Context(), sessionID); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.host.Forget(sessionID)
	h.publish(events.Event{Type: events.SessionDeleted, SessionID: sessionID})
	h.writeJSON(w, map[string]any{"deleted": 1, "active": h.store.Active()})
}

func (h *Handler) HandleDeleteSessions(w http.ResponseWriter, r *http.Request) {
	var request struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(request.IDs) == 0 {
		h.writeError(w, "ids is required", http.StatusBadRequest)
		return
	}

	deleted := h.store.DeleteMany(r.Context(), request.IDs)
	for _, id := range request.IDs {
		h.host.Forget(id)
		h.publish(events.Event{Type: events.SessionDeleted, SessionID: id})
	}
	h.writeJSON(w, map[string]any{"deleted": deleted, "active": h.store.Active()})
}

func (h *Handler) HandleClearSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.store.GetAll()
	h.store.Clear(r.Context())
	for _, session := range sessions {
		h.host.Forget(session.ID)
		h.publish(events.Event{Type: events.SessionDeleted, SessionID: session.ID})
	}
	h.writeJSON(w, map[string]any{"deleted": len(sessions), "active": ""})
}

func (h *Handler) HandleNotice(w http.ResponseWriter, r *http.Request) {
	message, ok := h.store.Notice()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, map[string]string{"message": message})
}
