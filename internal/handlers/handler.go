package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lehigh-university-libraries/studyguide/internal/analysis"
	"github.com/lehigh-university-libraries/studyguide/internal/document"
	"github.com/lehigh-university-libraries/studyguide/internal/events"
	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/lehigh-university-libraries/studyguide/internal/providers"
	"github.com/lehigh-university-libraries/studyguide/internal/realm"
	"github.com/lehigh-university-libraries/studyguide/internal/regenerate"
	"github.com/lehigh-university-libraries/studyguide/internal/related"
	"github.com/lehigh-university-libraries/studyguide/internal/storage"
)

// Analyzer turns an uploaded document into a new session.
type Analyzer interface {
	Analyze(ctx context.Context, doc *document.Document) (analysis.Result, error)
	NewSession(doc *document.Document, res analysis.Result) (*models.Session, error)
}

// Deps are the collaborators a Handler serves.
type Deps struct {
	Store    *storage.SessionStore
	Analyzer Analyzer
	Host     *realm.Host
	Workflow *regenerate.Workflow
	Hub      *events.Hub
	Related  related.Finder
	// MaxUploadBytes bounds uploaded documents.
	MaxUploadBytes int64
}

type Handler struct {
	store     *storage.SessionStore
	analyzer  Analyzer
	host      *realm.Host
	workflow  *regenerate.Workflow
	hub       *events.Hub
	related   related.Finder
	maxUpload int64
}

func New(deps Deps) *Handler {
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = document.DefaultMaxBytes
	}
	finder := deps.Related
	if finder == nil {
		finder = related.Mock{}
	}
	return &Handler{
		store:     deps.Store,
		analyzer:  deps.Analyzer,
		host:      deps.Host,
		workflow:  deps.Workflow,
		hub:       deps.Hub,
		related:   finder,
		maxUpload: maxUpload,
	}
}

// Routes returns the application router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	r.Get("/", h.HandleIndex)
	r.Handle("/static/*", h.staticFiles())

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.HandleUpload)
		r.Get("/notice", h.HandleNotice)
		r.Handle("/events", h.hub)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.HandleSessions)
			r.Delete("/", h.HandleClearSessions)
			r.Post("/delete", h.HandleDeleteSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.HandleSessionDetail)
				r.Delete("/", h.HandleDeleteSession)
				r.Post("/activate", h.HandleActivate)
				r.Get("/render", h.HandleRender)
				r.Get("/download", h.HandleDownload)
				r.Get("/related", h.HandleRelated)
				r.Post("/artifacts/{artifactID}/regenerate", h.HandleRegenerate)
			})
		})
	})
	return r
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message, "status", code)
	http.Error(w, message, code)
}

// writeFailure maps package sentinels to status codes.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, document.ErrTooLarge):
		code = http.StatusRequestEntityTooLarge
	case errors.Is(err, document.ErrUnsupportedType):
		code = http.StatusUnsupportedMediaType
	case errors.Is(err, document.ErrInvalid):
		code = http.StatusBadRequest
	case errors.Is(err, regenerate.ErrNoSource):
		code = http.StatusConflict
	case errors.Is(err, providers.ErrUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	case errors.Is(err, analysis.ErrEmptyResponse):
		code = http.StatusBadGateway
	}
	h.writeError(w, err.Error(), code)
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*models.Session, bool) {
	session, exists := h.store.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (h *Handler) publish(e events.Event) {
	if h.hub != nil {
		h.hub.Publish(e)
	}
}
