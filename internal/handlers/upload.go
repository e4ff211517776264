package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/studyguide/internal/document"
	"github.com/lehigh-university-libraries/studyguide/internal/events"
)

// multipart overhead allowed on top of the document limit
const formOverhead = 1 << 20

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	doc, err := h.readDocument(w, r)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if doc == nil {
		h.writeError(w, "Failed to read file: no file in request", http.StatusBadRequest)
		return
	}

	start := time.Now()
	slog.Info("Analyzing document", "name", doc.Name, "bytes", doc.Size(), "pages", doc.Pages)
	res, err := h.analyzer.Analyze(r.Context(), doc)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	session, err := h.analyzer.NewSession(doc, res)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.store.Add(r.Context(), session)
	h.publish(events.Event{Type: events.SessionUpdated, SessionID: session.ID})
	slog.Info("Session created", "session_id", session.ID, "artifacts", len(session.Artifacts), "duration", time.Since(start))

	response := map[string]any{
		"session_id": session.ID,
		"title":      session.Title,
		"artifacts":  len(session.Artifacts),
		"message":    "Successfully analyzed " + doc.Name,
	}
	h.writeJSON(w, response)
}

// readDocument reads and validates the "file" part of a multipart request.
// It returns nil, nil when the request carries no file.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) (*document.Document, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, document.ErrTooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", document.ErrInvalid, err)
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func(f multipart.File) {
		_ = f.Close()
	}(file)

	return document.Read(file, header.Filename, header.Header.Get("Content-Type"), h.maxUpload)
}
