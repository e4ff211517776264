package handlers

import (
	"fmt"
	"html/template"
	"io"

	"github.com/lehigh-university-libraries/studyguide/internal/storage"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>{{.Style}}
.viz-action, .viz-notice { display: none; }
</style>
</head>
<body>
<main class="sg-guide sg-standalone">
{{.Body}}
</main>
<script>
window.addEventListener("message", function (e) {
  var data = e.data;
  if (!data || data.type !== "studyguide:realm-size") return;
  document.querySelectorAll("iframe.viz-realm").forEach(function (frame) {
    if (frame.contentWindow === e.source) frame.style.height = Math.max(240, Math.ceil(data.height)) + "px";
  });
});
</script>
</body>
</html>
`

var page = template.Must(template.New("page").Parse(pageTemplate))

// WritePage writes the session as a self-contained HTML page. Regeneration
// controls are hidden since the page has no server behind it.
func (h *Handler) WritePage(w io.Writer, sessionID string) error {
	session, ok := h.store.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrSessionNotFound, sessionID)
	}
	body, err := h.renderSession(sessionID)
	if err != nil {
		return err
	}
	style, err := staticFS.ReadFile("static/style.css")
	if err != nil {
		return fmt.Errorf("failed to read stylesheet: %w", err)
	}

	data := struct {
		Title string
		Style template.CSS
		Body  template.HTML
	}{
		Title: session.Title,
		Style: template.CSS(style),
		// renderSession output is sanitized prose plus generated frames
		Body: template.HTML(body),
	}
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}
