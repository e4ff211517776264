package placeholder

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Options carries the state fragments depend on besides the artifacts.
type Options struct {
	// SourceAvailable reports whether document bytes exist for regeneration.
	SourceAvailable bool
	// Regenerating reports artifacts with a regeneration in flight.
	Regenerating func(artifactID string) bool
}

func (o Options) regenerating(id string) bool {
	return o.Regenerating != nil && o.Regenerating(id)
}

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	// prose comes from a remote model and is sanitized before fragments go in
	sanitizer = bluemonday.UGCPolicy()
)

func token(i int) string { return fmt.Sprintf("SGVIZTOKEN%dX", i) }

// Expand renders prose to HTML, replacing every marker with a fragment for
// its artifact's state and stripping unresolved marker syntax. Artifacts no
// marker refers to are listed after the prose.
func Expand(prose string, artifacts []models.Artifact, opts Options) (string, error) {
	byID := make(map[string]models.Artifact, len(artifacts))
	for _, a := range artifacts {
		if _, dup := byID[a.ID]; !dup {
			byID[a.ID] = a
		}
	}

	markers := Parse(prose)
	var src strings.Builder
	last := 0
	for i, m := range markers {
		src.WriteString(prose[last:m.Start])
		src.WriteString(token(i))
		last = m.End
	}
	src.WriteString(prose[last:])

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(StripLeftovers(src.String())), &buf); err != nil {
		return "", fmt.Errorf("failed to render prose: %w", err)
	}

	seen := make(map[string]bool, len(markers))
	p := &placer{
		literal: func(i int) string { return prose[markers[i].Start:markers[i].End] },
		fragment: func(i int) string {
			m := markers[i]
			if seen[m.ID] {
				return ""
			}
			seen[m.ID] = true
			return renderMarker(m, byID, opts)
		},
	}
	out, err := p.place(sanitizer.Sanitize(buf.String()))
	if err != nil {
		return "", err
	}

	var orphans []models.Artifact
	for _, a := range artifacts {
		if !seen[a.ID] {
			seen[a.ID] = true
			orphans = append(orphans, a)
		}
	}
	if len(orphans) > 0 {
		var b strings.Builder
		b.WriteString(`<section class="viz-orphans"><h2>Additional visualizations</h2>`)
		b.WriteString(`<p class="viz-notice">These visualizations have no placeholder in the study guide.</p>`)
		for _, a := range orphans {
			b.WriteString(renderArtifact(a, a.Description, opts))
		}
		b.WriteString(`</section>`)
		out += b.String()
	}
	return out, nil
}

// Fragment renders one artifact's fragment outside of any prose.
func Fragment(a models.Artifact, opts Options) string {
	return renderArtifact(a, a.Description, opts)
}

// Missing renders the fragment of a marker that has no artifact.
func Missing(id, description string, opts Options) string {
	return missingFragment(id, description, opts)
}

func renderMarker(m models.Marker, byID map[string]models.Artifact, opts Options) string {
	a, ok := byID[m.ID]
	if !ok {
		return missingFragment(m.ID, m.Description, opts)
	}
	return renderArtifact(a, m.Description, opts)
}

func renderArtifact(a models.Artifact, markerDescription string, opts Options) string {
	description := a.Description
	if description == "" {
		description = markerDescription
	}
	switch a.Status {
	case models.StatusLoading:
		return loadingFragment(a.ID, description)
	case models.StatusError:
		return errorFragment(a.ID, description, a.Error, opts)
	default:
		return readyFragment(a, description, opts)
	}
}

func actionButton(id, description, label string, opts Options) string {
	disabled := ""
	if !opts.SourceAvailable || opts.regenerating(id) {
		disabled = " disabled"
	}
	if opts.regenerating(id) {
		label = "Regenerating…"
	}
	return fmt.Sprintf(
		`<button type="button" class="viz-action" data-sg-action="regenerate" data-artifact-id="%s" data-description="%s"%s>%s</button>`,
		html.EscapeString(id), html.EscapeString(description), disabled, label,
	)
}

func sourceNotice(opts Options) string {
	if opts.SourceAvailable {
		return ""
	}
	return `<p class="viz-notice">The original document is no longer available. Upload it again to enable regeneration.</p>`
}

func missingFragment(id, description string, opts Options) string {
	return fmt.Sprintf(
		`<div class="viz-placeholder viz-missing" data-artifact-id="%s"><p class="viz-status">The visualization “%s” was not generated.</p>%s%s</div>`,
		html.EscapeString(id), html.EscapeString(description),
		actionButton(id, description, "Generate", opts), sourceNotice(opts),
	)
}

func loadingFragment(id, description string) string {
	return fmt.Sprintf(
		`<div class="viz-placeholder viz-loading" data-artifact-id="%s" aria-busy="true"><span class="viz-spinner"></span><p class="viz-status">Generating “%s”…</p></div>`,
		html.EscapeString(id), html.EscapeString(description),
	)
}

func errorFragment(id, description, detail string, opts Options) string {
	if detail == "" {
		detail = "Unknown error"
	}
	return fmt.Sprintf(
		`<div class="viz-placeholder viz-failed" data-artifact-id="%s"><p class="viz-status">The visualization “%s” failed to generate.</p><pre class="viz-error-detail">%s</pre>%s%s</div>`,
		html.EscapeString(id), html.EscapeString(description), html.EscapeString(detail),
		actionButton(id, description, "Try Again", opts), sourceNotice(opts),
	)
}

func readyFragment(a models.Artifact, description string, opts Options) string {
	return fmt.Sprintf(
		`<figure class="viz-figure" data-artifact-id="%s"><div class="viz-mount" id="%s" data-artifact-id="%s"></div>`+
			`<figcaption><span class="viz-caption">%s</span>%s</figcaption>`+
			`<details class="viz-source"><summary>View generated code</summary><pre><code class="language-jsx">%s</code></pre></details></figure>`,
		html.EscapeString(a.ID), MountID(a.ID), html.EscapeString(a.ID),
		html.EscapeString(description), actionButton(a.ID, description, "Regenerate", opts),
		html.EscapeString(a.Code),
	)
}
