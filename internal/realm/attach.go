package realm

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MountClass marks the elements realms are attached to.
const MountClass = "viz-mount"

// AttachAll inserts a realm frame into every mount point of an expanded prose
// fragment. Artifacts reported by manual were replaced in place and keep the
// Host's current realm rather than one rebuilt from session state.
func (h *Host) AttachAll(fragment string, s *models.Session, manual func(artifactID string) bool) (string, error) {
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		return "", fmt.Errorf("failed to parse expanded prose: %w", err)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, MountClass) {
			h.fill(n, s, manual)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		walk(n)
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("failed to render expanded prose: %w", err)
		}
	}
	return buf.String(), nil
}

func (h *Host) fill(n *html.Node, s *models.Session, manual func(string) bool) {
	artifactID := attr(n, "data-artifact-id")
	mountID := attr(n, "id")
	a, ok := s.Artifact(artifactID)
	if !ok || a.Status != models.StatusReady {
		return
	}

	var (
		m   *Mount
		err error
	)
	if manual != nil && manual(artifactID) {
		if current, found := h.Mount(s.ID, artifactID); found {
			m = current
			setAttr(n, "data-manual", "true")
		}
	}
	if m == nil {
		m, err = h.Attach(s.ID, *a, mountID)
	}
	if err != nil {
		slog.Error("Failed to build realm", "session_id", s.ID, "artifact_id", artifactID, "err", err)
		n.AppendChild(errorPanel("This visualization could not be prepared: " + err.Error()))
		return
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{
		Type:     html.ElementNode,
		Data:     "iframe",
		DataAtom: atom.Iframe,
		Attr: []html.Attribute{
			{Key: "class", Val: "viz-realm"},
			{Key: "sandbox", Val: Sandbox},
			{Key: "loading", Val: "lazy"},
			{Key: "referrerpolicy", Val: "no-referrer"},
			{Key: "title", Val: a.Description},
			{Key: "srcdoc", Val: m.Document},
		},
	})
}

func errorPanel(msg string) *html.Node {
	div := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: "viz-error"},
			{Key: "role", Val: "alert"},
		},
	}
	div.AppendChild(&html.Node{Type: html.TextNode, Data: msg})
	return div
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
