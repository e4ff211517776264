// Package placeholder binds inline visualization markers in generated prose
// to their out-of-band artifacts.
package placeholder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
)

// EventName is the single application-level event every regeneration action
// dispatches. Its detail is {id, description}.
const EventName = "studyguide:regenerate"

var (
	markerRe   = regexp.MustCompile(`\{\{VISUALIZATION:([^:{}\n]+):([^{}\n]*)\}\}`)
	leftoverRe = regexp.MustCompile(`\{\{\s*VISUALIZATION[^{}]*\}\}`)
)

// Parse returns every marker in prose, in order of appearance.
func Parse(prose string) []models.Marker {
	var out []models.Marker
	for _, loc := range markerRe.FindAllStringSubmatchIndex(prose, -1) {
		out = append(out, models.Marker{
			ID:          strings.TrimSpace(prose[loc[2]:loc[3]]),
			Description: strings.TrimSpace(prose[loc[4]:loc[5]]),
			Raw:         prose[loc[0]:loc[1]],
			Start:       loc[0],
			End:         loc[1],
		})
	}
	return out
}

// Format renders a marker for id and description.
func Format(id, description string) string {
	return fmt.Sprintf("{{VISUALIZATION:%s:%s}}", id, description)
}

// StripLeftovers removes marker syntax that did not resolve to a marker.
func StripLeftovers(s string) string {
	return leftoverRe.ReplaceAllString(s, "")
}

// MountID derives the DOM id of an artifact's mount point. Letters, digits
// and hyphens pass through; underscore doubles; any other byte becomes _xx.
func MountID(artifactID string) string {
	var b strings.Builder
	b.WriteString("viz-mount-")
	for i := 0; i < len(artifactID); i++ {
		c := artifactID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		case c == '_':
			b.WriteString("__")
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}
