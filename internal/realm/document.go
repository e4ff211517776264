package realm

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/lehigh-university-libraries/studyguide/internal/normalize"
)

// Options configures a single realm document.
type Options struct {
	Runtime Runtime
	// Title is shown to assistive technology and in error panels.
	Title string
	// MountID is echoed back to the host page in size messages.
	MountID string
}

type documentData struct {
	Title      string
	MountID    string
	Scripts    []string
	Policy     string
	Source     string
	Entry      string
	Candidates []string
	Preseeded  []string
	Hooks      []string
	Charts     []string
	Sample     []SampleRow
}

var documentTmpl = template.Must(template.New("realm").Parse(realmTemplate))

// Build renders the standalone HTML document that runs code inside an
// isolated realm. The code is embedded as a string literal and only compiled
// once the realm has loaded its runtime.
func Build(code string, opts Options) (string, error) {
	if opts.Runtime == (Runtime{}) {
		opts.Runtime = DefaultRuntime()
	}
	prepared := Prepare(code)

	data := documentData{
		Title:      opts.Title,
		MountID:    opts.MountID,
		Scripts:    opts.Runtime.Scripts(),
		Policy:     contentPolicy(opts.Runtime),
		Source:     prepared,
		Entry:      normalize.EntryName,
		Candidates: discoverable(normalize.Candidates(prepared)),
		Preseeded:  Preseeded(),
		Hooks:      hookGlobals,
		Charts:     chartGlobals,
		Sample:     SampleData,
	}
	if data.Candidates == nil {
		data.Candidates = []string{}
	}

	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render realm document: %w", err)
	}
	return buf.String(), nil
}

// discoverable drops names the realm must never treat as the entry:
// pre-seeded library globals and single-letter names, which minified
// helpers in generated output tend to use.
func discoverable(names []string) []string {
	var out []string
	for _, n := range names {
		if len(n) < 2 || isPreseeded(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// contentPolicy only allows the runtime origins to serve scripts and blocks
// every network request the generated code might attempt.
func contentPolicy(rt Runtime) string {
	scriptSrc := append([]string{"'unsafe-inline'", "'unsafe-eval'"}, rt.Origins()...)
	return strings.Join([]string{
		"default-src 'none'",
		"script-src " + strings.Join(scriptSrc, " "),
		"style-src 'unsafe-inline'",
		"img-src data: blob:",
		"font-src data:",
		"connect-src 'none'",
		"form-action 'none'",
	}, "; ")
}
