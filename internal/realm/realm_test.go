package realm

import (
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected string
	}{
		{
			name:     "drops imports",
			code:     "import React, { useState } from 'react';\nimport 'recharts/styles.css';\nfunction App() { return null; }",
			expected: "function App() { return null; }\n",
		},
		{
			name:     "drops multi-line imports",
			code:     "import {\n  LineChart,\n  Line,\n} from \"recharts\";\nconst App = () => null;",
			expected: "const App = () => null;\n",
		},
		{
			name:     "unwraps export default declaration",
			code:     "export default function Chart() { return null; }",
			expected: "function Chart() { return null; }\n",
		},
		{
			name:     "drops trailing default export of an identifier",
			code:     "const Chart = () => null;\nexport default Chart;",
			expected: "const Chart = () => null;\n",
		},
		{
			name:     "anonymous default export becomes the entry",
			code:     "export default () => <div />;",
			expected: "const App = () => <div />;\n",
		},
		{
			name:     "strips code fences",
			code:     "```jsx\nfunction App() { return null; }\n```",
			expected: "function App() { return null; }\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Prepare(tt.code))
		})
	}
}

func TestBuildEmbedsSourceSafely(t *testing.T) {
	code := "function App() { return <p>{\"</script><script>alert(1)</script>\"}</p>; }"
	doc, err := Build(code, Options{Title: "Sales", MountID: "viz-mount-abc"})
	require.NoError(t, err)

	rt := DefaultRuntime()
	for _, src := range rt.Scripts() {
		assert.Contains(t, doc, src)
	}
	assert.Equal(t, len(rt.Scripts())+1, strings.Count(doc, "</script>"), "generated code must not close the bootstrap script")
	assert.Contains(t, doc, "connect-src &#39;none&#39;")
	assert.Contains(t, doc, `window.addEventListener("load", run)`)
}

func TestBuildCandidatesSkipPreseededAndSingleLetterNames(t *testing.T) {
	code := "const X = 1;\nfunction LineChart() { return null; }\nfunction Chart() { return null; }"
	doc, err := Build(code, Options{})
	require.NoError(t, err)
	assert.Contains(t, doc, `var CANDIDATES = ["Chart"]`)
}

func TestContentPolicyAllowsOnlyRuntimeOrigins(t *testing.T) {
	policy := contentPolicy(Runtime{React: "https://cdn.example.com/react.js", Babel: "https://other.example.org/babel.js"})
	assert.Contains(t, policy, "script-src 'unsafe-inline' 'unsafe-eval' https://cdn.example.com https://other.example.org")
	assert.Contains(t, policy, "default-src 'none'")
}

func TestHostAttachReusesUnchangedMounts(t *testing.T) {
	h := NewHost(DefaultRuntime())
	abc := models.Artifact{ID: "abc", Code: "function App() { return null; }", Status: models.StatusReady}
	def := models.Artifact{ID: "def", Code: "function App() { return <b />; }", Status: models.StatusReady}

	first, err := h.Attach("s1", abc, "viz-mount-abc")
	require.NoError(t, err)
	again, err := h.Attach("s1", abc, "viz-mount-abc")
	require.NoError(t, err)
	assert.Same(t, first, again)

	defMount, err := h.Attach("s1", def, "viz-mount-def")
	require.NoError(t, err)

	abc.Code = "function App() { return <i />; }"
	replaced, err := h.Replace("s1", abc, "viz-mount-abc")
	require.NoError(t, err)
	assert.NotSame(t, first, replaced)
	assert.True(t, replaced.Regenerated)

	current, ok := h.Mount("s1", "def")
	require.True(t, ok)
	assert.Same(t, defMount, current, "sibling mount must be untouched")
}

func TestHostRestoreUndoesReplace(t *testing.T) {
	abc := models.Artifact{ID: "abc", Code: "function App() { return null; }", Status: models.StatusReady}
	tests := []struct {
		name     string
		attached bool
	}{
		{name: "prior mount comes back", attached: true},
		{name: "no prior mount leaves none", attached: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHost(DefaultRuntime())
			var prior *Mount
			if tt.attached {
				var err error
				prior, err = h.Attach("s1", abc, "viz-mount-abc")
				require.NoError(t, err)
			}
			previous, _ := h.Mount("s1", "abc")

			next := abc
			next.Code = "function App() { return <i />; }"
			_, err := h.Replace("s1", next, "viz-mount-abc")
			require.NoError(t, err)

			h.Restore("s1", "abc", previous)
			current, ok := h.Mount("s1", "abc")
			assert.Equal(t, tt.attached, ok)
			if tt.attached {
				assert.Same(t, prior, current)
			}
		})
	}
}

func TestHostForget(t *testing.T) {
	h := NewHost(Runtime{})
	_, err := h.Attach("s1", models.Artifact{ID: "abc", Code: "function App() {}"}, "m")
	require.NoError(t, err)
	_, err = h.Attach("s2", models.Artifact{ID: "abc", Code: "function App() {}"}, "m")
	require.NoError(t, err)

	h.Forget("s1")
	_, ok := h.Mount("s1", "abc")
	assert.False(t, ok)
	_, ok = h.Mount("s2", "abc")
	assert.True(t, ok)
}

func TestAttachAll(t *testing.T) {
	h := NewHost(DefaultRuntime())
	s := &models.Session{
		ID: "s1",
		Artifacts: []models.Artifact{
			{ID: "abc", Description: "Sales", Code: "function App() { return null; }", Status: models.StatusReady},
			{ID: "def", Description: "Quiz", Code: "function App() { return <b />; }", Status: models.StatusReady},
			{ID: "ghi", Description: "Pending", Status: models.StatusLoading},
		},
	}
	regenerated, err := h.Replace("s1", models.Artifact{ID: "def", Code: "function App() { return <u />; }"}, "viz-mount-def")
	require.NoError(t, err)

	fragment := `<p>Intro</p><div class="viz-mount" id="viz-mount-abc" data-artifact-id="abc"></div>` +
		`<div class="viz-mount" id="viz-mount-def" data-artifact-id="def"></div>` +
		`<div class="viz-mount" id="viz-mount-ghi" data-artifact-id="ghi"></div>`

	out, err := h.AttachAll(fragment, s, func(id string) bool { return id == "def" })
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, `sandbox="allow-scripts"`))
	assert.Contains(t, out, `data-manual="true"`)
	assert.Contains(t, out, "<p>Intro</p>")

	current, ok := h.Mount("s1", "def")
	require.True(t, ok)
	assert.Same(t, regenerated, current, "manual mounts are not rebuilt from session state")
	assert.Contains(t, out, "return \\u003cu /\\u003e")
}

func TestFrameHTMLBadge(t *testing.T) {
	h := NewHost(DefaultRuntime(), WithBadge(Badge{Visible: 2 * time.Second, Fade: 500 * time.Millisecond}))
	m, err := h.Replace("s1", models.Artifact{ID: "abc", Code: "function App() {}"}, "viz-mount-abc")
	require.NoError(t, err)

	frame := h.FrameHTML(m, "Sales")
	assert.Contains(t, frame, `sandbox="allow-scripts"`)
	assert.Contains(t, frame, `data-lifetime-ms="2500"`)
	assert.Contains(t, frame, "sg-badge-fade 500ms linear 2000ms")
}
