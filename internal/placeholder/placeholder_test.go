package placeholder

import (
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	prose := "Intro {{VISUALIZATION:abc: Sales by month }}\n\n{{VISUALIZATION:def:Quiz}} and {{VISUALIZATION broken}}"
	markers := Parse(prose)
	require.Len(t, markers, 2)
	assert.Equal(t, "abc", markers[0].ID)
	assert.Equal(t, "Sales by month", markers[0].Description)
	assert.Equal(t, "{{VISUALIZATION:abc: Sales by month }}", prose[markers[0].Start:markers[0].End])
	assert.Equal(t, "def", markers[1].ID)
}

func TestFormatRoundTrip(t *testing.T) {
	markers := Parse(Format("viz-1", "Photosynthesis cycle"))
	require.Len(t, markers, 1)
	assert.Equal(t, "viz-1", markers[0].ID)
	assert.Equal(t, "Photosynthesis cycle", markers[0].Description)
}

func TestMountIDIsDistinctPerArtifact(t *testing.T) {
	ids := []string{"abc", "a_b", "a.b", "a_2eb", "A B", "viz-1"}
	seen := map[string]string{}
	for _, id := range ids {
		m := MountID(id)
		assert.True(t, strings.HasPrefix(m, "viz-mount-"))
		assert.NotContains(t, m, " ")
		if other, dup := seen[m]; dup {
			t.Fatalf("MountID(%q) collides with MountID(%q)", id, other)
		}
		seen[m] = id
	}
	assert.Equal(t, "viz-mount-viz-1", MountID("viz-1"))
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name      string
		prose     string
		artifacts []models.Artifact
		opts      Options
		contains  []string
		excludes  []string
	}{
		{
			name:      "ready artifact gets a mount point",
			prose:     "# Cells\n\nText {{VISUALIZATION:abc:Cell diagram}}",
			artifacts: []models.Artifact{{ID: "abc", Description: "Cell diagram", Code: "function App() {}", Status: models.StatusReady}},
			opts:      Options{SourceAvailable: true},
			contains: []string{
				"<h1>Cells</h1>",
				`<div class="viz-mount" id="viz-mount-abc" data-artifact-id="abc"></div>`,
				`data-sg-action="regenerate"`,
				">Regenerate</button>",
				"function App() {}",
			},
			excludes: []string{"{{", "disabled"},
		},
		{
			name:     "missing artifact offers generation",
			prose:    "{{VISUALIZATION:zzz:Timeline}}",
			opts:     Options{SourceAvailable: true},
			contains: []string{"viz-missing", ">Generate</button>", `data-description="Timeline"`},
			excludes: []string{"viz-mount"},
		},
		{
			name:      "loading artifact shows progress",
			prose:     "{{VISUALIZATION:abc:Cell diagram}}",
			artifacts: []models.Artifact{{ID: "abc", Status: models.StatusLoading}},
			contains:  []string{"viz-loading", `aria-busy="true"`, "Generating “Cell diagram”"},
			excludes:  []string{"<button"},
		},
		{
			name:      "failed artifact shows detail and retry",
			prose:     "{{VISUALIZATION:abc:Cell diagram}}",
			artifacts: []models.Artifact{{ID: "abc", Status: models.StatusError, Error: "quota <exceeded>"}},
			opts:      Options{SourceAvailable: true},
			contains:  []string{"viz-failed", "quota &lt;exceeded&gt;", ">Try Again</button>"},
		},
		{
			name:      "no source disables actions",
			prose:     "{{VISUALIZATION:abc:Cell diagram}}",
			artifacts: []models.Artifact{{ID: "abc", Code: "x", Status: models.StatusReady}},
			contains:  []string{" disabled>", "Upload it again"},
		},
		{
			name:      "regenerating artifact is disabled",
			prose:     "{{VISUALIZATION:abc:Cell diagram}}",
			artifacts: []models.Artifact{{ID: "abc", Code: "x", Status: models.StatusReady}},
			opts:      Options{SourceAvailable: true, Regenerating: func(id string) bool { return id == "abc" }},
			contains:  []string{" disabled>Regenerating…</button>"},
		},
		{
			name:      "unresolved marker syntax is stripped",
			prose:     "Before {{VISUALIZATION}} after {{ VISUALIZATION : : }}",
			contains:  []string{"Before", "after"},
			excludes:  []string{"VISUALIZATION", "{{"},
			artifacts: nil,
		},
		{
			name:     "prose markup is sanitized",
			prose:    "Hello <script>alert(1)</script> <b onclick=\"x()\">bold</b>",
			contains: []string{"<b>bold</b>"},
			excludes: []string{"<script>", "onclick"},
		},
		{
			name:  "description is escaped in attributes",
			prose: `{{VISUALIZATION:abc:A "quoted" <label>}}`,
			opts:  Options{SourceAvailable: true},
			contains: []string{
				`data-description="A &#34;quoted&#34; &lt;label&gt;"`,
			},
			excludes: []string{"<label>"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Expand(tt.prose, tt.artifacts, tt.opts)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, out, unwanted)
			}
			assert.NotContains(t, out, "SGVIZTOKEN")
		})
	}
}

func TestExpandPlacement(t *testing.T) {
	artifacts := []models.Artifact{{ID: "abc", Description: "Chart", Code: "x", Status: models.StatusReady}}
	figure := `<figure class="viz-figure" data-artifact-id="abc">`
	tests := []struct {
		name     string
		prose    string
		contains []string
		excludes []string
		check    func(t *testing.T, out string)
	}{
		{
			name:     "fenced code keeps the marker as text",
			prose:    "```\n{{VISUALIZATION:abc:Chart}}\n```",
			contains: []string{"<pre><code>{{VISUALIZATION:abc:Chart}}"},
			check: func(t *testing.T, out string) {
				assert.Less(t, strings.Index(out, "</pre>"), strings.Index(out, figure), "only the orphan listing mounts it")
			},
		},
		{
			name:     "inline code keeps the marker as text",
			prose:    "Write `{{VISUALIZATION:abc:Chart}}` to embed one.",
			contains: []string{"<code>{{VISUALIZATION:abc:Chart}}</code> to embed one."},
		},
		{
			name:     "table cell holds the figure",
			prose:    "| Topic | Figure |\n| --- | --- |\n| Sales | {{VISUALIZATION:abc:Chart}} |\n",
			contains: []string{"<td>Sales</td>", "<td>" + figure},
			excludes: []string{"<p>|</p>", "viz-orphans"},
			check: func(t *testing.T, out string) {
				assert.Equal(t, 1, strings.Count(out, "<table>"))
				assert.Less(t, strings.Index(out, figure), strings.Index(out, "</table>"))
			},
		},
		{
			name:     "list item holds the figure",
			prose:    "- first\n- second {{VISUALIZATION:abc:Chart}}\n- third\n",
			contains: []string{"<li>second " + figure},
			excludes: []string{"viz-orphans"},
			check: func(t *testing.T, out string) {
				assert.Equal(t, 1, strings.Count(out, "<ul>"))
				assert.Less(t, strings.Index(out, figure), strings.Index(out, "<li>third</li>"))
			},
		},
		{
			name:     "paragraph closes around the figure",
			prose:    "Revenue grew.\n{{VISUALIZATION:abc:Chart}}\nMore text.",
			contains: []string{"Revenue grew.\n</p>" + figure, "</figure><p>\nMore text.</p>"},
			excludes: []string{"<p>" + figure},
		},
		{
			name:     "marker inside emphasis follows the paragraph",
			prose:    "Some **bold {{VISUALIZATION:abc:Chart}}** text",
			contains: []string{"<p>Some <strong>bold </strong> text</p>" + figure},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Expand(tt.prose, artifacts, Options{SourceAvailable: true})
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, out, unwanted)
			}
			assert.NotContains(t, out, "SGVIZTOKEN")
			assert.NotContains(t, out, "sgviz-slot")
			if tt.check != nil {
				tt.check(t, out)
			}
		})
	}
}

func TestExpandDuplicateMarkersRenderOnce(t *testing.T) {
	prose := "{{VISUALIZATION:abc:One}}\n\nagain {{VISUALIZATION:abc:One}}"
	artifacts := []models.Artifact{{ID: "abc", Code: "x", Status: models.StatusReady}}
	out, err := Expand(prose, artifacts, Options{SourceAvailable: true})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, `id="viz-mount-abc"`))
}

func TestExpandListsOrphans(t *testing.T) {
	prose := "{{VISUALIZATION:abc:One}}"
	artifacts := []models.Artifact{
		{ID: "abc", Code: "x", Status: models.StatusReady},
		{ID: "def", Description: "Two", Code: "y", Status: models.StatusReady},
	}
	out, err := Expand(prose, artifacts, Options{SourceAvailable: true})
	require.NoError(t, err)

	orphans := strings.Index(out, `class="viz-orphans"`)
	require.NotEqual(t, -1, orphans)
	assert.Less(t, strings.Index(out, `id="viz-mount-abc"`), orphans)
	assert.Greater(t, strings.Index(out, `id="viz-mount-def"`), orphans)
}

func TestExpandEveryMountIDIsUnique(t *testing.T) {
	prose := "{{VISUALIZATION:a:1}} {{VISUALIZATION:b:2}} {{VISUALIZATION:c:3}}"
	var artifacts []models.Artifact
	for _, id := range []string{"a", "b", "c"} {
		artifacts = append(artifacts, models.Artifact{ID: id, Code: "x", Status: models.StatusReady})
	}
	out, err := Expand(prose, artifacts, Options{})
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, strings.Count(out, `id="`+MountID(id)+`"`))
	}
}
