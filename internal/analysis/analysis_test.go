package analysis

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/studyguide/internal/document"
	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/lehigh-university-libraries/studyguide/internal/placeholder"
	"github.com/lehigh-university-libraries/studyguide/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	response string
	err      error
	last     providers.Config
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ExtractText(_ context.Context, config providers.Config) (string, error) {
	f.last = config
	return f.response, f.err
}

const salesResponse = "# Quarterly Sales\n\nRevenue grew each month.\n\n{{VISUALIZATION:abc:Sales Chart}}\n\nThat is all.\n\n" +
	"{{VISUALIZATION_CODE_START:abc:Sales Chart}}\n```jsx\nconst SalesChart = () => <div>sales</div>;\n```\n{{VISUALIZATION_CODE_END:abc}}\n"

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		prose    string
		blocks   []Block
	}{
		{
			name:     "prose and one block",
			response: salesResponse,
			prose:    "# Quarterly Sales\n\nRevenue grew each month.\n\n{{VISUALIZATION:abc:Sales Chart}}\n\nThat is all.",
			blocks:   []Block{{ID: "abc", Description: "Sales Chart", Code: "const SalesChart = () => <div>sales</div>;"}},
		},
		{
			name: "duplicate ids keep the first block",
			response: "Intro\n{{VISUALIZATION_CODE_START:a:One}}first{{VISUALIZATION_CODE_END:a}}\n" +
				"{{VISUALIZATION_CODE_START:a:Two}}second{{VISUALIZATION_CODE_END:a}}",
			prose:  "Intro",
			blocks: []Block{{ID: "a", Description: "One", Code: "first"}},
		},
		{
			name:     "unterminated block takes the rest",
			response: "Intro\n{{VISUALIZATION_CODE_START:a:One}}\nfunction App() {}\n",
			prose:    "Intro",
			blocks:   []Block{{ID: "a", Description: "One", Code: "function App() {}"}},
		},
		{
			name:     "prose only",
			response: "Just text {{VISUALIZATION:x:Missing}}",
			prose:    "Just text {{VISUALIZATION:x:Missing}}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseResponse(tt.response)
			assert.Equal(t, tt.prose, res.Prose)
			assert.Equal(t, tt.blocks, res.Blocks)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "x()", StripCodeFence("```js\nx()\n```"))
	assert.Equal(t, "x()", StripCodeFence("```\nx()```"))
	assert.Equal(t, "x()", StripCodeFence("  x()  "))
}

func TestAnalyzeBuildsSessionWithReadyArtifact(t *testing.T) {
	p := &fakeProvider{response: salesResponse}
	svc := NewService(p, "")
	doc := &document.Document{Name: "sales.pdf", MIME: document.MIMEType, Data: bytes.Repeat([]byte("x"), 2<<20)}

	res, err := svc.Analyze(context.Background(), doc)
	require.NoError(t, err)
	assert.Same(t, doc, p.last.Document)
	assert.Contains(t, p.last.Prompt, "{{VISUALIZATION_CODE_START:<id>:<description>}}")

	sess, err := svc.NewSession(doc, res)
	require.NoError(t, err)
	require.Len(t, sess.Artifacts, 1)
	a := sess.Artifacts[0]
	assert.Equal(t, "abc", a.ID)
	assert.Equal(t, models.StatusReady, a.Status)
	assert.Equal(t, "const App = () => <div>sales</div>;", a.Code)
	assert.Equal(t, "sales.pdf", sess.Title)
	assert.Equal(t, int64(2<<20), sess.SourceSize)
	assert.Len(t, sess.ID, 36)

	out, err := placeholder.Expand(sess.Prose, sess.Artifacts, placeholder.Options{SourceAvailable: true})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, `class="viz-mount" id="viz-mount-abc" data-artifact-id="abc"`))
}

func TestNewSessionMarksEmptyBlocksFailed(t *testing.T) {
	svc := NewService(&fakeProvider{}, "m")
	sess, err := svc.NewSession(&document.Document{Name: "a.pdf"}, Result{
		Prose:  "{{VISUALIZATION:a:From marker}}",
		Blocks: []Block{{ID: "a"}},
	})
	require.NoError(t, err)
	require.Len(t, sess.Artifacts, 1)
	assert.Equal(t, models.StatusError, sess.Artifacts[0].Status)
	assert.Equal(t, "From marker", sess.Artifacts[0].Description)
}

func TestAnalyzeErrors(t *testing.T) {
	doc := &document.Document{Name: "a.pdf"}

	_, err := NewService(&fakeProvider{err: errors.New("network down")}, "m").Analyze(context.Background(), doc)
	assert.ErrorContains(t, err, "network down")

	_, err = NewService(&fakeProvider{response: "   "}, "m").Analyze(context.Background(), doc)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerate(t *testing.T) {
	p := &fakeProvider{response: "```jsx\nfunction Quiz() { return <p>q</p>; }\n```"}
	code, err := NewService(p, "m").Generate(context.Background(), "A quiz on cells", &document.Document{Name: "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "function App() { return <p>q</p>; }", code)
	assert.Contains(t, p.last.Prompt, "A quiz on cells")

	p.response = "{{VISUALIZATION_CODE_START:q:Quiz}}\nclass Quiz extends React.Component { render() { return null; } }\n{{VISUALIZATION_CODE_END:q}}"
	code, err = NewService(p, "m").Generate(context.Background(), "quiz", nil)
	require.NoError(t, err)
	assert.Equal(t, "class App extends React.Component { render() { return null; } }", code)

	p.response = "```\n```"
	_, err = NewService(p, "m").Generate(context.Background(), "quiz", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"gemini", "openai", "ollama"} {
		p, err := NewProvider(ProviderConfig{Name: name})
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
		assert.NotEmpty(t, DefaultModel(name))
	}
	_, err := NewProvider(ProviderConfig{Name: "nope"})
	assert.Error(t, err)
}
