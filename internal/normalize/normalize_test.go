package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{
			name:     "function declaration already named App",
			src:      "function App() {\n  return <div>hi</div>;\n}\n",
			expected: "function App() {\n  return <div>hi</div>;\n}\n",
		},
		{
			name:     "arrow assignment already named App",
			src:      "const App = () => <span />;\nfunction Other() { return null; }\n",
			expected: "const App = () => <span />;\nfunction Other() { return null; }\n",
		},
		{
			name:     "class already named App",
			src:      "class App extends React.Component {\n  render() { return <p />; }\n}\n",
			expected: "class App extends React.Component {\n  render() { return <p />; }\n}\n",
		},
		{
			name:     "renames capitalized function declaration",
			src:      "function SalesChart({ data }) {\n  return <div>{data.length}</div>;\n}\n",
			expected: "function App({ data }) {\n  return <div>{data.length}</div>;\n}\n",
		},
		{
			name:     "renames arrow component",
			src:      "const Quiz = () => {\n  const [score, setScore] = useState(0);\n  return <p>{score}</p>;\n};\n",
			expected: "const App = () => {\n  const [score, setScore] = useState(0);\n  return <p>{score}</p>;\n};\n",
		},
		{
			name:     "renames component class",
			src:      "class Board extends React.Component {\n  render() { return <div />; }\n}\n",
			expected: "class App extends React.Component {\n  render() { return <div />; }\n}\n",
		},
		{
			name:     "function category wins over arrow category",
			src:      "const Legend = () => <ul />;\nfunction Chart() {\n  return <Legend />;\n}\n",
			expected: "const Legend = () => <ul />;\nfunction App() {\n  return <Legend />;\n}\n",
		},
		{
			name:     "only the first function is renamed",
			src:      "function Outer() {\n  return <Inner />;\n}\nfunction Inner() {\n  return <b />;\n}\n",
			expected: "function App() {\n  return <Inner />;\n}\nfunction Inner() {\n  return <b />;\n}\n",
		},
		{
			name:     "references are renamed with the declaration",
			src:      "function Timeline() {\n  return <div />;\n}\nTimeline.displayName = 'x';\n",
			expected: "function App() {\n  return <div />;\n}\nApp.displayName = 'x';\n",
		},
		{
			name:     "strings and comments are left alone",
			src:      "// Widget renders the quiz\nconst Widget = () => <div />;\nconst label = \"Widget\";\n",
			expected: "// Widget renders the quiz\nconst App = () => <div />;\nconst label = \"Widget\";\n",
		},
		{
			name:     "lowercase functions are not components",
			src:      "function helper() {\n  return 1;\n}\n",
			expected: "function helper() {\n  return 1;\n}\n",
		},
		{
			name:     "class not extending a component is ignored",
			src:      "class Store {\n  get() { return 1; }\n}\n",
			expected: "class Store {\n  get() { return 1; }\n}\n",
		},
		{
			name:     "shorthand properties keep their key",
			src:      "function Chart() { const obj = { Chart }; return obj.Chart; }",
			expected: "function App() { const obj = { Chart: App }; return obj.Chart; }",
		},
		{
			name:     "nested App binding blocks the rename",
			src:      "function Outer() {\n  function App() { return <p />; }\n  return <App />;\n}\n",
			expected: "function Outer() {\n  function App() { return <p />; }\n  return <App />;\n}\n",
		},
		{
			name:     "App parameter blocks the rename",
			src:      "const Wrap = (App) => <App />;\n",
			expected: "const Wrap = (App) => <App />;\n",
		},
		{
			name:     "empty input",
			src:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.src))
		})
	}
}

func TestNormalizeFallsBackOnUnparseableSource(t *testing.T) {
	src := "function Chart() {\n  return <div>{ ;\n"
	out := Normalize(src)
	assert.Contains(t, out, "function App()")
	assert.NotContains(t, out, "Chart")
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"function SalesChart() { return <div />; }",
		"const Quiz = () => <p />;",
		"class Board extends Component { render() { return null; } }",
		"function Chart() {\n  return <div>{ ;\n",
		"const x = 1;",
		"export default function Report() { return <Report.Part />; }",
		"function Chart() { const obj = { Chart }; return obj.Chart; }",
		"function Outer() { function App() {} return <App />; }",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input: %q", in)
	}
}

func TestCandidates(t *testing.T) {
	src := "const data = [];\nconst Legend = () => <ul />;\nfunction Chart() { return <Legend />; }\nclass Panel extends React.Component {}\n"
	assert.Equal(t, []string{"Legend", "Chart", "Panel"}, Candidates(src))
}

func TestCandidatesHeuristic(t *testing.T) {
	src := "function Chart() {\n  return <div>{ ;\nconst Legend = 1;\n"
	assert.Equal(t, []string{"Chart", "Legend"}, Candidates(src))
}
