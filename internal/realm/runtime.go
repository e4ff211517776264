package realm

import (
	"net/url"
	"sort"
)

// Runtime is the allow-list of libraries loaded into every realm before the
// generated code runs. Nothing else from the host application is reachable.
type Runtime struct {
	React     string `yaml:"react"`
	ReactDOM  string `yaml:"reactdom"`
	Babel     string `yaml:"babel"`
	PropTypes string `yaml:"proptypes"`
	Recharts  string `yaml:"recharts"`
}

// DefaultRuntime pins the UMD builds the realms load.
func DefaultRuntime() Runtime {
	return Runtime{
		React:     "https://unpkg.com/react@18.3.1/umd/react.production.min.js",
		ReactDOM:  "https://unpkg.com/react-dom@18.3.1/umd/react-dom.production.min.js",
		Babel:     "https://unpkg.com/@babel/standalone@7.26.4/babel.min.js",
		PropTypes: "https://unpkg.com/prop-types@15.8.1/prop-types.min.js",
		Recharts:  "https://unpkg.com/recharts@2.12.7/umd/Recharts.js",
	}
}

// Scripts returns the runtime URLs in load order. PropTypes must precede
// Recharts, which reads it from the global scope.
func (r Runtime) Scripts() []string {
	var out []string
	for _, s := range []string{r.React, r.ReactDOM, r.PropTypes, r.Recharts, r.Babel} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Origins returns the distinct scheme://host pairs of the runtime scripts,
// used for the realm's script-src policy.
func (r Runtime) Origins() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range r.Scripts() {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			continue
		}
		origin := u.Scheme + "://" + u.Host
		if !seen[origin] {
			seen[origin] = true
			out = append(out, origin)
		}
	}
	sort.Strings(out)
	return out
}

// libraryGlobals are the names the runtime scripts define on the realm global.
var libraryGlobals = []string{"React", "ReactDOM", "Babel", "PropTypes", "Recharts"}

// hookGlobals are React members re-exported as bare globals, since generated
// code routinely calls useState without importing it.
var hookGlobals = []string{
	"useState", "useEffect", "useMemo", "useCallback", "useRef",
	"useReducer", "useContext", "useLayoutEffect", "Fragment",
}

// chartGlobals are Recharts components re-exported under their usual names.
var chartGlobals = []string{
	"ResponsiveContainer", "LineChart", "Line", "BarChart", "Bar", "PieChart", "Pie",
	"Cell", "AreaChart", "Area", "ScatterChart", "Scatter", "RadarChart", "Radar",
	"PolarGrid", "PolarAngleAxis", "PolarRadiusAxis", "RadialBarChart", "RadialBar",
	"ComposedChart", "Treemap", "FunnelChart", "Funnel", "XAxis", "YAxis", "ZAxis",
	"CartesianGrid", "Tooltip", "Legend", "LabelList", "ReferenceLine", "Brush", "Label",
}

// wrapperGlobals are the chart-wrapper adapters defined by the realm bootstrap.
var wrapperGlobals = []string{"SimpleLineChart", "SimpleBarChart", "SimplePieChart"}

// Preseeded lists every global the realm defines before generated code runs.
// Entry discovery never picks one of these.
func Preseeded() []string {
	out := make([]string, 0, len(libraryGlobals)+len(hookGlobals)+len(chartGlobals)+len(wrapperGlobals))
	out = append(out, libraryGlobals...)
	out = append(out, hookGlobals...)
	out = append(out, chartGlobals...)
	out = append(out, wrapperGlobals...)
	return out
}

func isPreseeded(name string) bool {
	for _, p := range Preseeded() {
		if p == name {
			return true
		}
	}
	return false
}

// SampleRow is one point of the fallback dataset handed to generated components.
type SampleRow struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	UV    float64 `json:"uv"`
	PV    float64 `json:"pv"`
}

// SampleData is passed as the data prop so components expecting input render
// something instead of failing on a missing prop.
var SampleData = []SampleRow{
	{Name: "Jan", Value: 400, UV: 2400, PV: 2400},
	{Name: "Feb", Value: 300, UV: 1398, PV: 2210},
	{Name: "Mar", Value: 500, UV: 9800, PV: 2290},
	{Name: "Apr", Value: 278, UV: 3908, PV: 2000},
	{Name: "May", Value: 189, UV: 4800, PV: 2181},
	{Name: "Jun", Value: 239, UV: 3800, PV: 2500},
}
