package realm

// realmTemplate is the document loaded into each sandboxed frame. The
// generated source arrives as a string literal and is compiled and evaluated
// only after the load event, inside the frame's own global scope.
const realmTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="Content-Security-Policy" content="{{.Policy}}">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
html, body { margin: 0; padding: 0; background: transparent; color: #1f2937; font-family: system-ui, -apple-system, "Segoe UI", sans-serif; }
#root { padding: 12px; }
.sg-realm-error { border: 1px solid #fca5a5; background: #fef2f2; color: #991b1b; border-radius: 6px; padding: 12px; font-size: 14px; }
.sg-realm-error pre { white-space: pre-wrap; word-break: break-word; font-size: 12px; margin: 8px 0 0; color: #7f1d1d; }
.sg-realm-note { font-size: 13px; color: #92400e; background: #fffbeb; border: 1px solid #fcd34d; border-radius: 6px; padding: 8px 12px; margin: 0 0 8px; }
</style>
{{range .Scripts}}<script src="{{.}}" crossorigin="anonymous"></script>
{{end}}</head>
<body>
<div id="root" data-realm-status="pending"></div>
<script>
(function () {
  "use strict";
  var SOURCE = {{.Source}};
  var ENTRY = {{.Entry}};
  var CANDIDATES = {{.Candidates}};
  var PRESEEDED = {{.Preseeded}};
  var HOOKS = {{.Hooks}};
  var CHARTS = {{.Charts}};
  var SAMPLE = {{.Sample}};
  var MOUNT_ID = {{.MountID}};

  var root = document.getElementById("root");
  var failed = false;

  function reportSize() {
    try {
      parent.postMessage({ type: "studyguide:realm-size", mountId: MOUNT_ID, height: document.documentElement.scrollHeight }, "*");
    } catch (e) {}
  }

  function describe(err) {
    if (!err) { return "Unknown error"; }
    if (err.stack) { return String(err.stack); }
    if (err.message) { return String(err.message); }
    return String(err);
  }

  function showError(title, err) {
    failed = true;
    var panel = document.createElement("div");
    panel.className = "sg-realm-error";
    panel.setAttribute("role", "alert");
    var strong = document.createElement("strong");
    strong.textContent = title;
    panel.appendChild(strong);
    var pre = document.createElement("pre");
    pre.textContent = describe(err);
    panel.appendChild(pre);
    while (root.firstChild) { root.removeChild(root.firstChild); }
    root.appendChild(panel);
    root.setAttribute("data-realm-status", "error");
    reportSize();
  }

  window.addEventListener("error", function (ev) {
    showError("The visualization raised an error", ev.error || ev.message);
    ev.preventDefault();
  });
  window.addEventListener("unhandledrejection", function (ev) {
    showError("The visualization raised an unhandled rejection", ev.reason);
    ev.preventDefault();
  });

  function chart(kind, props) {
    props = props || {};
    var h = React.createElement;
    var R = window.Recharts;
    var data = props.data || SAMPLE;
    var dataKey = props.dataKey || "value";
    var nameKey = props.nameKey || "name";
    var height = props.height || 280;
    if (!R) { return h("pre", null, JSON.stringify(data, null, 2)); }
    var body;
    if (kind === "line") {
      body = h(R.LineChart, { data: data },
        h(R.CartesianGrid, { strokeDasharray: "3 3" }),
        h(R.XAxis, { dataKey: nameKey }), h(R.YAxis, null), h(R.Tooltip, null),
        h(R.Line, { type: "monotone", dataKey: dataKey, stroke: "#2563eb" }));
    } else if (kind === "pie") {
      body = h(R.PieChart, null,
        h(R.Pie, { data: data, dataKey: dataKey, nameKey: nameKey, outerRadius: 100, fill: "#2563eb", label: true }),
        h(R.Tooltip, null));
    } else {
      body = h(R.BarChart, { data: data },
        h(R.CartesianGrid, { strokeDasharray: "3 3" }),
        h(R.XAxis, { dataKey: nameKey }), h(R.YAxis, null), h(R.Tooltip, null),
        h(R.Bar, { dataKey: dataKey, fill: "#2563eb" }));
    }
    return h(R.ResponsiveContainer, { width: "100%", height: height }, body);
  }

  function installShims() {
    HOOKS.forEach(function (name) {
      if (React[name] !== undefined) { window[name] = React[name]; }
    });
    if (window.Recharts) {
      CHARTS.forEach(function (name) {
        if (window.Recharts[name] !== undefined) { window[name] = window.Recharts[name]; }
      });
    }
    window.SimpleBarChart = function (props) { return chart("bar", props); };
    window.SimpleLineChart = function (props) { return chart("line", props); };
    window.SimplePieChart = function (props) { return chart("pie", props); };
  }

  function errorElement(title, err) {
    var h = React.createElement;
    return h("div", { className: "sg-realm-error", role: "alert" }, h("strong", null, title), h("pre", null, describe(err)));
  }

  function makeBoundary() {
    function ErrorBoundary(props) {
      React.Component.call(this, props);
      this.state = { error: null };
    }
    ErrorBoundary.prototype = Object.create(React.Component.prototype);
    ErrorBoundary.prototype.constructor = ErrorBoundary;
    ErrorBoundary.getDerivedStateFromError = function (error) { return { error: error }; };
    ErrorBoundary.prototype.componentDidCatch = function (error) {
      root.setAttribute("data-realm-status", "error");
      if (window.console) { console.error(error); }
    };
    ErrorBoundary.prototype.render = function () {
      if (this.state.error) { return errorElement("The visualization failed while rendering", this.state.error); }
      return this.props.children;
    };
    return ErrorBoundary;
  }

  function Fallback() {
    var h = React.createElement;
    return h("div", null,
      h("p", { className: "sg-realm-note" }, "No component was found in the generated code. Showing a default chart over sample data."),
      chart("bar", { data: SAMPLE }));
  }

  function lookup(name) {
    if (!/^[A-Za-z_$][A-Za-z0-9_$]*$/.test(name)) { return undefined; }
    try {
      return (new Function("return typeof " + name + " === 'undefined' ? undefined : " + name + ";"))();
    } catch (e) {
      return undefined;
    }
  }

  function discover(baseline) {
    var entry = lookup(ENTRY);
    if (typeof entry === "function") { return entry; }
    for (var i = 0; i < CANDIDATES.length; i++) {
      var candidate = lookup(CANDIDATES[i]);
      if (typeof candidate === "function") { return candidate; }
    }
    var keys = Object.keys(window);
    for (var j = 0; j < keys.length; j++) {
      var key = keys[j];
      if (baseline[key] || key.length < 2 || !/^[A-Z]/.test(key) || PRESEEDED.indexOf(key) !== -1) { continue; }
      var value;
      try { value = window[key]; } catch (e) { continue; }
      if (typeof value === "function") { return value; }
    }
    return null;
  }

  function isClass(fn) {
    try {
      return /^class[\s{]/.test(Function.prototype.toString.call(fn));
    } catch (e) {
      return false;
    }
  }

  function asComponent(fn) {
    if (fn.prototype && fn.prototype.isReactComponent) { return fn; }
    if (isClass(fn)) {
      return function ClassAdapter(props) {
        var instance = new fn(props);
        return typeof instance.render === "function" ? instance.render() : null;
      };
    }
    return fn;
  }

  function run() {
    if (typeof React === "undefined" || typeof ReactDOM === "undefined" || typeof Babel === "undefined") {
      showError("The visualization runtime failed to load", "React, ReactDOM and Babel must be reachable from this frame.");
      return;
    }
    installShims();

    var compiled;
    try {
      compiled = Babel.transform(SOURCE, { presets: ["react"], sourceType: "script" }).code;
    } catch (err) {
      showError("The generated code could not be compiled", err);
      return;
    }

    var baseline = {};
    Object.keys(window).forEach(function (key) { baseline[key] = true; });

    var script = document.createElement("script");
    script.text = compiled;
    document.body.appendChild(script);
    if (failed) { return; }

    var element;
    try {
      var found = discover(baseline);
      element = found ? React.createElement(asComponent(found), { data: SAMPLE }) : React.createElement(Fallback, null);
    } catch (err) {
      showError("The generated component could not be instantiated", err);
      return;
    }

    try {
      var Boundary = makeBoundary();
      ReactDOM.createRoot(root).render(React.createElement(Boundary, null, element));
      root.setAttribute("data-realm-status", "ready");
    } catch (err) {
      showError("The visualization could not be rendered", err);
      return;
    }

    if (typeof ResizeObserver !== "undefined") {
      new ResizeObserver(reportSize).observe(document.body);
    }
    setTimeout(reportSize, 50);
  }

  if (document.readyState === "complete") {
    run();
  } else {
    window.addEventListener("load", run);
  }
})();
</script>
</body>
</html>
`
