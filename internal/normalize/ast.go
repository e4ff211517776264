package normalize

import (
	"context"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// declaration is a top-level binding found in the parse tree.
type declaration struct {
	name     string
	category category
	// component reports whether the binding matches one of the rename categories.
	component bool
}

// parse returns the root of a JSX-aware parse tree, or false when the source
// does not parse cleanly.
func parse(src []byte) (*sitter.Node, bool) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil || tree == nil {
		return nil, false
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, false
	}
	return root, true
}

func normalizeAST(src string) (string, bool) {
	source := []byte(src)
	root, ok := parse(source)
	if !ok {
		return "", false
	}

	decls := topLevelDeclarations(root, source)
	for _, d := range decls {
		// Any top-level App binding wins: renaming another symbol onto it
		// would produce a duplicate declaration.
		if d.name == EntryName {
			return src, true
		}
	}
	// a nested App would be shadowed by the renamed top-level binding
	if bindsName(root, source, EntryName) {
		return src, true
	}

	for _, cat := range []category{categoryFunction, categoryArrow, categoryClass} {
		for _, d := range decls {
			if !d.component || d.category != cat || !isCapitalized(d.name) {
				continue
			}
			return renameIdentifiers(root, source, d.name, EntryName), true
		}
	}
	return src, true
}

func candidatesAST(src string) ([]string, bool) {
	source := []byte(src)
	root, ok := parse(source)
	if !ok {
		return nil, false
	}
	var names []string
	seen := map[string]bool{}
	for _, d := range topLevelDeclarations(root, source) {
		if isCapitalized(d.name) && !seen[d.name] {
			seen[d.name] = true
			names = append(names, d.name)
		}
	}
	return names, true
}

func topLevelDeclarations(root *sitter.Node, source []byte) []declaration {
	var out []declaration
	for i := 0; i < int(root.NamedChildCount()); i++ {
		out = append(out, declarationsOf(root.NamedChild(i), source)...)
	}
	return out
}

func declarationsOf(n *sitter.Node, source []byte) []declaration {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "export_statement":
		var out []declaration
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = append(out, declarationsOf(n.NamedChild(i), source)...)
		}
		return out

	case "function_declaration", "generator_function_declaration":
		name := n.ChildByFieldName("name")
		if name == nil {
			return nil
		}
		return []declaration{{name: name.Content(source), category: categoryFunction, component: true}}

	case "class_declaration":
		name := n.ChildByFieldName("name")
		if name == nil {
			return nil
		}
		return []declaration{{name: name.Content(source), category: categoryClass, component: extendsComponent(n, source)}}

	case "lexical_declaration", "variable_declaration":
		isConst := n.ChildCount() > 0 && n.Child(0).Type() == "const"
		var out []declaration
		for i := 0; i < int(n.NamedChildCount()); i++ {
			decl := n.NamedChild(i)
			if decl.Type() != "variable_declarator" {
				continue
			}
			name := decl.ChildByFieldName("name")
			if name == nil || name.Type() != "identifier" {
				continue
			}
			value := decl.ChildByFieldName("value")
			arrow := value != nil && value.Type() == "arrow_function"
			out = append(out, declaration{
				name:      name.Content(source),
				category:  categoryArrow,
				component: isConst && arrow,
			})
		}
		return out
	}
	return nil
}

func extendsComponent(class *sitter.Node, source []byte) bool {
	for i := 0; i < int(class.NamedChildCount()); i++ {
		child := class.NamedChild(i)
		if child.Type() != "class_heritage" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			switch child.NamedChild(j).Content(source) {
			case "Component", "PureComponent", "React.Component", "React.PureComponent":
				return true
			}
		}
	}
	return false
}

type span struct {
	start, end uint32
	text       string
}

// renameIdentifiers rewrites every identifier node equal to from. Property
// names, string contents and comments are different node types and stay put.
// A shorthand property keeps its key: { Chart } becomes { Chart: App }.
func renameIdentifiers(root *sitter.Node, source []byte, from, to string) string {
	var spans []span
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "identifier":
			if n.Content(source) == from {
				spans = append(spans, span{n.StartByte(), n.EndByte(), to})
			}
			return
		case "shorthand_property_identifier":
			if n.Content(source) == from {
				spans = append(spans, span{n.StartByte(), n.EndByte(), from + ": " + to})
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	out := make([]byte, 0, len(source)+len(spans)*len(to))
	var last uint32
	for _, s := range spans {
		out = append(out, source[last:s.start]...)
		out = append(out, s.text...)
		last = s.end
	}
	out = append(out, source[last:]...)
	return string(out)
}

// bindsName reports whether name is declared anywhere in the tree, including
// nested functions, classes, variables and parameters.
func bindsName(n *sitter.Node, source []byte, name string) bool {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "function_expression", "function",
		"class_declaration", "class", "variable_declarator":
		if id := n.ChildByFieldName("name"); id != nil && id.Type() == "identifier" && id.Content(source) == name {
			return true
		}
	case "formal_parameters":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if p := n.NamedChild(i); p.Type() == "identifier" && p.Content(source) == name {
				return true
			}
		}
	case "arrow_function":
		if p := n.ChildByFieldName("parameter"); p != nil && p.Content(source) == name {
			return true
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if bindsName(n.NamedChild(i), source, name) {
			return true
		}
	}
	return false
}
