package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var tokenRe = regexp.MustCompile(`SGVIZTOKEN(\d+)X`)

// placer swaps marker tokens in rendered prose for fragments, deciding per
// token where the fragment may legally sit.
type placer struct {
	// literal returns the original marker text for token i.
	literal func(i int) string
	// fragment returns the HTML for token i, or "" when it renders nowhere.
	fragment func(i int) string

	fragments []string
	hoisted   map[*html.Node]*html.Node
}

// piece is a run of text, a fragment slot or an existing node.
type piece struct {
	text string
	slot *html.Node
	n    *html.Node
}

func (p *placer) place(rendered string) (string, error) {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(rendered), &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body})
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered prose: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	var texts []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if tokenRe.MatchString(n.Data) {
				texts = append(texts, n)
			}
		case html.ElementNode:
			for i := range n.Attr {
				n.Attr[i].Val = tokenRe.ReplaceAllString(n.Attr[i].Val, "")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	p.hoisted = make(map[*html.Node]*html.Node)
	for _, t := range texts {
		if inCode(t) {
			t.Data = tokenRe.ReplaceAllStringFunc(t.Data, func(tok string) string {
				return p.literal(tokenIndex(tok))
			})
			continue
		}
		pieces := p.split(t.Data)
		parent := t.Parent
		switch {
		case isPhrasingBlock(parent):
			splitBlock(parent, t, pieces)
		case phrasingAncestor(parent) != nil:
			p.hoist(phrasingAncestor(parent), t, pieces)
		default:
			for _, pc := range pieces {
				parent.InsertBefore(pc.node(), t)
			}
			parent.RemoveChild(t)
		}
	}

	var b strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", fmt.Errorf("failed to render prose: %w", err)
		}
	}
	out := b.String()
	for i, f := range p.fragments {
		out = strings.Replace(out, "<!--"+slotName(i)+"-->", f, 1)
	}
	return out, nil
}

// split cuts text at each token. Fragments stay out of the tree as comment
// slots so their markup is written verbatim after rendering.
func (p *placer) split(s string) []piece {
	var pieces []piece
	last := 0
	for _, loc := range tokenRe.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > last {
			pieces = append(pieces, piece{text: s[last:loc[0]]})
		}
		i, _ := strconv.Atoi(s[loc[2]:loc[3]])
		if f := p.fragment(i); f != "" {
			p.fragments = append(p.fragments, f)
			pieces = append(pieces, piece{slot: &html.Node{Type: html.CommentNode, Data: slotName(len(p.fragments) - 1)}})
		}
		last = loc[1]
	}
	if last < len(s) {
		pieces = append(pieces, piece{text: s[last:]})
	}
	return pieces
}

// hoist keeps the text in place and moves fragments after the paragraph
// that holds the inline element.
func (p *placer) hoist(block, t *html.Node, pieces []piece) {
	after, ok := p.hoisted[block]
	if !ok {
		after = block
	}
	for _, pc := range pieces {
		if pc.slot == nil {
			t.Parent.InsertBefore(pc.node(), t)
			continue
		}
		block.Parent.InsertBefore(pc.slot, after.NextSibling)
		after = pc.slot
	}
	t.Parent.RemoveChild(t)
	p.hoisted[block] = after
}

// splitBlock closes a paragraph or heading around each fragment.
func splitBlock(block, t *html.Node, pieces []piece) {
	var children []piece
	for c := block.FirstChild; c != nil; {
		next := c.NextSibling
		block.RemoveChild(c)
		if c == t {
			children = append(children, pieces...)
		} else {
			children = append(children, piece{n: c})
		}
		c = next
	}

	parent := block.Parent
	var group *html.Node
	flush := func() {
		if group != nil && !blank(group) {
			parent.InsertBefore(group, block)
		}
		group = nil
	}
	for _, pc := range children {
		if pc.slot != nil {
			flush()
			parent.InsertBefore(pc.slot, block)
			continue
		}
		if group == nil {
			group = &html.Node{Type: html.ElementNode, Data: block.Data, DataAtom: block.DataAtom, Attr: append([]html.Attribute(nil), block.Attr...)}
		}
		group.AppendChild(pc.node())
	}
	flush()
	parent.RemoveChild(block)
}

func (pc piece) node() *html.Node {
	switch {
	case pc.n != nil:
		return pc.n
	case pc.slot != nil:
		return pc.slot
	default:
		return &html.Node{Type: html.TextNode, Data: pc.text}
	}
}

func inCode(n *html.Node) bool {
	for a := n.Parent; a != nil; a = a.Parent {
		if a.DataAtom == atom.Code || a.DataAtom == atom.Pre {
			return true
		}
	}
	return false
}

func isPhrasingBlock(n *html.Node) bool {
	switch n.DataAtom {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

// phrasingAncestor finds the paragraph or heading an inline element sits in.
// Containers that accept flow content stop the search.
func phrasingAncestor(n *html.Node) *html.Node {
	for a := n; a != nil; a = a.Parent {
		if isPhrasingBlock(a) {
			return a
		}
		switch a.DataAtom {
		case atom.Li, atom.Td, atom.Th, atom.Blockquote, atom.Div, atom.Section, atom.Dd, atom.Details:
			return nil
		}
	}
	return nil
}

func blank(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode || strings.TrimSpace(c.Data) != "" {
			return false
		}
	}
	return true
}

func tokenIndex(tok string) int {
	i, _ := strconv.Atoi(tokenRe.FindStringSubmatch(tok)[1])
	return i
}

func slotName(i int) string { return "sgviz-slot-" + strconv.Itoa(i) }
