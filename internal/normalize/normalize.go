// Package normalize rewrites generated component source so it exposes a single,
// predictably named entry point regardless of how the component was declared.
package normalize

import (
	"log/slog"
	"regexp"
	"strings"
)

// EntryName is the reserved symbol the execution host looks for first.
const EntryName = "App"

// declaration categories, in the order they are tried
type category int

const (
	categoryFunction category = iota
	categoryArrow
	categoryClass
)

func (c category) String() string {
	switch c {
	case categoryFunction:
		return "function"
	case categoryArrow:
		return "arrow"
	case categoryClass:
		return "class"
	}
	return "unknown"
}

// Normalize returns src with its component entry renamed to EntryName.
// Source that already declares EntryName is returned unchanged.
func Normalize(src string) string {
	if strings.TrimSpace(src) == "" {
		return src
	}

	if out, ok := normalizeAST(src); ok {
		return out
	}

	slog.Debug("Falling back to line heuristic for component normalization")
	return normalizeHeuristic(src)
}

// Candidates lists capitalized top-level declarations in source order.
func Candidates(src string) []string {
	if names, ok := candidatesAST(src); ok {
		return names
	}
	return candidatesHeuristic(src)
}

var (
	entryFuncRe  = regexp.MustCompile(`(?m)^\s*(?:export\s+(?:default\s+)?)?(?:async\s+)?function\s*\*?\s*App\b`)
	entryBindRe  = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+App\s*=`)
	entryClassRe = regexp.MustCompile(`(?m)^\s*(?:export\s+(?:default\s+)?)?class\s+App\b`)

	funcDeclRe  = regexp.MustCompile(`(?m)^\s*(?:export\s+(?:default\s+)?)?(?:async\s+)?function\s+([A-Z][A-Za-z0-9_]*)\s*\(`)
	arrowDeclRe = regexp.MustCompile(`(?m)^\s*(?:export\s+)?const\s+([A-Z][A-Za-z0-9_]*)\s*=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_][A-Za-z0-9_]*)\s*=>`)
	classDeclRe = regexp.MustCompile(`(?m)^\s*(?:export\s+(?:default\s+)?)?class\s+([A-Z][A-Za-z0-9_]*)\s+extends\s+(?:React\.)?(?:Pure)?Component\b`)
	anyDeclRe   = regexp.MustCompile(`(?m)^\s*(?:export\s+(?:default\s+)?)?(?:async\s+)?(?:function\s+|class\s+|(?:const|let|var)\s+)([A-Z][A-Za-z0-9_]*)`)
)

func hasEntryHeuristic(src string) bool {
	return entryFuncRe.MatchString(src) || entryBindRe.MatchString(src) || entryClassRe.MatchString(src)
}

// normalizeHeuristic is the line-start matcher. Names that appear inside
// comments or strings are renamed too; the AST path avoids that.
func normalizeHeuristic(src string) string {
	if hasEntryHeuristic(src) {
		return src
	}
	for _, re := range []*regexp.Regexp{funcDeclRe, arrowDeclRe, classDeclRe} {
		m := re.FindStringSubmatch(src)
		if m == nil {
			continue
		}
		return renameWord(src, m[1], EntryName)
	}
	return src
}

func renameWord(src, from, to string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(from) + `\b`)
	return re.ReplaceAllString(src, to)
}

func candidatesHeuristic(src string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range anyDeclRe.FindAllStringSubmatch(src, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func isCapitalized(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}
