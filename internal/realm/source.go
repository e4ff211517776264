package realm

import (
	"regexp"
	"strings"

	"github.com/lehigh-university-libraries/studyguide/internal/normalize"
)

var (
	importFromRe     = regexp.MustCompile(`(?ms)^[ \t]*import\s[^;]*?\sfrom\s*['"][^'"\n]+['"][ \t]*;?[ \t]*\n?`)
	importBareRe     = regexp.MustCompile(`(?m)^[ \t]*import\s*['"][^'"\n]+['"][ \t]*;?[ \t]*\n?`)
	exportListRe     = regexp.MustCompile(`(?m)^[ \t]*export\s*\{[^}]*\}\s*(?:from\s*['"][^'"\n]+['"])?[ \t]*;?[ \t]*\n?`)
	exportDefaultID  = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+[A-Za-z_$][A-Za-z0-9_$]*[ \t]*;?[ \t]*$\n?`)
	exportAnonymous  = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+(\(|async\s|function\s*\(|class\s*\{|class\s+extends\b)`)
	exportDeclPrefix = regexp.MustCompile(`(?m)^([ \t]*)export\s+(?:default\s+)?(function|class|const|let|var|async)\b`)
)

// Prepare strips module syntax the realm cannot evaluate: the runtime is
// provided as globals, so imports are dropped and exports become plain
// declarations. An anonymous default export becomes the entry binding.
func Prepare(code string) string {
	code = stripCodeFence(code)
	code = importFromRe.ReplaceAllString(code, "")
	code = importBareRe.ReplaceAllString(code, "")
	code = exportListRe.ReplaceAllString(code, "")
	code = exportDefaultID.ReplaceAllString(code, "")
	code = exportAnonymous.ReplaceAllString(code, "${1}const "+normalize.EntryName+" = ${2}")
	code = exportDeclPrefix.ReplaceAllString(code, "${1}${2}")
	return strings.TrimSpace(code) + "\n"
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl != -1 {
			s = s[nl+1:]
		} else {
			s = ""
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return s
}
