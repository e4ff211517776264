package analysis

import (
	"log/slog"
	"regexp"
	"strings"
)

// Block is one visualization's code as delimited in an analysis response.
type Block struct {
	ID          string
	Description string
	Code        string
}

// Result is a parsed analysis response.
type Result struct {
	Prose  string
	Blocks []Block
}

var (
	blockRe = regexp.MustCompile(`(?s)\{\{VISUALIZATION_CODE_START:([^:{}\n]+):([^{}\n]*)\}\}(.*?)\{\{VISUALIZATION_CODE_END:([^{}\n]*)\}\}`)
	// a start token whose end token never arrived, typically a truncated response
	danglingRe = regexp.MustCompile(`(?s)\{\{VISUALIZATION_CODE_START:([^:{}\n]+):([^{}\n]*)\}\}(.*)$`)
	fenceRe    = regexp.MustCompile("(?s)^```[a-zA-Z]*[ \t]*\n(.*?)\n?```$")
)

// ParseResponse splits an analysis response into prose and visualization
// blocks. Blocks are removed from the prose; a repeated id keeps its first
// block.
func ParseResponse(response string) Result {
	response = strings.TrimSpace(response)

	var res Result
	seen := make(map[string]bool)
	add := func(id, description, code string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			slog.Debug("Skipping visualization block", "id", id, "duplicate", seen[id])
			return
		}
		seen[id] = true
		res.Blocks = append(res.Blocks, Block{
			ID:          id,
			Description: strings.TrimSpace(description),
			Code:        StripCodeFence(code),
		})
	}

	for _, m := range blockRe.FindAllStringSubmatch(response, -1) {
		if end := strings.TrimSpace(m[4]); end != strings.TrimSpace(m[1]) {
			slog.Warn("Visualization block end token does not match its start", "start", m[1], "end", end)
		}
		add(m[1], m[2], m[3])
	}
	prose := blockRe.ReplaceAllString(response, "")

	if m := danglingRe.FindStringSubmatchIndex(prose); m != nil {
		slog.Warn("Visualization block was not terminated", "id", prose[m[2]:m[3]])
		add(prose[m[2]:m[3]], prose[m[4]:m[5]], prose[m[6]:m[7]])
		prose = prose[:m[0]]
	}

	res.Prose = strings.TrimSpace(prose)
	return res
}

// StripCodeFence removes a markdown code fence wrapping s.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
