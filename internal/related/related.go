// Package related suggests further reading for a study guide.
package related

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/lehigh-university-libraries/studyguide/internal/providers"
)

// Finder returns links related to a study guide's prose.
type Finder interface {
	Find(ctx context.Context, prose string) ([]models.RelatedLink, error)
}

// MaxLinks caps every finder's output.
const MaxLinks = 5

var (
	headingRe = regexp.MustCompile(`(?m)^#{1,3}\s+(.+?)\s*#*\s*$`)
	markerRe  = regexp.MustCompile(`\{\{[^{}]*\}\}`)
)

// Mock builds search links from the prose headings without any network call.
type Mock struct{}

func (Mock) Find(_ context.Context, prose string) ([]models.RelatedLink, error) {
	var links []models.RelatedLink
	seen := make(map[string]bool)
	for _, m := range headingRe.FindAllStringSubmatch(markerRe.ReplaceAllString(prose, ""), -1) {
		topic := strings.Trim(m[1], "*_` ")
		if topic == "" || seen[strings.ToLower(topic)] {
			continue
		}
		seen[strings.ToLower(topic)] = true
		links = append(links, models.RelatedLink{
			Title:       topic,
			URL:         "https://en.wikipedia.org/w/index.php?search=" + url.QueryEscape(topic),
			Description: "Encyclopedia articles about " + topic + ".",
		})
		if len(links) == MaxLinks {
			break
		}
	}
	return links, nil
}

// Model asks a provider for links.
type Model struct {
	Provider providers.Provider
	Model    string
}

func (m Model) Find(ctx context.Context, prose string) ([]models.RelatedLink, error) {
	response, err := m.Provider.ExtractText(ctx, providers.Config{
		Model:       m.Model,
		Temperature: 0.2,
		Prompt:      buildPrompt(prose),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch related links: %w", err)
	}

	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var links []models.RelatedLink
	if err := json.Unmarshal([]byte(response), &links); err != nil {
		slog.Warn("Failed to parse related links, using headings", "error", err)
		return Mock{}.Find(ctx, prose)
	}

	var out []models.RelatedLink
	for _, l := range links {
		u, err := url.Parse(l.URL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || l.Title == "" {
			continue
		}
		out = append(out, l)
		if len(out) == MaxLinks {
			break
		}
	}
	return out, nil
}

func buildPrompt(prose string) string {
	return fmt.Sprintf(`Suggest up to %d reputable web resources a student could read to go deeper into the study guide below.

Respond with ONLY a JSON array in this format:
[{"title": "...", "url": "https://...", "description": "one sentence"}]

STUDY GUIDE:
%s`, MaxLinks, markerRe.ReplaceAllString(prose, ""))
}
