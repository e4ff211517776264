// Package analysis turns an uploaded document into a study guide session by
// way of a remote model, and regenerates single visualizations on demand.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/studyguide/internal/document"
	"github.com/lehigh-university-libraries/studyguide/internal/gemini"
	"github.com/lehigh-university-libraries/studyguide/internal/models"
	"github.com/lehigh-university-libraries/studyguide/internal/normalize"
	"github.com/lehigh-university-libraries/studyguide/internal/ollama"
	"github.com/lehigh-university-libraries/studyguide/internal/openai"
	"github.com/lehigh-university-libraries/studyguide/internal/placeholder"
	"github.com/lehigh-university-libraries/studyguide/internal/providers"
)

// ErrEmptyResponse is returned when the model answers with nothing usable.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Name    string
	APIKey  string
	BaseURL string
}

// NewProvider builds the named provider.
func NewProvider(cfg ProviderConfig) (providers.Provider, error) {
	switch cfg.Name {
	case "gemini":
		return gemini.New(cfg.APIKey), nil
	case "openai":
		return openai.New(cfg.APIKey, cfg.BaseURL), nil
	case "ollama":
		return ollama.New(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "gemini":
		return "gemini-2.0-flash"
	case "openai":
		return "gpt-4o"
	case "ollama":
		return "llama3.2"
	default:
		return ""
	}
}

type Service struct {
	provider          providers.Provider
	model             string
	temperature       float64
	analysisTimeout   time.Duration
	maxVisualizations int
}

// Option customises a Service.
type Option func(*Service)

// WithTemperature sets the sampling temperature for every call.
func WithTemperature(t float64) Option { return func(s *Service) { s.temperature = t } }

// WithAnalysisTimeout bounds the whole-document analysis call.
func WithAnalysisTimeout(d time.Duration) Option { return func(s *Service) { s.analysisTimeout = d } }

// WithMaxVisualizations caps how many placeholders the prompt asks for.
func WithMaxVisualizations(n int) Option { return func(s *Service) { s.maxVisualizations = n } }

func NewService(provider providers.Provider, model string, opts ...Option) *Service {
	if model == "" {
		model = DefaultModel(provider.Name())
	}
	s := &Service{
		provider:          provider,
		model:             model,
		temperature:       0.4,
		analysisTimeout:   5 * time.Minute,
		maxVisualizations: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider names the backing provider.
func (s *Service) Provider() string { return s.provider.Name() }

// Model names the model in use.
func (s *Service) Model() string { return s.model }

// Analyze sends the document for analysis and parses the response.
func (s *Service) Analyze(ctx context.Context, doc *document.Document) (Result, error) {
	if s.analysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.analysisTimeout)
		defer cancel()
	}

	start := time.Now()
	response, err := s.provider.ExtractText(ctx, providers.Config{
		Model:       s.model,
		Temperature: s.temperature,
		Prompt:      s.buildAnalysisPrompt(),
		Document:    doc,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to analyze %s: %w", doc.Name, err)
	}

	res := ParseResponse(response)
	if res.Prose == "" && len(res.Blocks) == 0 {
		return Result{}, ErrEmptyResponse
	}
	slog.Info("Document analyzed",
		"document", doc.Name,
		"provider", s.provider.Name(),
		"model", s.model,
		"blocks", len(res.Blocks),
		"markers", len(placeholder.Parse(res.Prose)),
		"duration", time.Since(start))
	return res, nil
}

// Generate asks for the code of a single visualization. The returned code
// is normalized.
func (s *Service) Generate(ctx context.Context, description string, doc *document.Document) (string, error) {
	response, err := s.provider.ExtractText(ctx, providers.Config{
		Model:       s.model,
		Temperature: s.temperature,
		Prompt:      s.buildGenerationPrompt(description),
		Document:    doc,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate visualization: %w", err)
	}

	code := StripCodeFence(response)
	// some models wrap a single answer in the analysis block format anyway
	if res := ParseResponse(response); len(res.Blocks) > 0 {
		code = res.Blocks[0].Code
	}
	if code == "" {
		return "", ErrEmptyResponse
	}
	return normalize.Normalize(code), nil
}

// NewSession builds a session from an analysis result. Every block becomes
// a ready artifact with normalized code; markers without a block are left
// for the placeholder layer to render as missing.
func (s *Service) NewSession(doc *document.Document, res Result) (*models.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	now := time.Now()

	descriptions := make(map[string]string)
	for _, m := range placeholder.Parse(res.Prose) {
		if _, ok := descriptions[m.ID]; !ok {
			descriptions[m.ID] = m.Description
		}
	}

	sess := &models.Session{
		ID:           id.String(),
		Title:        doc.Name,
		Prose:        res.Prose,
		CachedSource: doc.Data,
		SourceMIME:   doc.MIME,
		SourceSize:   doc.Size(),
		Provider:     s.provider.Name(),
		Model:        s.model,
		CreatedAt:    now,
	}
	for _, b := range res.Blocks {
		a := models.Artifact{
			ID:          b.ID,
			Description: b.Description,
			Status:      models.StatusReady,
			UpdatedAt:   now,
		}
		if a.Description == "" {
			a.Description = descriptions[b.ID]
		}
		if b.Code == "" {
			a.Status = models.StatusError
			a.Error = "The model returned no code for this visualization."
		} else {
			a.Code = normalize.Normalize(b.Code)
		}
		sess.SetArtifact(a)
	}
	return sess, nil
}
