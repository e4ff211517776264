package providers

import (
	"context"

	"github.com/lehigh-university-libraries/studyguide/internal/document"
)

// Config represents the configuration for one LLM call
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	// Document is attached to the request when set.
	Document *document.Document
}

// Provider defines the interface for an LLM provider
type Provider interface {
	Name() string
	ExtractText(ctx context.Context, config Config) (string, error)
}
