package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/studyguide/internal/providers"
)

// Ollama is a provider for Ollama
type Ollama struct {
	baseURL string
	client  *http.Client
}

// New returns a new Ollama provider. An empty URL falls back to OLLAMA_URL,
// then to the local default.
func New(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{baseURL: strings.TrimSuffix(baseURL, "/"), client: &http.Client{}}
}

func (o *Ollama) Name() string { return "ollama" }

// ExtractText sends the prompt to Ollama. Ollama models do not read PDFs, so
// the document's text layer is inlined ahead of the prompt.
func (o *Ollama) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	prompt := config.Prompt
	if doc := config.Document; doc != nil {
		text, err := doc.Text()
		if err != nil {
			return "", fmt.Errorf("failed to extract document text: %w", err)
		}
		slog.Debug("Inlined document text", "document", doc.Name, "chars", len(text))
		prompt = fmt.Sprintf("DOCUMENT (%s):\n\n%s\n\n---\n\n%s", doc.Name, text, config.Prompt)
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  config.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": config.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return response.Response, nil
}
