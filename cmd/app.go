package cmd

import (
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/studyguide/internal/analysis"
	"github.com/lehigh-university-libraries/studyguide/internal/config"
	"github.com/lehigh-university-libraries/studyguide/internal/events"
	"github.com/lehigh-university-libraries/studyguide/internal/providers"
	"github.com/lehigh-university-libraries/studyguide/internal/realm"
	"github.com/lehigh-university-libraries/studyguide/internal/regenerate"
	"github.com/lehigh-university-libraries/studyguide/internal/related"
	"github.com/lehigh-university-libraries/studyguide/internal/storage"
	"github.com/spf13/cobra"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg      config.Config
	backend  storage.Backend
	store    *storage.SessionStore
	hub      *events.Hub
	analysis *analysis.Service
	host     *realm.Host
	workflow *regenerate.Workflow
	related  related.Finder
}

// loadConfig reads the file named by --config, then the environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newApp wires storage, the provider and the realm host from configuration.
// withProvider is false for commands that never call a model.
func newApp(cmd *cobra.Command, withProvider bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	backend, err := cfg.OpenBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &app{cfg: cfg, backend: backend, hub: events.NewHub()}
	a.store = storage.New(backend,
		storage.WithMaxCachedSourceBytes(cfg.Storage.MaxCachedSourceBytes),
		storage.WithNoticeHandler(func(message string) {
			a.hub.Publish(events.Event{Type: events.Notice, Message: message})
		}),
	)
	if err := a.store.Load(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}

	a.host = realm.NewHost(cfg.Realm.Runtime, realm.WithBadge(cfg.Badge()))
	a.related = related.Mock{}

	if withProvider {
		provider, err := analysis.NewProvider(analysis.ProviderConfig{
			Name:    cfg.Provider.Name,
			APIKey:  providerKey(cfg.Provider),
			BaseURL: providerURL(cfg.Provider),
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		guarded := providers.NewGuard(provider, providers.GuardSettings{
			Timeout:  cfg.Provider.CallTimeout,
			Failures: cfg.Provider.BreakerFailures,
			Cooldown: cfg.Provider.BreakerCooldown,
		})
		a.analysis = analysis.NewService(guarded, cfg.Provider.Model,
			analysis.WithTemperature(cfg.Provider.Temperature),
			analysis.WithAnalysisTimeout(cfg.Provider.AnalysisTimeout),
		)
		a.workflow = regenerate.New(a.store, a.analysis, a.host, a.hub)
		if cfg.Related == "model" {
			a.related = related.Model{Provider: guarded, Model: a.analysis.Model()}
		}
		slog.Info("Provider configured", "provider", cfg.Provider.Name, "model", a.analysis.Model())
	}
	return a, nil
}

// Close waits for background reconciliation before releasing storage.
func (a *app) Close() {
	if a.workflow != nil {
		a.workflow.Wait()
	}
	a.hub.Close()
	if err := a.backend.Close(); err != nil {
		slog.Error("Failed to close storage", "err", err)
	}
}

func providerKey(p config.ProviderConfig) string {
	switch p.Name {
	case "gemini":
		return p.GeminiAPIKey
	case "openai":
		return p.OpenAIAPIKey
	}
	return ""
}

func providerURL(p config.ProviderConfig) string {
	switch p.Name {
	case "openai":
		return p.OpenAIBaseURL
	case "ollama":
		return p.OllamaURL
	}
	return ""
}
