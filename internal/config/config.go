// Package config loads settings from defaults, an optional YAML file and
// the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lehigh-university-libraries/studyguide/internal/document"
	"github.com/lehigh-university-libraries/studyguide/internal/realm"
	"github.com/lehigh-university-libraries/studyguide/internal/storage"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no file is given and it exists.
const DefaultPath = "studyguide.yaml"

type Config struct {
	Addr     string         `yaml:"addr"`
	Provider ProviderConfig `yaml:"provider"`
	Storage  StorageConfig  `yaml:"storage"`
	Realm    RealmConfig    `yaml:"realm"`
	// MaxUploadBytes bounds accepted documents.
	MaxUploadBytes int64 `yaml:"maxuploadbytes"`
	// Related selects the related-links finder: mock or model.
	Related string `yaml:"related"`
}

type ProviderConfig struct {
	Name            string        `yaml:"name"`
	Model           string        `yaml:"model"`
	Temperature     float64       `yaml:"temperature"`
	GeminiAPIKey    string        `yaml:"geminiapikey"`
	OpenAIAPIKey    string        `yaml:"openaiapikey"`
	OpenAIBaseURL   string        `yaml:"openaibaseurl"`
	OllamaURL       string        `yaml:"ollamaurl"`
	AnalysisTimeout time.Duration `yaml:"analysistimeout"`
	CallTimeout     time.Duration `yaml:"calltimeout"`
	BreakerFailures uint32        `yaml:"breakerfailures"`
	BreakerCooldown time.Duration `yaml:"breakercooldown"`
}

type StorageConfig struct {
	// Backend is sqlite, file or memory.
	Backend              string `yaml:"backend"`
	Path                 string `yaml:"path"`
	QuotaBytes           int64  `yaml:"quotabytes"`
	MaxCachedSourceBytes int64  `yaml:"maxcachedsourcebytes"`
}

type RealmConfig struct {
	Runtime      realm.Runtime `yaml:"runtime"`
	BadgeVisible time.Duration `yaml:"badgevisible"`
	BadgeFade    time.Duration `yaml:"badgefade"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr: ":8888",
		Provider: ProviderConfig{
			Name:            "gemini",
			Temperature:     0.4,
			AnalysisTimeout: 5 * time.Minute,
			CallTimeout:     3 * time.Minute,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:              "sqlite",
			Path:                 "studyguide.db",
			QuotaBytes:           10 << 20,
			MaxCachedSourceBytes: storage.DefaultMaxCachedSourceBytes,
		},
		Realm: RealmConfig{
			Runtime:      realm.DefaultRuntime(),
			BadgeVisible: realm.DefaultBadge.Visible,
			BadgeFade:    realm.DefaultBadge.Fade,
		},
		MaxUploadBytes: document.DefaultMaxBytes,
		Related:        "mock",
	}
}

// Load reads path (or DefaultPath when path is empty and the file exists)
// over the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&c.Addr, "STUDYGUIDE_ADDR")
	setString(&c.Provider.Name, "STUDYGUIDE_PROVIDER")
	setString(&c.Provider.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.Provider.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Provider.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.Provider.OllamaURL, "OLLAMA_URL", "OLLAMA_HOST")
	setString(&c.Storage.Backend, "STUDYGUIDE_STORAGE")
	setString(&c.Storage.Path, "STUDYGUIDE_STORAGE_PATH")
	setString(&c.Related, "STUDYGUIDE_RELATED")

	// model env vars are per provider, as in <PROVIDER>_MODEL
	switch c.Provider.Name {
	case "gemini":
		setString(&c.Provider.Model, "GEMINI_MODEL")
	case "openai":
		setString(&c.Provider.Model, "OPENAI_MODEL")
	case "ollama":
		setString(&c.Provider.Model, "OLLAMA_MODEL")
	}

	if v := os.Getenv("STUDYGUIDE_ANALYSIS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid STUDYGUIDE_ANALYSIS_TIMEOUT: %w", err)
		}
		c.Provider.AnalysisTimeout = d
	}
	if v := os.Getenv("STUDYGUIDE_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid STUDYGUIDE_MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Provider.Name {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider.Name)
	}
	switch c.Storage.Backend {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	switch c.Related {
	case "mock", "model":
	default:
		return fmt.Errorf("unsupported related finder: %s", c.Related)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("maxuploadbytes must be positive")
	}
	if c.Storage.MaxCachedSourceBytes > c.MaxUploadBytes {
		return fmt.Errorf("maxcachedsourcebytes (%d) exceeds maxuploadbytes (%d)", c.Storage.MaxCachedSourceBytes, c.MaxUploadBytes)
	}
	return nil
}

// Badge returns the configured regenerated indicator.
func (c Config) Badge() realm.Badge {
	return realm.Badge{Visible: c.Realm.BadgeVisible, Fade: c.Realm.BadgeFade}
}

// OpenBackend opens the configured storage backend.
func (c Config) OpenBackend() (storage.Backend, error) {
	switch c.Storage.Backend {
	case "sqlite":
		return storage.OpenSQLite(c.Storage.Path, c.Storage.QuotaBytes)
	case "file":
		return storage.NewFileBackend(c.Storage.Path, c.Storage.QuotaBytes)
	case "memory":
		return storage.NewMemoryBackend(c.Storage.QuotaBytes), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
}
