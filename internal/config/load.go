package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/catwalk/pkg/catwalk"
)

const (
	configFileName = "storyloom.json"
	envPrefix      = "STORYLOOM_"

	defaultAnthropicEndpoint = "https://api.anthropic.com"
	defaultOpenAIEndpoint    = "https://api.openai.com/v1"
)

// envOverrides lists the settings that can be forced from the environment.
type envOverrides struct {
	Provider     string        `env:"PROVIDER"`
	ProviderType string        `env:"PROVIDER_TYPE"`
	BaseURL      string        `env:"BASE_URL"`
	APIKey       string        `env:"API_KEY"`
	Backend      string        `env:"BACKEND"`
	DataDir      string        `env:"DATA_DIR"`
	Store        string        `env:"STORE"`
	Workers      int           `env:"WORKERS"`
	Timeout      time.Duration `env:"TIMEOUT"`
	Debug        bool          `env:"DEBUG"`
}

// Load finds and loads configuration from standard locations.
// The global file is merged with a project file (project takes precedence),
// then environment overrides and defaults are applied.
func Load() (*Config, error) {
	cfg := NewConfig()
	if err := loadFile(GlobalConfigPath(), cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading global config: %w", err)
	}

	if projectPath := findProjectConfig(); projectPath != "" {
		projectCfg := NewConfig()
		if err := loadFile(projectPath, projectCfg); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
		mergeConfig(cfg, projectCfg)
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func finish(cfg *Config) error {
	if err := applyEnv(cfg); err != nil {
		return err
	}
	applyDefaults(cfg)
	resolveProviders(cfg)
	return nil
}

func loadFile(path string, cfg *Config) error {
	//nolint:gosec // G304: Path is from trusted config locations, not user input.
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// findProjectConfig walks up from the working directory looking for
// storyloom.json or .storyloom.json.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		for _, name := range []string{configFileName, "." + configFileName} {
			if path := filepath.Join(dir, name); fileExists(path) {
				return path
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// override sets *dst to v unless v is the zero value.
func override[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

func mergeConfig(dst, src *Config) {
	for name, p := range src.Providers {
		dst.Providers[name] = p
	}

	g := src.Generation
	override(&dst.Generation.Provider, g.Provider)
	override(&dst.Generation.Backend, g.Backend)
	override(&dst.Generation.TimeoutSeconds, max(g.TimeoutSeconds, 0))
	override(&dst.Generation.RequestsPerMinute, max(g.RequestsPerMinute, 0))
	override(&dst.Generation.Workers, max(g.Workers, 0))

	if src.Options == nil {
		return
	}
	if dst.Options == nil {
		dst.Options = &Options{}
	}
	o := src.Options
	override(&dst.Options.DataDir, o.DataDir)
	override(&dst.Options.CharactersDir, o.CharactersDir)
	override(&dst.Options.PresetsDir, o.PresetsDir)
	override(&dst.Options.Store, o.Store)
	override(&dst.Options.Debug, o.Debug)
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	override(&cfg.Generation.Provider, o.Provider)
	override(&cfg.Generation.Backend, Backend(o.Backend))
	override(&cfg.Generation.Workers, max(o.Workers, 0))
	override(&cfg.Generation.TimeoutSeconds, int(max(o.Timeout, 0)/time.Second))
	if cfg.Options == nil {
		cfg.Options = &Options{}
	}
	override(&cfg.Options.DataDir, o.DataDir)
	override(&cfg.Options.Store, StoreKind(o.Store))
	override(&cfg.Options.Debug, o.Debug)

	if o.BaseURL == "" && o.APIKey == "" && o.ProviderType == "" {
		return nil
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = DefaultProviderID
	}
	id := cfg.Generation.Provider
	p, ok := cfg.Providers[id]
	if !ok {
		p = &ProviderConfig{ID: id}
		cfg.Providers[id] = p
	}
	override(&p.BaseURL, o.BaseURL)
	override(&p.APIKey, o.APIKey)
	override(&p.Type, catwalk.Type(o.ProviderType))
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Options == nil {
		cfg.Options = &Options{}
	}
	if cfg.Options.Store == "" {
		cfg.Options.Store = StoreSQLite
	}
	if cfg.Generation.Backend == "" {
		cfg.Generation.Backend = BackendFantasy
	}
	if cfg.Generation.Workers <= 0 {
		cfg.Generation.Workers = DefaultWorkers
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = DefaultProviderID
	}
	if _, ok := cfg.Providers[DefaultProviderID]; !ok && cfg.Generation.Provider == DefaultProviderID {
		cfg.Providers[DefaultProviderID] = &ProviderConfig{
			ID:      DefaultProviderID,
			Name:    "LM Studio",
			Type:    catwalk.TypeOpenAICompat,
			BaseURL: DefaultBaseURL,
		}
	}
}

// resolveProviders fills IDs, endpoints and "$VAR" key references.
func resolveProviders(cfg *Config) {
	for id, p := range cfg.Providers {
		if p.ID == "" {
			p.ID = id
		}
		if p.Type == "" {
			p.Type = catwalk.TypeOpenAICompat
		}
		if p.BaseURL == "" {
			p.BaseURL = defaultEndpoint(p.Type)
		}
		if strings.HasPrefix(p.APIKey, "$") {
			p.APIKey = os.ExpandEnv(p.APIKey)
		}
	}
}

func defaultEndpoint(providerType catwalk.Type) string {
	//nolint:exhaustive // Other provider types need explicit endpoints.
	switch providerType {
	case catwalk.TypeAnthropic:
		return defaultAnthropicEndpoint
	case catwalk.TypeOpenAI, catwalk.TypeOpenRouter:
		return defaultOpenAIEndpoint
	case catwalk.TypeOpenAICompat:
		return DefaultBaseURL
	default:
		return ""
	}
}
