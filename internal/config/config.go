// Package config provides configuration management for storyloom.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/catwalk/pkg/catwalk"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const appName = "storyloom"

// Backend names the client library used to reach the provider.
type Backend string

// Supported backends.
const (
	BackendFantasy Backend = "fantasy"
	BackendOpenAI  Backend = "openai"
)

// StoreKind selects the session store implementation.
type StoreKind string

// Supported stores.
const (
	StoreSQLite StoreKind = "sqlite"
	StoreFile   StoreKind = "file"
)

// Defaults applied when a field is left empty.
const (
	DefaultProviderID = "lmstudio"
	DefaultBaseURL    = "http://localhost:1234/v1"
	DefaultWorkers    = 4
	DefaultTimeout    = 2 * time.Minute
)

// ProviderConfig holds provider endpoint and authentication settings.
//
//nolint:govet // Field order is intentional for JSON readability.
type ProviderConfig struct {
	ExtraHeaders map[string]string `json:"extra_headers,omitempty"`
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name,omitempty"`
	Type         catwalk.Type      `json:"type,omitempty"`
	BaseURL      string            `json:"base_url,omitempty"`
	APIKey       string            `json:"api_key,omitempty"`
}

// Generation holds settings for provider calls.
type Generation struct {
	Provider          string  `json:"provider,omitempty"`
	Backend           Backend `json:"backend,omitempty"`
	TimeoutSeconds    int     `json:"timeout_seconds,omitempty"`
	RequestsPerMinute int     `json:"requests_per_minute,omitempty"`
	Workers           int     `json:"workers,omitempty"`
}

// Timeout returns the per-call timeout.
func (g Generation) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// Config is the top-level configuration structure.
type Config struct {
	Providers  map[string]*ProviderConfig `json:"providers"`
	Generation Generation                 `json:"generation"`
	Options    *Options                   `json:"options,omitempty"`
}

// Options holds optional configuration settings.
//
//nolint:govet // Field order is intentional for JSON readability.
type Options struct {
	DataDir       string    `json:"data_directory,omitempty"`
	CharactersDir string    `json:"characters_directory,omitempty"`
	PresetsDir    string    `json:"presets_directory,omitempty"`
	Store         StoreKind `json:"store,omitempty"`
	Debug         bool      `json:"debug,omitempty"`
}

// NewConfig creates a new Config with initialized maps.
func NewConfig() *Config {
	return &Config{
		Providers: make(map[string]*ProviderConfig),
		Options:   &Options{},
	}
}

// Provider returns the provider selected for generation.
func (c *Config) Provider() (*ProviderConfig, error) {
	p, ok := c.Providers[c.Generation.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", c.Generation.Provider)
	}
	return p, nil
}

// DataDir returns the data directory.
func (c *Config) DataDir() string {
	if c.Options != nil && c.Options.DataDir != "" {
		return c.Options.DataDir
	}
	return filepath.Join(xdg.DataHome, appName)
}

// DatabasePath returns the SQLite database path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir(), appName+".db")
}

// SessionsDir returns the directory used by the file store.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir(), "sessions")
}

// CharactersDir returns the character sheet directory.
func (c *Config) CharactersDir() string {
	if c.Options != nil && c.Options.CharactersDir != "" {
		return c.Options.CharactersDir
	}
	return filepath.Join(c.DataDir(), "characters")
}

// PresetsDir returns the model preset directory.
func (c *Config) PresetsDir() string {
	if c.Options != nil && c.Options.PresetsDir != "" {
		return c.Options.PresetsDir
	}
	return filepath.Join(c.DataDir(), "presets")
}

// DebugLogPath returns the debug log location.
func (c *Config) DebugLogPath() string {
	return filepath.Join(c.DataDir(), "debug.log")
}

// GlobalConfigPath returns the path of the user-level config file.
func GlobalConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, configFileName)
}

// SetConfigField updates a single field in the config file using JSON path notation.
// Only the specified field is modified.
func SetConfigField(path, key string, value any) error {
	//nolint:gosec // G304: path is the storyloom config file.
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading config file: %w", err)
		}
		data = []byte("{}")
	}

	newData, err := sjson.SetBytes(data, key, value)
	if err != nil {
		return fmt.Errorf("setting config field %q: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	//nolint:gosec // 0o600 is intentionally restrictive for API keys.
	if err := os.WriteFile(path, newData, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// GetConfigField reads a single field from the config file.
// The second return value is false when the field is absent.
func GetConfigField(path, key string) (string, bool, error) {
	//nolint:gosec // G304: path is the storyloom config file.
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading config file: %w", err)
	}
	res := gjson.GetBytes(data, key)
	if !res.Exists() {
		return "", false, nil
	}
	return res.String(), true, nil
}
