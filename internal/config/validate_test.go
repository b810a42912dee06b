package config

import (
	"strings"
	"testing"

	"github.com/charmbracelet/catwalk/pkg/catwalk"
)

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Generation.Provider = "openai"
	cfg.Generation.Backend = BackendFantasy
	cfg.Providers["openai"] = &ProviderConfig{
		ID:      "openai",
		Type:    catwalk.TypeOpenAI,
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "sk-test",
	}
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	result := validConfig().Validate()
	if !result.IsValid {
		t.Errorf("Validate() returned IsValid=false, errors: %v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Validate() returned warnings: %v", result.Warnings)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown provider", func(c *Config) { c.Generation.Provider = "missing" }, "generation.provider"},
		{"bad backend", func(c *Config) { c.Generation.Backend = "grpc" }, "generation.backend"},
		{"bad store", func(c *Config) { c.Options.Store = "redis" }, "options.store"},
		{"negative rate", func(c *Config) { c.Generation.RequestsPerMinute = -1 }, "generation.requests_per_minute"},
		{"unsupported type", func(c *Config) { c.Providers["openai"].Type = catwalk.TypeBedrock }, "providers.openai.type"},
		{"missing scheme", func(c *Config) { c.Providers["openai"].BaseURL = "api.example.com" }, "providers.openai.base_url"},
		{"bad scheme", func(c *Config) { c.Providers["openai"].BaseURL = "ftp://example.com" }, "providers.openai.base_url"},
		{"anthropic over openai backend", func(c *Config) {
			c.Generation.Backend = BackendOpenAI
			c.Providers["openai"].Type = catwalk.TypeAnthropic
		}, "providers.openai.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			result := cfg.Validate()
			if result.IsValid {
				t.Fatal("Validate() returned IsValid=true")
			}
			if result.Errors[0].Field != tt.field {
				t.Errorf("Error field = %q, want %q", result.Errors[0].Field, tt.field)
			}
		})
	}
}

func TestValidate_MissingKeyWarns(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["openai"].APIKey = ""

	result := cfg.Validate()
	if !result.IsValid {
		t.Fatalf("a missing key should only warn, errors: %v", result.Errors)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Field != "providers.openai.api_key" {
		t.Errorf("Warnings = %v", result.Warnings)
	}

	cfg.Providers["openai"].Type = catwalk.TypeOpenAICompat
	if got := cfg.Validate().Warnings; len(got) != 0 {
		t.Errorf("local endpoints need no key, got warnings %v", got)
	}
}

func TestValidationResult_Error(t *testing.T) {
	result := &ValidationResult{IsValid: true}
	if result.Error() != nil {
		t.Error("Error() should be nil without errors")
	}

	result.fail("a", "first")
	result.fail("b", "second %d", 2)
	err := result.Error()
	if err == nil {
		t.Fatal("Error() returned nil")
	}
	if !strings.Contains(err.Error(), "a: first") || !strings.Contains(err.Error(), "b: second 2") {
		t.Errorf("Error() = %q", err)
	}

	result.warn("c", "careful")
	if got := result.WarningStrings(); len(got) != 1 || got[0] != "c: careful" {
		t.Errorf("WarningStrings() = %v", got)
	}
}
