package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/charmbracelet/catwalk/pkg/catwalk"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationWarning represents a validation warning (non-fatal).
type ValidationWarning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (vw ValidationWarning) String() string {
	return fmt.Sprintf("%s: %s", vw.Field, vw.Message)
}

// ValidationResult holds the result of validating a configuration.
type ValidationResult struct {
	IsValid  bool                `json:"is_valid"`
	Errors   []ValidationError   `json:"errors,omitempty"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
}

func (vr *ValidationResult) fail(field, format string, args ...any) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	vr.IsValid = false
}

func (vr *ValidationResult) warn(field, format string, args ...any) {
	vr.Warnings = append(vr.Warnings, ValidationWarning{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the generation settings and the selected provider.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{IsValid: true}

	switch c.Generation.Backend {
	case BackendFantasy, BackendOpenAI, "":
	default:
		result.fail("generation.backend", "unsupported backend %q, must be fantasy or openai", c.Generation.Backend)
	}
	if c.Generation.RequestsPerMinute < 0 {
		result.fail("generation.requests_per_minute", "must not be negative")
	}
	if c.Generation.TimeoutSeconds < 0 {
		result.fail("generation.timeout_seconds", "must not be negative")
	}
	if c.Options != nil {
		switch c.Options.Store {
		case StoreSQLite, StoreFile, "":
		default:
			result.fail("options.store", "unsupported store %q, must be sqlite or file", c.Options.Store)
		}
	}

	p, ok := c.Providers[c.Generation.Provider]
	if !ok {
		result.fail("generation.provider", "provider %q not configured", c.Generation.Provider)
		return result
	}
	validateProvider(result, "providers."+c.Generation.Provider, p, c.Generation.Backend)
	return result
}

// supportedTypes are the catwalk provider types a generator can be built for.
var supportedTypes = []catwalk.Type{
	catwalk.TypeOpenAI,
	catwalk.TypeOpenAICompat,
	catwalk.TypeOpenRouter,
	catwalk.TypeAnthropic,
}

func validateProvider(result *ValidationResult, prefix string, p *ProviderConfig, backend Backend) {
	switch {
	case p.Type == "":
		result.fail(prefix+".type", "provider type is required")
	case !slices.Contains(supportedTypes, p.Type):
		result.fail(prefix+".type", "unsupported provider type %q, must be one of: openai, openai-compat, openrouter, anthropic", p.Type)
	case backend == BackendOpenAI && p.Type == catwalk.TypeAnthropic:
		result.fail(prefix+".type", "the openai backend cannot reach anthropic providers")
	}

	if p.BaseURL != "" {
		if msg := checkBaseURL(p.BaseURL); msg != "" {
			result.fail(prefix+".base_url", "%s", msg)
		}
	}

	// Local openai-compatible servers usually run without a key.
	if p.APIKey == "" && p.Type != catwalk.TypeOpenAICompat {
		result.warn(prefix+".api_key", "no API key set")
	}
}

// checkBaseURL returns a description of what is wrong with endpoint, or ""
// when it is an absolute http(s) URL.
func checkBaseURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	switch {
	case err != nil:
		return "invalid URL: " + err.Error()
	case u.Scheme == "":
		return "URL must include a scheme (http:// or https://)"
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Sprintf("URL scheme must be http or https, got %q", u.Scheme)
	case u.Host == "":
		return "URL must include a host"
	}
	return ""
}

// Error returns a combined error message from all validation errors.
func (vr *ValidationResult) Error() error {
	if len(vr.Errors) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("validation failed:")
	for _, err := range vr.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return errors.New(b.String())
}

// WarningStrings returns all warnings as strings.
func (vr *ValidationResult) WarningStrings() []string {
	warnings := make([]string, len(vr.Warnings))
	for i, w := range vr.Warnings {
		warnings[i] = w.String()
	}
	return warnings
}
