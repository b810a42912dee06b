// Package provider adapts language model client libraries to the Generator
// port used by the generation engine.
package provider

import (
	"fmt"
	"log/slog"
	"maps"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"github.com/charmbracelet/catwalk/pkg/catwalk"

	"github.com/guilhermegouw/storyloom/internal/config"
)

// Builder creates generators from configuration.
type Builder struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewBuilder creates a new provider Builder.
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{cfg: cfg, logger: logger}
}

// Build returns the configured generator, wrapped with logging, pacing,
// the per-call timeout, reply validation and chain-of-thought handling.
func (b *Builder) Build() (Generator, error) {
	providerCfg, err := b.cfg.Provider()
	if err != nil {
		return nil, err
	}

	var base Generator
	switch b.cfg.Generation.Backend {
	case config.BackendOpenAI:
		base = NewOpenAIGenerator(providerCfg.BaseURL, providerCfg.APIKey, providerCfg.ExtraHeaders)
	case config.BackendFantasy, "":
		p, err := buildFantasyProvider(providerCfg)
		if err != nil {
			return nil, err
		}
		base = NewFantasyGenerator(p)
	default:
		return nil, fmt.Errorf("unsupported backend: %q", b.cfg.Generation.Backend)
	}

	gen := b.cfg.Generation
	return Chain(base,
		WithLogging(b.logger.With("provider", providerCfg.ID)),
		WithRateLimit(NewLimiter(gen.RequestsPerMinute)),
		WithTimeout(gen.Timeout()),
		WithValidation(),
		WithChainOfThought(),
	), nil
}

// buildFantasyProvider creates a fantasy provider from configuration.
func buildFantasyProvider(providerCfg *config.ProviderConfig) (fantasy.Provider, error) {
	headers := maps.Clone(providerCfg.ExtraHeaders)

	//nolint:exhaustive // Only openai-style and anthropic endpoints are supported.
	switch providerCfg.Type {
	case catwalk.TypeOpenAI, catwalk.TypeOpenAICompat, catwalk.TypeOpenRouter:
		var opts []openai.Option
		if providerCfg.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(providerCfg.APIKey))
		}
		if len(headers) > 0 {
			opts = append(opts, openai.WithHeaders(headers))
		}
		if providerCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(providerCfg.BaseURL))
		}
		return openai.New(opts...)
	case catwalk.TypeAnthropic:
		var opts []anthropic.Option
		if providerCfg.APIKey != "" {
			opts = append(opts, anthropic.WithAPIKey(providerCfg.APIKey))
		}
		if len(headers) > 0 {
			opts = append(opts, anthropic.WithHeaders(headers))
		}
		if providerCfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(providerCfg.BaseURL))
		}
		return anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider type: %q", providerCfg.Type)
	}
}
