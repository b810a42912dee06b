package provider

import (
	"context"
	"fmt"
	"sync"

	"charm.land/fantasy"
)

// FantasyGenerator generates through a fantasy provider. Language models
// are resolved per model id and cached.
//
// repeat_penalty has no fantasy call option and is not forwarded.
type FantasyGenerator struct {
	resolve func(ctx context.Context, modelID string) (fantasy.LanguageModel, error)
	models  map[string]fantasy.LanguageModel
	mu      sync.Mutex
}

// NewFantasyGenerator creates a generator backed by p.
func NewFantasyGenerator(p fantasy.Provider) *FantasyGenerator {
	return &FantasyGenerator{
		resolve: p.LanguageModel,
		models:  make(map[string]fantasy.LanguageModel),
	}
}

func (g *FantasyGenerator) languageModel(ctx context.Context, modelID string) (fantasy.LanguageModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if lm, ok := g.models[modelID]; ok {
		return lm, nil
	}
	lm, err := g.resolve(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("getting language model %q: %w", modelID, err)
	}
	g.models[modelID] = lm
	return lm, nil
}

// Generate implements Generator.
func (g *FantasyGenerator) Generate(ctx context.Context, req Request) (string, error) {
	lm, err := g.languageModel(ctx, req.Model)
	if err != nil {
		return "", err
	}

	resp, err := lm.Generate(ctx, buildCall(req))
	if err != nil {
		return "", fmt.Errorf("calling model %q: %w", req.Model, err)
	}
	return resp.Content.Text(), nil
}

func buildCall(req Request) fantasy.Call {
	prompt := make(fantasy.Prompt, 0, len(req.Messages)+1)
	if req.System != "" {
		prompt = append(prompt, fantasy.NewSystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			prompt = append(prompt, fantasy.NewUserMessage(m.Content))
		case RoleAssistant:
			prompt = append(prompt, fantasy.Message{
				Role:    fantasy.MessageRoleAssistant,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: m.Content}},
			})
		}
	}

	call := fantasy.Call{Prompt: prompt}
	s := req.Sampling
	if s.MaxTokens > 0 {
		maxTokens := int64(s.MaxTokens)
		call.MaxOutputTokens = &maxTokens
	}
	if s.Temperature > 0 {
		temperature := s.Temperature
		call.Temperature = &temperature
	}
	if s.TopP > 0 {
		topP := s.TopP
		call.TopP = &topP
	}
	if s.TopK > 0 {
		topK := int64(s.TopK)
		call.TopK = &topK
	}
	return call
}
