package provider

import (
	"context"
	"errors"
)

// Role tags a message sent to the provider.
type Role string

// Message roles. System text travels in Request.System.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of a request.
type Message struct {
	Role    Role
	Content string
}

// Sampling holds the sampling parameters of a call.
type Sampling struct {
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	TopK          int     `json:"top_k" yaml:"top_k"`
	TopP          float64 `json:"top_p" yaml:"top_p"`
	RepeatPenalty float64 `json:"repeat_penalty" yaml:"repeat_penalty"`
	MaxTokens     int     `json:"max_tokens" yaml:"max_tokens"`
}

// DefaultSampling returns the parameters used for characters that
// do not specify their own.
func DefaultSampling() Sampling {
	return Sampling{
		Temperature:   0.7,
		TopK:          40,
		TopP:          0.9,
		RepeatPenalty: 1.1,
		MaxTokens:     500,
	}
}

// WithDefaults fills zero fields from def.
func (s Sampling) WithDefaults(def Sampling) Sampling {
	if s.Temperature == 0 {
		s.Temperature = def.Temperature
	}
	if s.TopK == 0 {
		s.TopK = def.TopK
	}
	if s.TopP == 0 {
		s.TopP = def.TopP
	}
	if s.RepeatPenalty == 0 {
		s.RepeatPenalty = def.RepeatPenalty
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = def.MaxTokens
	}
	return s
}

// Request is a single generation call.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Sampling Sampling
	CoT      bool
}

// Generator produces text for a request. Implementations are synchronous
// and may fail; callers own retries and fallbacks.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrEmptyResponse is returned when the provider answers with no text.
var ErrEmptyResponse = errors.New("provider returned empty response")
