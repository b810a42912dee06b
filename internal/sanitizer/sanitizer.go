// Package sanitizer cleans generated stories with a secondary,
// low-temperature generation pass.
package sanitizer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/guilhermegouw/storyloom/internal/preset"
	"github.com/guilhermegouw/storyloom/internal/provider"
)

// SystemPrompt frames the sanitizer model.
const SystemPrompt = "You are a careful, low-temperature text sanitizer. Only remove problems, do not rewrite."

const promptTemplate = `You are a careful text sanitizer. Your job is to clean the following story by:
- Removing repetitive loops where the model repeats itself
- Removing meta-commentary or breaking character
- Removing nonsensical gibberish or illogical parts
- Removing excessive repetition of phrases or ideas
- DO NOT change the actual story content, plot, or creative elements
- DO NOT rewrite or improve the story - only remove problematic parts
- Preserve the original creative voice and style
- Keep the story coherent and flowing naturally

Return only the cleaned story with problems removed.

===
`

// Prompt returns the user prompt wrapping story.
func Prompt(story string) string {
	return promptTemplate + story + "\n==="
}

// Result is the outcome of a clean pass. When Applied is false, Text is the
// input unchanged and Err holds the provider failure, or
// provider.ErrEmptyResponse for a blank reply.
type Result struct {
	Text    string
	Applied bool
	Err     error
}

// Sanitizer runs clean passes through a generator.
type Sanitizer struct {
	gen    provider.Generator
	logger *slog.Logger
}

// New creates a sanitizer.
func New(gen provider.Generator, logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sanitizer{gen: gen, logger: logger}
}

// Clean makes a single attempt to clean story with the preset's settings.
// On any failure the original text is returned byte for byte.
func (s *Sanitizer) Clean(ctx context.Context, story string, p *preset.Preset) Result {
	req := p.Request(SystemPrompt, provider.Message{Role: provider.RoleUser, Content: Prompt(story)})

	out, err := s.gen.Generate(ctx, req)
	out = strings.TrimSpace(out)
	if err == nil && out == "" {
		err = provider.ErrEmptyResponse
	}
	if err != nil {
		s.logger.Warn("sanitization failed, keeping original", "preset", p.Name, "error", err)
		return Result{Text: story, Err: err}
	}

	s.logger.Info("sanitization applied", "preset", p.Name, "original", len(story), "cleaned", len(out))
	return Result{Text: out, Applied: true}
}
