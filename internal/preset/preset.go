// Package preset provides named model presets that override a character's
// model, sampling and chain-of-thought settings.
package preset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/character"
	"github.com/guilhermegouw/storyloom/internal/provider"
)

// DefaultSanitizer is the preset used when sanitizing without a name.
const DefaultSanitizer = "sanitizer-balanced"

// Preset is a named model configuration.
type Preset struct {
	Name     string            `json:"name,omitempty"`
	Model    string            `json:"model"`
	Sampling provider.Sampling `json:"sampling"`
	CoT      bool              `json:"cot"`
}

// Request returns a provider request configured by the preset.
func (p *Preset) Request(system string, messages ...provider.Message) provider.Request {
	return provider.Request{
		Model:    p.Model,
		System:   system,
		Messages: messages,
		Sampling: p.Sampling,
		CoT:      p.CoT,
	}
}

var builtins = map[string]Preset{
	"sanitizer-conservative": {
		Model:    character.DefaultModel,
		Sampling: provider.Sampling{Temperature: 0.1, TopK: 10, TopP: 0.7, RepeatPenalty: 1.2, MaxTokens: 50000},
	},
	"sanitizer-balanced": {
		Model:    character.DefaultModel,
		Sampling: provider.Sampling{Temperature: 0.2, TopK: 20, TopP: 0.8, RepeatPenalty: 1.15, MaxTokens: 50000},
	},
	"sanitizer-aggressive": {
		Model:    character.DefaultModel,
		Sampling: provider.Sampling{Temperature: 0.3, TopK: 30, TopP: 0.85, RepeatPenalty: 1.1, MaxTokens: 50000},
	},
	"sanitizer-editor": {
		Model:    character.DefaultModel,
		Sampling: provider.Sampling{Temperature: 0.15, TopK: 15, TopP: 0.75, RepeatPenalty: 1.25, MaxTokens: 75000},
		CoT:      true,
	},
}

// Builtin returns the built-in preset called name.
func Builtin(name string) (*Preset, bool) {
	p, ok := builtins[name]
	if !ok {
		return nil, false
	}
	p.Name = name
	return &p, true
}

// Resolver looks up presets by name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*Preset, error)
}

// DirResolver serves built-in presets, overridden or extended by
// <dir>/<name>.json files.
type DirResolver struct {
	dir string
}

// NewDirResolver creates a resolver reading overrides from dir.
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{dir: dir}
}

// Resolve implements Resolver.
func (r *DirResolver) Resolve(_ context.Context, name string) (*Preset, error) {
	const op = "preset.Resolve"

	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, apperr.Validation(op, "invalid preset name %q", name)
	}

	if r.dir != "" {
		path := filepath.Join(r.dir, name+".json")
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var p Preset
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, apperr.Validation(op, "preset %q: %v", name, err)
			}
			p.Name = name
			if p.Model == "" {
				p.Model = character.DefaultModel
			}
			p.Sampling = p.Sampling.WithDefaults(provider.DefaultSampling())
			return &p, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, apperr.Persistence(op, fmt.Errorf("reading %s: %w", path, err))
		}
	}

	if p, ok := Builtin(name); ok {
		return p, nil
	}
	return nil, apperr.NotFound(op, "preset", name)
}

// Names lists the built-in presets and those found in the directory.
func (r *DirResolver) Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	if r.dir != "" {
		matches, _ := filepath.Glob(filepath.Join(r.dir, "*.json")) //nolint:errcheck // pattern is constant
		for _, m := range matches {
			name := strings.TrimSuffix(filepath.Base(m), ".json")
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names
}

// Apply overwrites the sheet's model, chain-of-thought flag and sampling
// with the preset's.
func Apply(sheet character.Sheet, p *Preset) character.Sheet {
	sheet.Model = p.Model
	sheet.CoT = p.CoT
	sheet.Sampling = p.Sampling
	return sheet
}
