// Package character resolves character sheets and renders their lore into
// system prompts.
package character

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/provider"
)

// Sheet defaults.
const (
	DefaultModel        = "default-model"
	DefaultContextLimit = 4096
)

// examplePrefix marks ids that live in the examples subdirectory.
const examplePrefix = "example_"

// Sheet is a resolved character: its lore and generation settings.
type Sheet struct {
	Name         string            `json:"name,omitempty" yaml:"name"`
	Model        string            `json:"model,omitempty" yaml:"model"`
	Sampling     provider.Sampling `json:"sampling" yaml:"sampling"`
	CoT          bool              `json:"cot,omitempty" yaml:"cot"`
	ContextLimit int               `json:"context_limit,omitempty" yaml:"context_limit"`
	Lore         Lore              `json:"lore,omitempty" yaml:"lore"`
}

// WithDefaults returns a copy with empty settings filled in.
func (s Sheet) WithDefaults() Sheet {
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.ContextLimit <= 0 {
		s.ContextLimit = DefaultContextLimit
	}
	s.Sampling = s.Sampling.WithDefaults(provider.DefaultSampling())
	return s
}

// SystemPrompt returns the flattened lore for the character called name.
func (s Sheet) SystemPrompt(name string) string {
	return Flatten(name, s.Lore)
}

// Description returns the lore description, or "No description".
func (s Sheet) Description() string {
	if v, ok := s.Lore.Get("description"); ok {
		if d, ok := v.(string); ok {
			return d
		}
	}
	return "No description"
}

// Personality returns the lore personality, if any.
func (s Sheet) Personality() string {
	return s.Lore.String("personality")
}

// Resolver looks up character sheets by id.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*Sheet, error)
}

// DirResolver reads sheets from <dir>/<id>.json, .yaml or .yml. Ids with
// the "example_" prefix are read from <dir>/examples.
type DirResolver struct {
	dir string
}

// NewDirResolver creates a resolver rooted at dir.
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{dir: dir}
}

// Resolve implements Resolver.
func (r *DirResolver) Resolve(_ context.Context, id string) (*Sheet, error) {
	const op = "character.Resolve"

	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return nil, apperr.Validation(op, "invalid character id %q", id)
	}

	dir, name := r.dir, id
	if strings.HasPrefix(id, examplePrefix) {
		dir, name = filepath.Join(r.dir, "examples"), strings.TrimPrefix(id, examplePrefix)
	}

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, apperr.Persistence(op, fmt.Errorf("reading %s: %w", path, err))
		}

		sheet, err := Decode(data, ext)
		if err != nil {
			return nil, apperr.Validation(op, "character %q: %v", id, err)
		}
		if sheet.Name == "" {
			sheet.Name = sheet.Lore.String("name")
		}
		if sheet.Name == "" {
			sheet.Name = name
		}
		return sheet, nil
	}

	return nil, apperr.NotFound(op, "character", id)
}

// Decode parses a sheet in the format named by ext and applies defaults.
func Decode(data []byte, ext string) (*Sheet, error) {
	var sheet Sheet
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &sheet); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &sheet); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	}
	sheet = sheet.WithDefaults()
	return &sheet, nil
}
