package preset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermegouw/storyloom/internal/apperr"
	"github.com/guilhermegouw/storyloom/internal/character"
	"github.com/guilhermegouw/storyloom/internal/provider"
)

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name      string
		temp      float64
		topK      int
		maxTokens int
		cot       bool
	}{
		{"sanitizer-conservative", 0.1, 10, 50000, false},
		{"sanitizer-balanced", 0.2, 20, 50000, false},
		{"sanitizer-aggressive", 0.3, 30, 50000, false},
		{"sanitizer-editor", 0.15, 15, 75000, true},
	}

	r := NewDirResolver("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Resolve(context.Background(), tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, p.Name)
			assert.Equal(t, character.DefaultModel, p.Model)
			assert.InDelta(t, tt.temp, p.Sampling.Temperature, 1e-9)
			assert.Equal(t, tt.topK, p.Sampling.TopK)
			assert.Equal(t, tt.maxTokens, p.Sampling.MaxTokens)
			assert.Equal(t, tt.cot, p.CoT)
		})
	}
}

func TestBuiltinIsCopied(t *testing.T) {
	p, ok := Builtin(DefaultSanitizer)
	require.True(t, ok)
	p.Model = "changed"

	again, ok := Builtin(DefaultSanitizer)
	require.True(t, ok)
	assert.Equal(t, character.DefaultModel, again.Model)
}

func TestDirOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sanitizer-balanced.json"),
		[]byte(`{"model": "qwen-14b", "sampling": {"temperature": 0.05}, "cot": true}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "creative.json"),
		[]byte(`{"sampling": {"temperature": 1.2, "max_tokens": 900}}`), 0o600))

	r := NewDirResolver(dir)
	ctx := context.Background()

	t.Run("file overrides builtin", func(t *testing.T) {
		p, err := r.Resolve(ctx, "sanitizer-balanced")
		require.NoError(t, err)
		assert.Equal(t, "qwen-14b", p.Model)
		assert.InDelta(t, 0.05, p.Sampling.Temperature, 1e-9)
		assert.True(t, p.CoT)
		assert.Equal(t, 40, p.Sampling.TopK, "missing fields take sampling defaults")
	})

	t.Run("file adds new preset", func(t *testing.T) {
		p, err := r.Resolve(ctx, "creative")
		require.NoError(t, err)
		assert.Equal(t, character.DefaultModel, p.Model)
		assert.Equal(t, 900, p.Sampling.MaxTokens)
	})

	t.Run("unknown preset is not found", func(t *testing.T) {
		_, err := r.Resolve(ctx, "missing")
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("names include files", func(t *testing.T) {
		assert.Contains(t, r.Names(), "creative")
		assert.Contains(t, r.Names(), "sanitizer-editor")
	})
}

func TestApply(t *testing.T) {
	sheet := character.Sheet{
		Name:     "Nova",
		Model:    "mistral-7b",
		Sampling: provider.DefaultSampling(),
		Lore:     character.Lore{{Key: "description", Value: "pilot"}},
	}
	p, _ := Builtin("sanitizer-editor")

	got := Apply(sheet, p)
	assert.Equal(t, character.DefaultModel, got.Model)
	assert.True(t, got.CoT)
	assert.Equal(t, 75000, got.Sampling.MaxTokens)
	assert.Equal(t, sheet.Lore, got.Lore)
	assert.Equal(t, "mistral-7b", sheet.Model, "original sheet is untouched")
}
