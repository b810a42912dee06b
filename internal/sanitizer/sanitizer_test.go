package sanitizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermegouw/storyloom/internal/preset"
	"github.com/guilhermegouw/storyloom/internal/provider"
)

func TestPrompt(t *testing.T) {
	p := Prompt("Once upon a time.")
	assert.True(t, strings.HasPrefix(p, "You are a careful text sanitizer. Your job is to clean the following story by:\n"))
	assert.Contains(t, p, "- DO NOT rewrite or improve the story - only remove problematic parts\n")
	assert.True(t, strings.HasSuffix(p, "Return only the cleaned story with problems removed.\n\n===\nOnce upon a time.\n==="))
}

func TestClean(t *testing.T) {
	p, ok := preset.Builtin("sanitizer-editor")
	require.True(t, ok)

	var seen provider.Request
	s := New(provider.GeneratorFunc(func(_ context.Context, req provider.Request) (string, error) {
		seen = req
		return "Once upon a time.", nil
	}), nil)

	res := s.Clean(context.Background(), "Once upon a time. Once upon a time.", p)
	require.NoError(t, res.Err)
	assert.True(t, res.Applied)
	assert.Equal(t, "Once upon a time.", res.Text)

	assert.Equal(t, SystemPrompt, seen.System)
	require.Len(t, seen.Messages, 1)
	assert.Equal(t, provider.RoleUser, seen.Messages[0].Role)
	assert.Contains(t, seen.Messages[0].Content, "===\nOnce upon a time. Once upon a time.\n===")
	assert.Equal(t, p.Model, seen.Model)
	assert.Equal(t, 75000, seen.Sampling.MaxTokens)
	assert.True(t, seen.CoT)
}

func TestCleanFailureKeepsOriginal(t *testing.T) {
	p, _ := preset.Builtin(preset.DefaultSanitizer)
	story := "  Part one.\n\nPart two.  \n"

	boom := errors.New("connection refused")
	s := New(provider.GeneratorFunc(func(context.Context, provider.Request) (string, error) {
		return "", boom
	}), nil)

	res := s.Clean(context.Background(), story, p)
	assert.False(t, res.Applied)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, story, res.Text)
}

func TestCleanBlankReplyKeepsOriginal(t *testing.T) {
	p, _ := preset.Builtin(preset.DefaultSanitizer)
	story := "Part one.\n\nPart two."

	for _, reply := range []string{"", "  \n\t "} {
		s := New(provider.GeneratorFunc(func(context.Context, provider.Request) (string, error) {
			return reply, nil
		}), nil)

		res := s.Clean(context.Background(), story, p)
		assert.False(t, res.Applied, "reply %q", reply)
		assert.ErrorIs(t, res.Err, provider.ErrEmptyResponse)
		assert.Equal(t, story, res.Text)
	}
}

func TestCleanTrimsReply(t *testing.T) {
	p, _ := preset.Builtin(preset.DefaultSanitizer)
	s := New(provider.GeneratorFunc(func(context.Context, provider.Request) (string, error) {
		return "\n  The cleaned story.  \n", nil
	}), nil)

	res := s.Clean(context.Background(), "The story. The story.", p)
	assert.True(t, res.Applied)
	assert.Equal(t, "The cleaned story.", res.Text)
}
