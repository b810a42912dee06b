package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"charm.land/fantasy"
	"github.com/charmbracelet/catwalk/pkg/catwalk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermegouw/storyloom/internal/config"
)

// mockModel implements fantasy.LanguageModel for testing.
type mockModel struct {
	generateFunc func(ctx context.Context, call fantasy.Call) (*fantasy.Response, error)
}

func (m *mockModel) Generate(ctx context.Context, call fantasy.Call) (*fantasy.Response, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, call)
	}
	return &fantasy.Response{}, nil
}

func (m *mockModel) Stream(_ context.Context, _ fantasy.Call) (fantasy.StreamResponse, error) {
	return func(yield func(fantasy.StreamPart) bool) {}, nil
}

func (m *mockModel) GenerateObject(_ context.Context, _ fantasy.ObjectCall) (*fantasy.ObjectResponse, error) {
	return &fantasy.ObjectResponse{}, nil
}

func (m *mockModel) StreamObject(_ context.Context, _ fantasy.ObjectCall) (fantasy.ObjectStreamResponse, error) {
	return func(yield func(fantasy.ObjectStreamPart) bool) {}, nil
}

func (m *mockModel) Provider() string { return "mock" }
func (m *mockModel) Model() string    { return "mock-model" }

var _ fantasy.LanguageModel = (*mockModel)(nil)

func TestStripThought(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Hello there.", "Hello there."},
		{"thought and say", "THOUGHT:\nI should greet.\n\nSAY:\nHello there.", "Hello there."},
		{"case insensitive", "thought: hmm\nsay: Hi!", "Hi!"},
		{"leading say only", "SAY: Welcome.", "Welcome."},
		{"thought without say kept", "Thought: this stays", "Thought: this stays"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripThought(tt.in))
		})
	}
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()

	t.Run("validation trims and rejects empty replies", func(t *testing.T) {
		g := Chain(GeneratorFunc(func(context.Context, Request) (string, error) {
			return "  \n ", nil
		}), WithValidation())

		_, err := g.Generate(ctx, Request{})
		require.ErrorIs(t, err, ErrEmptyResponse)

		g = Chain(GeneratorFunc(func(context.Context, Request) (string, error) {
			return "  text \n", nil
		}), WithValidation())
		out, err := g.Generate(ctx, Request{})
		require.NoError(t, err)
		assert.Equal(t, "text", out)
	})

	t.Run("timeout surfaces as ErrTimeout", func(t *testing.T) {
		g := Chain(GeneratorFunc(func(ctx context.Context, _ Request) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}), WithTimeout(20*time.Millisecond))

		_, err := g.Generate(ctx, Request{})
		require.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("chain of thought adds template and strips reasoning", func(t *testing.T) {
		var seen Request
		g := Chain(GeneratorFunc(func(_ context.Context, req Request) (string, error) {
			seen = req
			return "THOUGHT: plan\nSAY: Ahoy.", nil
		}), WithChainOfThought())

		out, err := g.Generate(ctx, Request{System: "You are Nova.", CoT: true})
		require.NoError(t, err)
		assert.Equal(t, "Ahoy.", out)
		assert.True(t, strings.HasPrefix(seen.System, "You are Nova."))
		assert.True(t, strings.HasSuffix(seen.System, CoTTemplate))
	})

	t.Run("chain of thought is inert when disabled", func(t *testing.T) {
		g := Chain(GeneratorFunc(func(_ context.Context, req Request) (string, error) {
			return req.System + "|THOUGHT: x SAY: y", nil
		}), WithChainOfThought())

		out, err := g.Generate(ctx, Request{System: "sys"})
		require.NoError(t, err)
		assert.Equal(t, "sys|THOUGHT: x SAY: y", out)
	})

	t.Run("rate limit with nil limiter passes through", func(t *testing.T) {
		assert.Nil(t, NewLimiter(0))
		g := Chain(GeneratorFunc(func(context.Context, Request) (string, error) {
			return "ok", nil
		}), WithRateLimit(nil))
		out, err := g.Generate(ctx, Request{})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	})

	t.Run("rate limit honours cancelled context", func(t *testing.T) {
		limiter := NewLimiter(1)
		require.NotNil(t, limiter)
		require.True(t, limiter.Allow())

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		g := Chain(GeneratorFunc(func(context.Context, Request) (string, error) {
			return "ok", nil
		}), WithRateLimit(limiter))
		_, err := g.Generate(cctx, Request{})
		require.Error(t, err)
	})

	t.Run("chain order puts first middleware outermost", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next Generator) Generator {
				return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
					order = append(order, name)
					return next.Generate(ctx, req)
				})
			}
		}
		g := Chain(GeneratorFunc(func(context.Context, Request) (string, error) {
			return "ok", nil
		}), mark("outer"), mark("inner"))

		_, err := g.Generate(ctx, Request{})
		require.NoError(t, err)
		assert.Equal(t, []string{"outer", "inner"}, order)
	})
}

func TestSamplingWithDefaults(t *testing.T) {
	got := Sampling{Temperature: 0.2, MaxTokens: 50000}.WithDefaults(DefaultSampling())
	assert.Equal(t, Sampling{Temperature: 0.2, TopK: 40, TopP: 0.9, RepeatPenalty: 1.1, MaxTokens: 50000}, got)
}

func TestFantasyGenerator(t *testing.T) {
	var seen fantasy.Call
	resolved := 0
	model := &mockModel{
		generateFunc: func(_ context.Context, call fantasy.Call) (*fantasy.Response, error) {
			seen = call
			return &fantasy.Response{
				Content: fantasy.ResponseContent{fantasy.TextContent{Text: "The ship drifted."}},
			}, nil
		},
	}
	g := &FantasyGenerator{
		resolve: func(_ context.Context, _ string) (fantasy.LanguageModel, error) {
			resolved++
			return model, nil
		},
		models: make(map[string]fantasy.LanguageModel),
	}

	req := Request{
		Model:  "default-model",
		System: "You are Nova.",
		Messages: []Message{
			{Role: RoleUser, Content: "Hi"},
			{Role: RoleAssistant, Content: "Hello"},
			{Role: RoleUser, Content: "Tell me a story"},
		},
		Sampling: DefaultSampling(),
	}

	out, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "The ship drifted.", out)

	require.Len(t, seen.Prompt, 4)
	assert.Equal(t, fantasy.MessageRoleSystem, seen.Prompt[0].Role)
	assert.Equal(t, fantasy.MessageRoleUser, seen.Prompt[1].Role)
	assert.Equal(t, fantasy.MessageRoleAssistant, seen.Prompt[2].Role)
	require.NotNil(t, seen.MaxOutputTokens)
	assert.Equal(t, int64(500), *seen.MaxOutputTokens)
	require.NotNil(t, seen.Temperature)
	assert.InDelta(t, 0.7, *seen.Temperature, 1e-9)
	require.NotNil(t, seen.TopK)
	assert.Equal(t, int64(40), *seen.TopK)

	_, err = g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved, "language model should be cached per model id")
}

func TestFantasyGeneratorErrors(t *testing.T) {
	g := &FantasyGenerator{
		resolve: func(_ context.Context, id string) (fantasy.LanguageModel, error) {
			return &mockModel{generateFunc: func(context.Context, fantasy.Call) (*fantasy.Response, error) {
				return nil, errors.New("connection refused")
			}}, nil
		},
		models: make(map[string]fantasy.LanguageModel),
	}

	_, err := g.Generate(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestOpenAIGenerator(t *testing.T) {
	var body map[string]any
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.Unmarshal(raw, &body) //nolint:errcheck // asserted below
		header = r.Header.Get("X-Client")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",`+ //nolint:errcheck // test server
			`"choices":[{"index":0,"message":{"role":"assistant","content":"Greetings, traveler."},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	g := NewOpenAIGenerator(server.URL, "key", map[string]string{"X-Client": "storyloom"})
	out, err := g.Generate(context.Background(), Request{
		Model:    "local-model",
		System:   "You are Nova.",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
		Sampling: DefaultSampling(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Greetings, traveler.", out)

	assert.Equal(t, "storyloom", header)
	assert.Equal(t, "local-model", body["model"])
	assert.EqualValues(t, 40, body["top_k"])
	assert.InDelta(t, 1.1, body["repeat_penalty"], 1e-9)
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestBuilder(t *testing.T) {
	t.Run("openai backend", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Generation = config.Generation{Provider: "local", Backend: config.BackendOpenAI}
		cfg.Providers["local"] = &config.ProviderConfig{ID: "local", Type: catwalk.TypeOpenAICompat, BaseURL: "http://127.0.0.1:1/v1"}

		g, err := NewBuilder(cfg, nil).Build()
		require.NoError(t, err)
		assert.NotNil(t, g)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Generation = config.Generation{Provider: "missing"}

		_, err := NewBuilder(cfg, nil).Build()
		require.Error(t, err)
	})

	t.Run("unsupported backend", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Generation = config.Generation{Provider: "local", Backend: "grpc"}
		cfg.Providers["local"] = &config.ProviderConfig{ID: "local", Type: catwalk.TypeOpenAICompat}

		_, err := NewBuilder(cfg, nil).Build()
		require.Error(t, err)
	})

	t.Run("unsupported provider type", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Generation = config.Generation{Provider: "aws", Backend: config.BackendFantasy}
		cfg.Providers["aws"] = &config.ProviderConfig{ID: "aws", Type: catwalk.TypeBedrock}

		_, err := NewBuilder(cfg, nil).Build()
		require.Error(t, err)
	})
}
