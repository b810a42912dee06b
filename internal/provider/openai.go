package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/sjson"
)

// OpenAIGenerator generates through any OpenAI-compatible chat endpoint.
// top_k and repeat_penalty are sent as extra body fields, which LM Studio
// and llama.cpp servers honour.
type OpenAIGenerator struct {
	client *openai.Client
}

// NewOpenAIGenerator creates a generator for the endpoint at baseURL.
func NewOpenAIGenerator(baseURL, apiKey string, headers map[string]string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{
		Transport: &extraBodyTransport{base: http.DefaultTransport, headers: headers},
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg)}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	s := req.Sampling
	extra := map[string]any{}
	if s.TopK > 0 {
		extra["top_k"] = s.TopK
	}
	if s.RepeatPenalty > 0 {
		extra["repeat_penalty"] = s.RepeatPenalty
	}
	ctx = context.WithValue(ctx, extraBodyKey{}, extra)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: float32(s.Temperature),
		TopP:        float32(s.TopP),
		MaxTokens:   s.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("calling model %q: %w", req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

type extraBodyKey struct{}

// extraBodyTransport merges per-request extra fields into the JSON body
// and sets configured headers.
type extraBodyTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *extraBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqCopy := req.Clone(req.Context())
	for key, value := range t.headers {
		reqCopy.Header.Set(key, value)
	}

	extra, _ := req.Context().Value(extraBodyKey{}).(map[string]any)
	if len(extra) == 0 || req.Body == nil {
		return t.base.RoundTrip(reqCopy)
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close() //nolint:errcheck // body fully read
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	for key, value := range extra {
		body, err = sjson.SetBytes(body, key, value)
		if err != nil {
			return nil, fmt.Errorf("setting body field %q: %w", key, err)
		}
	}

	reqCopy.Body = io.NopCloser(bytes.NewReader(body))
	reqCopy.ContentLength = int64(len(body))
	reqCopy.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return t.base.RoundTrip(reqCopy)
}
