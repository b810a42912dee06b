package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermegouw/storyloom/internal/character"
	"github.com/guilhermegouw/storyloom/internal/provider"
	"github.com/guilhermegouw/storyloom/internal/session"
)

func participant(name, description, personality string) session.Participant {
	var lore character.Lore
	if description != "" {
		lore = append(lore, character.Field{Key: "description", Value: description})
	}
	if personality != "" {
		lore = append(lore, character.Field{Key: "personality", Value: personality})
	}
	return session.Participant{ID: strings.ToLower(name), Name: name, Data: character.Sheet{Name: name, Lore: lore}}
}

func TestStoryOpeningPrompt(t *testing.T) {
	s := &session.Session{
		Type:     session.TypeStory,
		Scenario: "A heist",
		Participants: []session.Participant{
			participant("Nova", "A pilot", ""),
			participant("Rex", "", ""),
		},
	}

	want := "Generate an engaging story opening with the following elements:\n" +
		"Scenario: A heist\n" +
		"Characters:\n" +
		"- Nova: A pilot\n" +
		"- Rex: No description\n" +
		"\nWrite a compelling opening that introduces the setting and sets up the scenario. Keep it under 300 words."
	assert.Equal(t, want, storyOpeningPrompt(s))
}

func TestStoryContinuationPrompt(t *testing.T) {
	assert.Equal(t, "Story so far:\nA\n\nB\n\nContinue the story.", storyContinuationPrompt([]string{"A", "B"}, ""))
	assert.Equal(t, "Story so far:\nA\n\nUser direction: go north\n\nContinue the story.", storyContinuationPrompt([]string{"A"}, "go north"))
}

func TestChatPrompts(t *testing.T) {
	nova := participant("Nova", "A pilot", "Curious")
	s := &session.Session{Type: session.TypeChat, Scenario: "A bar", Setting: "Mars", Participants: []session.Participant{nova}}

	assert.Equal(t, "You are Nova starting a conversation.\nTopic/Scenario: A bar\nSetting: Mars\nYour personality: Curious\n"+
		"Start the conversation with a greeting or opening statement (1-2 sentences):", chatOpeningPrompt(s, nova))

	assert.Equal(t, "Scenario: A bar\nYou are Nova in a conversation.\nYour personality: Curious\nUser: Hello\n\nRespond as Nova in character:",
		singleChatPrompt(s, nova, "Hello"))

	s.Scenario = ""
	assert.Equal(t, "You are Nova in a conversation.\nYour personality: Curious\n\nRespond as Nova in character:",
		singleChatPrompt(s, nova, ""))
}

func TestSingleChatHistory(t *testing.T) {
	var msgs []session.Message
	msgs = append(msgs, session.Message{Kind: session.KindSystem, Content: "greeting"})
	for i := 0; i < 4; i++ {
		msgs = append(msgs,
			session.Message{Kind: session.KindUser, Content: "q"},
			session.Message{Kind: session.KindAI, Content: "a"},
		)
	}

	hist := singleChatHistory(msgs)
	require.Len(t, hist, 6)
	assert.Equal(t, provider.RoleUser, hist[0].Role)
	assert.Equal(t, provider.RoleAssistant, hist[5].Role)

	hist = singleChatHistory(msgs[:3])
	require.Len(t, hist, 2, "system messages are skipped")
}

func TestMultiChatHistoryWindow(t *testing.T) {
	var msgs []session.Message
	for i := 0; i < 8; i++ {
		msgs = append(msgs, session.Message{Kind: session.KindAI, Speaker: "Nova", Content: string(rune('a' + i))})
	}
	lines := multiChatHistory(msgs)
	require.Len(t, lines, 6)
	assert.Equal(t, "Nova: c", lines[0])
	assert.Equal(t, "Nova: h", lines[5])
}

func TestNormalizeSpeaker(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"prefixed", "Nova: Hello there", "**Nova:** Hello there"},
		{"no prefix", "Hello there", "Hello there"},
		{"already bold", "**Nova:** Hi", "**Nova:** Hi"},
		{"other speaker", "Rex: Hi", "Rex: Hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeSpeaker("Nova", tt.text))
		})
	}
}

func TestBuildRequestTrimsHistory(t *testing.T) {
	nova := participant("Nova", "", "")
	nova.Data.ContextLimit = 600 // 100 tokens after the reserve

	long := strings.Repeat("x", 160) // 40 tokens
	s := &session.Session{Type: session.TypeStory, Participants: []session.Participant{nova}}
	for _, c := range []string{"first", "second", "third"} {
		s.Messages = append(s.Messages, session.Message{Kind: session.KindAI, Content: c + long})
	}

	req := buildRequest(s, nova, "")
	require.Len(t, req.Messages, 1)
	prompt := req.Messages[0].Content
	assert.NotContains(t, prompt, "first", "oldest parts are dropped first")
	assert.Contains(t, prompt, "third")
	assert.Equal(t, "You are Nova.", req.System)
	assert.Equal(t, character.DefaultModel, req.Model)
	assert.Equal(t, provider.DefaultSampling(), req.Sampling)
}

func TestBuildRequestSingleChat(t *testing.T) {
	nova := participant("Nova", "", "")
	s := &session.Session{
		Type:         session.TypeChat,
		ChatMode:     session.ModeSingle,
		Participants: []session.Participant{nova},
		Messages: []session.Message{
			{Kind: session.KindSystem, Content: "Hi, I'm Nova."},
			{Kind: session.KindUser, Content: "Hello"},
			{Kind: session.KindAI, Content: "Welcome aboard."},
		},
	}

	req := buildRequest(s, nova, "Where to?")
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "Hello", req.Messages[0].Content)
	assert.Equal(t, "Welcome aboard.", req.Messages[1].Content)
	assert.True(t, strings.HasSuffix(req.Messages[2].Content, "User: Where to?\n\nRespond as Nova in character:"))
}

func TestFallbackFor(t *testing.T) {
	assert.Equal(t, StoryFallback, fallbackFor(session.TypeStory))
	assert.Equal(t, ChatFallback, fallbackFor(session.TypeChat))
}
