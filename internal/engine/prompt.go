package engine

import (
	"strings"

	"github.com/guilhermegouw/storyloom/internal/character"
	"github.com/guilhermegouw/storyloom/internal/provider"
	"github.com/guilhermegouw/storyloom/internal/session"
)

// Context window accounting.
const (
	reservedTokens = 500
	charsPerToken  = 4
	historyWindow  = 6
)

// Degraded replies returned when a synchronous turn cannot be generated.
const (
	ChatFallback  = "I'm having trouble responding right now. Please try again."
	StoryFallback = "I'm having trouble generating the story continuation. Please try again."
)

func fallbackFor(t session.Type) string {
	if t == session.TypeStory {
		return StoryFallback
	}
	return ChatFallback
}

func storyOpeningPrompt(s *session.Session) string {
	lines := []string{"Generate an engaging story opening with the following elements:"}
	if s.Setting != "" {
		lines = append(lines, "Setting: "+s.Setting)
	}
	if s.Scenario != "" {
		lines = append(lines, "Scenario: "+s.Scenario)
	}
	lines = append(lines, "Characters:")
	for _, p := range s.Participants {
		lines = append(lines, "- "+p.Name+": "+p.Data.Description())
	}
	lines = append(lines, "\nWrite a compelling opening that introduces the setting and sets up the scenario. Keep it under 300 words.")
	return strings.Join(lines, "\n")
}

func storyContinuationPrompt(parts []string, input string) string {
	var b strings.Builder
	b.WriteString("Story so far:\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	if input != "" {
		b.WriteString("\n\nUser direction: ")
		b.WriteString(input)
	}
	b.WriteString("\n\nContinue the story.")
	return b.String()
}

func chatOpeningPrompt(s *session.Session, speaker session.Participant) string {
	lines := []string{"You are " + speaker.Name + " starting a conversation."}
	if s.Scenario != "" {
		lines = append(lines, "Topic/Scenario: "+s.Scenario)
	}
	if s.Setting != "" {
		lines = append(lines, "Setting: "+s.Setting)
	}
	if p := speaker.Data.Personality(); p != "" {
		lines = append(lines, "Your personality: "+p)
	}
	lines = append(lines, "Start the conversation with a greeting or opening statement (1-2 sentences):")
	return strings.Join(lines, "\n")
}

func singleChatPrompt(s *session.Session, speaker session.Participant, input string) string {
	var lines []string
	if s.Scenario != "" {
		lines = append(lines, "Scenario: "+s.Scenario)
	}
	lines = append(lines, "You are "+speaker.Name+" in a conversation.")
	if p := speaker.Data.Personality(); p != "" {
		lines = append(lines, "Your personality: "+p)
	}
	if input != "" {
		lines = append(lines, "User: "+input)
	}
	lines = append(lines, "\nRespond as "+speaker.Name+" in character:")
	return strings.Join(lines, "\n")
}

// singleChatHistory maps the last messages of the transcript to provider
// roles. System messages are not part of the history.
func singleChatHistory(msgs []session.Message) []provider.Message {
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Kind {
		case session.KindUser:
			out = append(out, provider.Message{Role: provider.RoleUser, Content: m.Content})
		case session.KindAI:
			out = append(out, provider.Message{Role: provider.RoleAssistant, Content: m.Content})
		}
	}
	return out
}

// multiChatHistory renders the last ai messages as "speaker: content".
func multiChatHistory(msgs []session.Message) []string {
	var lines []string
	for _, m := range msgs {
		if m.Kind == session.KindAI {
			lines = append(lines, m.Speaker+": "+m.Content)
		}
	}
	if len(lines) > historyWindow {
		lines = lines[len(lines)-historyWindow:]
	}
	return lines
}

func multiChatPrompt(s *session.Session, speaker session.Participant, history []string, opening bool, input string) string {
	lines := []string{"You are " + speaker.Name + " in a conversation."}
	if s.Scenario != "" {
		lines = append(lines, "Topic/Scenario: "+s.Scenario)
	}
	if s.Setting != "" {
		lines = append(lines, "Setting: "+s.Setting)
	}
	if p := speaker.Data.Personality(); p != "" {
		lines = append(lines, "Your personality: "+p)
	}

	var others []string
	for _, p := range s.Participants {
		if p.Name != speaker.Name {
			others = append(others, p.Name)
		}
	}
	if len(others) > 0 {
		lines = append(lines, "You are talking with: "+strings.Join(others, ", "))
	}

	if len(history) > 0 {
		lines = append(lines, "\nConversation so far:")
		lines = append(lines, history...)
	}
	if input != "" {
		lines = append(lines, "User: "+input)
	}

	if opening {
		lines = append(lines, "\nStart the conversation with a greeting or opening statement:")
	} else {
		lines = append(lines, "\nRespond naturally to continue the conversation:")
	}
	return strings.Join(lines, "\n")
}

// normalizeSpeaker rewrites a reply starting with "Name:" as "**Name:** text".
func normalizeSpeaker(name, text string) string {
	prefix := name + ":"
	if name == "" || !strings.HasPrefix(text, prefix) {
		return text
	}
	return "**" + name + ":** " + strings.TrimSpace(text[len(prefix):])
}

func estimateTokens(s string) int {
	return len(s) / charsPerToken
}

// fitOldest drops items from the front until the estimated size of the
// remaining items plus fixed fits in the budget.
func fitOldest[T any](items []T, size func(T) int, fixed, budget int) []T {
	total := fixed
	for _, it := range items {
		total += size(it)
	}
	for len(items) > 0 && total > budget {
		total -= size(items[0])
		items = items[1:]
	}
	return items
}

// buildRequest assembles the provider request for the next turn of s,
// spoken by speaker.
func buildRequest(s *session.Session, speaker session.Participant, input string) provider.Request {
	sheet := speaker.Data.WithDefaults()
	system := sheet.SystemPrompt(speaker.Name)
	budget := sheet.ContextLimit - reservedTokens
	fixed := estimateTokens(system)

	var messages []provider.Message
	switch {
	case s.Type == session.TypeStory:
		var prompt string
		if parts := s.AIContents(); len(parts) == 0 {
			prompt = storyOpeningPrompt(s)
		} else {
			fixed += estimateTokens(storyContinuationPrompt(nil, input))
			parts = fitOldest(parts, estimateTokens, fixed, budget)
			prompt = storyContinuationPrompt(parts, input)
		}
		messages = []provider.Message{{Role: provider.RoleUser, Content: prompt}}

	case s.IsMulti():
		opening := s.TurnCount() == 0
		history := multiChatHistory(s.Messages)
		fixed += estimateTokens(multiChatPrompt(s, speaker, nil, opening, input))
		history = fitOldest(history, estimateTokens, fixed, budget)
		messages = []provider.Message{{Role: provider.RoleUser, Content: multiChatPrompt(s, speaker, history, opening, input)}}

	default:
		prompt := singleChatPrompt(s, speaker, input)
		history := fitOldest(singleChatHistory(s.Messages), func(m provider.Message) int {
			return estimateTokens(m.Content)
		}, fixed+estimateTokens(prompt), budget)
		messages = append(history, provider.Message{Role: provider.RoleUser, Content: prompt})
	}

	return sheetRequest(sheet, system, messages)
}

func sheetRequest(sheet character.Sheet, system string, messages []provider.Message) provider.Request {
	return provider.Request{
		Model:    sheet.Model,
		System:   system,
		Messages: messages,
		Sampling: sheet.Sampling,
		CoT:      sheet.CoT,
	}
}
