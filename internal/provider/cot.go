package provider

import (
	"regexp"
	"strings"
)

// CoTTemplate is appended to the system prompt of chain-of-thought models.
const CoTTemplate = "\n\n---\nWhen you answer, use EXACTLY this template:\n\nTHOUGHT:\n<your private reasoning here>\n\nSAY:\n<what your character says aloud>"

var (
	thoughtBlock = regexp.MustCompile(`(?is)thought:.*?say:\s*`)
	sayPrefix    = regexp.MustCompile(`(?i)^say:\s*`)
)

// StripThought removes THOUGHT sections from a chain-of-thought reply and
// keeps what the character says.
func StripThought(text string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "thought:") && strings.Contains(lower, "say:") {
		text = thoughtBlock.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(sayPrefix.ReplaceAllString(text, ""))
}
