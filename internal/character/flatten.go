package character

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// priorityFields are emitted first, in this order.
var priorityFields = []string{
	"name", "description", "personality", "background", "appearance",
	"speaking_style", "goals", "motivations", "features", "powers",
	"skills", "weaknesses", "bodyType", "skinColor",
}

// Flatten renders lore as the system prompt of the character called name.
func Flatten(name string, lore Lore) string {
	var lines []string
	seen := make(map[string]bool, len(priorityFields))

	for _, key := range priorityFields {
		v, ok := lore.Get(key)
		if !ok {
			continue
		}
		seen[key] = true
		if line, ok := formatField(key, v); ok {
			lines = append(lines, line)
		}
	}
	for _, f := range lore {
		if seen[f.Key] || f.Key == "name" {
			continue
		}
		if line, ok := formatField(f.Key, f.Value); ok {
			lines = append(lines, line)
		}
	}

	if len(lines) == 0 {
		return fmt.Sprintf("You are %s.", name)
	}
	return fmt.Sprintf("You are %s. Here is your complete character data:\n\n=== CHARACTER PROFILE ===\n", name) +
		strings.Join(lines, "\n") +
		"\n=== END CHARACTER PROFILE ===\n\nEmbody this character completely. Use all the information above to inform your responses, personality, and behavior."
}

func formatField(key string, v any) (string, bool) {
	var value string
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return "", false
		}
		value = val
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			if s := scalarString(item); strings.TrimSpace(s) != "" {
				items = append(items, s)
			}
		}
		value = strings.Join(items, ", ")
	case Lore:
		items := make([]string, 0, len(val))
		for _, f := range val {
			if s := scalarString(f.Value); strings.TrimSpace(s) != "" && s != "0" && s != "false" {
				items = append(items, f.Key+": "+s)
			}
		}
		value = strings.Join(items, "; ")
	default:
		// Numbers and booleans are not part of the profile.
		return "", false
	}
	if value == "" {
		return "", false
	}
	return formatKey(key) + ": " + value, true
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, scalarString(item))
		}
		return strings.Join(parts, ", ")
	case Lore:
		parts := make([]string, 0, len(val))
		for _, f := range val {
			parts = append(parts, f.Key+": "+scalarString(f.Value))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(val)
	}
}

// formatKey turns "speaking_style" into "Speaking Style" and "skinColor"
// into "Skin Color".
func formatKey(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	key = strings.ReplaceAll(key, "Color", " Color")
	key = strings.ReplaceAll(key, "Type", " Type")

	var b strings.Builder
	prevLetter := false
	for _, r := range key {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}
