// Package ui renders CLI output: theme colors, status badges, aligned
// tables and markdown transcripts.
package ui

import (
	"image/color"

	"charm.land/lipgloss/v2"
	"github.com/lucasb-eyer/go-colorful"
)

// Theme holds the CLI palette.
type Theme struct {
	Name string

	Primary   color.Color
	Secondary color.Color
	Accent    color.Color

	FgBase   color.Color
	FgMuted  color.Color
	FgSubtle color.Color

	Success color.Color
	Error   color.Color
	Warning color.Color
	Info    color.Color
}

// NewDefaultTheme creates the dark theme.
func NewDefaultTheme() *Theme {
	return &Theme{
		Name: "default",

		Primary:   ParseHex("#61afef"), // Soft blue
		Secondary: ParseHex("#56b6c2"), // Cyan
		Accent:    ParseHex("#c678dd"), // Purple

		FgBase:   ParseHex("#abb2bf"),
		FgMuted:  ParseHex("#7f848e"),
		FgSubtle: ParseHex("#5c6370"),

		Success: ParseHex("#98c379"),
		Error:   ParseHex("#e06c75"),
		Warning: ParseHex("#e5c07b"),
		Info:    ParseHex("#61afef"),
	}
}

var current = NewDefaultTheme()

// CurrentTheme returns the active theme.
func CurrentTheme() *Theme {
	return current
}

// ParseHex parses "#rrggbb". Invalid input yields black.
func ParseHex(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}
	}
	return c
}

// Hex formats c as "#rrggbb".
func Hex(c color.Color) string {
	cf, _ := colorful.MakeColor(c)
	return cf.Hex()
}

// Badge renders label in bold with the given color.
func (t *Theme) Badge(label string, c color.Color) string {
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(label)
}

// Status renders a session status with its color.
func (t *Theme) Status(status string) string {
	c := t.FgMuted
	switch status {
	case "active":
		c = t.Info
	case "paused":
		c = t.Warning
	case "completed":
		c = t.Success
	case "failed":
		c = t.Error
	}
	return t.Badge(status, c)
}

// Title renders a heading line.
func (t *Theme) Title(s string) string {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true).Render(s)
}

// Muted renders secondary text.
func (t *Theme) Muted(s string) string {
	return lipgloss.NewStyle().Foreground(t.FgMuted).Render(s)
}

// Speaker renders a character name.
func (t *Theme) Speaker(s string) string {
	return lipgloss.NewStyle().Foreground(t.Primary).Bold(true).Render(s)
}

// ErrorLine renders an error message with its label.
func (t *Theme) ErrorLine(label, msg string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Foreground(t.Error).Bold(true).Padding(0, 1, 0, 0).Render(label),
		msg,
	)
}

// Warn renders a warning message.
func (t *Theme) Warn(msg string) string {
	return lipgloss.NewStyle().Foreground(t.Warning).Render(msg)
}
