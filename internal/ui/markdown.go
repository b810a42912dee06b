package ui

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	glamourstyles "github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
)

// MarkdownRenderer renders markdown for the terminal. One glamour
// renderer is built per wrap width and reused.
type MarkdownRenderer struct {
	profile termenv.Profile

	mu      sync.Mutex
	byWidth map[int]*glamour.TermRenderer
}

// NewMarkdownRenderer creates a renderer using the color profile of the
// environment.
func NewMarkdownRenderer() *MarkdownRenderer {
	return NewMarkdownRendererWithProfile(termenv.EnvColorProfile())
}

// NewMarkdownRendererWithProfile creates a renderer for a fixed profile.
func NewMarkdownRendererWithProfile(p termenv.Profile) *MarkdownRenderer {
	return &MarkdownRenderer{profile: p, byWidth: make(map[int]*glamour.TermRenderer)}
}

// Render renders content wrapped at width. On failure the plain content is
// returned along with the error.
func (m *MarkdownRenderer) Render(content string, width int) (string, error) {
	if content == "" {
		return "", nil
	}
	r, err := m.rendererFor(width)
	if err != nil {
		return content, err
	}
	out, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return out, nil
}

func (m *MarkdownRenderer) rendererFor(width int) (*glamour.TermRenderer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.byWidth[width]; ok {
		return r, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(buildStyle(CurrentTheme())),
		glamour.WithWordWrap(width),
		glamour.WithColorProfile(m.profile),
	)
	if err != nil {
		return nil, fmt.Errorf("building markdown renderer: %w", err)
	}
	m.byWidth[width] = r
	return r, nil
}

// buildStyle derives a glamour style from the theme. Transcripts are prose,
// so headings, emphasis and quotes matter more than code blocks.
func buildStyle(t *Theme) ansi.StyleConfig {
	style := glamourstyles.DarkStyleConfig
	hex := func(c color.Color) *string { return stringPtr(Hex(c)) }

	for _, h := range []*ansi.StyleBlock{&style.H1, &style.H2, &style.H3} {
		h.Prefix = ""
		h.Suffix = ""
	}
	style.H1.Color, style.H1.Bold = hex(t.Accent), boolPtr(true)
	style.H2.Color, style.H2.Bold = hex(t.Primary), boolPtr(true)
	style.H3.Color = hex(t.Secondary)

	style.Strong.Color, style.Strong.Bold = hex(t.Primary), boolPtr(true)
	style.Emph.Italic = boolPtr(true)
	style.BlockQuote.Color, style.BlockQuote.Italic = hex(t.FgMuted), boolPtr(true)
	style.HorizontalRule.Color = hex(t.FgSubtle)
	style.Code.Color = hex(t.Secondary)

	return style
}

func stringPtr(s string) *string { return &s }
func boolPtr(b bool) *bool       { return &b }
