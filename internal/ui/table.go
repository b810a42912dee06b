package ui

import (
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/rivo/uniseg"
)

// Truncate shortens s to width cells, ending with an ellipsis. Styled
// input keeps its escape sequences.
func Truncate(s string, width int) string {
	return ansi.Truncate(s, width, "…")
}

// PadRight pads plain text with spaces to width cells.
func PadRight(s string, width int) string {
	w := uniseg.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// Table prints rows in aligned columns. Cells are plain text; Style, when
// set, decorates a cell after padding.
type Table struct {
	Headers  []string
	Rows     [][]string
	MaxWidth map[int]int // Column index to max cells
	Style    func(col int, cell string) string
}

// Append adds a row.
func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	widths := make([]int, len(t.Headers))
	fit := func(col int, cell string) string {
		if maxW, ok := t.MaxWidth[col]; ok && uniseg.StringWidth(cell) > maxW {
			return Truncate(cell, maxW)
		}
		return cell
	}
	for i, h := range t.Headers {
		widths[i] = uniseg.StringWidth(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], uniseg.StringWidth(fit(i, cell)))
			}
		}
	}

	theme := CurrentTheme()
	var b strings.Builder
	for i, h := range t.Headers {
		b.WriteString(theme.Muted(PadRight(h, widths[i])))
		b.WriteString(separator(i, len(widths)))
	}
	for _, row := range t.Rows {
		for i := range widths {
			var cell string
			if i < len(row) {
				cell = fit(i, row[i])
			}
			padded := PadRight(cell, widths[i])
			if t.Style != nil && cell != "" {
				padded = strings.Replace(padded, cell, t.Style(i, cell), 1)
			}
			b.WriteString(padded)
			b.WriteString(separator(i, len(widths)))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func separator(col, n int) string {
	if col == n-1 {
		return "\n"
	}
	return "  "
}
