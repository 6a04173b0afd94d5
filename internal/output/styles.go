package output

import (
	"io"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used for human-readable output.
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Key     lipgloss.Style
	Value   lipgloss.Style
}

// NewStyles builds styles bound to a renderer for w. With color disabled the
// renderer uses the ASCII profile, so every style renders as plain text.
func NewStyles(w io.Writer, color bool) Styles {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: r.NewStyle().Foreground(lipgloss.Color("42")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("245")),
		Key:     r.NewStyle().Foreground(lipgloss.Color("39")),
		Value:   r.NewStyle(),
	}
}

// TruncatePath fits path into width columns. The file name is kept whole
// when it fits and the directory part is cut with an ellipsis.
func TruncatePath(path string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(path) <= width {
		return path
	}
	dir, base := filepath.Split(path)
	baseWidth := runewidth.StringWidth(base)
	if dir == "" || baseWidth+2 > width {
		return truncate.StringWithTail(path, uint(width), "…")
	}
	return truncate.StringWithTail(dir, uint(width-baseWidth), "…") + base
}
