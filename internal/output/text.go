package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Dicklesworthstone/bigsort/internal/util"
	"github.com/mattn/go-runewidth"
)

// Textln outputs plain text with a newline to the formatter's writer
func (f *Formatter) Textln(format string, args ...any) {
	fmt.Fprintf(f.writer, format+"\n", args...)
}

// Line outputs a blank line
func (f *Formatter) Line() {
	fmt.Fprintln(f.writer)
}

// Printf writes formatted text to the formatter's writer
func (f *Formatter) Printf(format string, v ...any) {
	fmt.Fprintf(f.writer, format, v...)
}

func displayWidth(s string) int { return runewidth.StringWidth(s) }

// Table outputs tabular data in text format. Column widths are measured in
// display columns so wide runes stay aligned.
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	widths  []int
	header  func(string) string
}

// NewTable creates a new table with headers
func NewTable(w io.Writer, headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = displayWidth(h)
	}
	return &Table{
		writer:  w,
		headers: headers,
		widths:  widths,
		header:  func(s string) string { return s },
	}
}

// Table creates a table whose header row uses the formatter's title style.
func (f *Formatter) Table(headers ...string) *Table {
	t := NewTable(f.writer, headers...)
	t.header = func(s string) string { return f.styles.Title.Render(s) }
	return t
}

// AddRow adds a row to the table. Missing cells render empty; extra cells
// are dropped.
func (t *Table) AddRow(cols ...string) {
	row := make([]string, len(t.headers))
	copy(row, cols)
	for i, c := range row {
		if w := displayWidth(c); w > t.widths[i] {
			t.widths[i] = w
		}
	}
	t.rows = append(t.rows, row)
}

// Render outputs the table
func (t *Table) Render() {
	t.renderRow(t.headers, t.header)

	seps := make([]string, len(t.widths))
	for i, w := range t.widths {
		seps[i] = strings.Repeat("-", w)
	}
	t.renderRow(seps, nil)

	for _, row := range t.rows {
		t.renderRow(row, nil)
	}
}

func (t *Table) renderRow(cells []string, style func(string) string) {
	var b strings.Builder
	for i, c := range cells {
		b.WriteString("  ")
		cell := c
		if i < len(cells)-1 {
			cell = util.PadRight(c, t.widths[i])
		}
		if style != nil {
			cell = style(cell)
		}
		b.WriteString(cell)
	}
	fmt.Fprintln(t.writer, b.String())
}

// Pluralize returns singular or plural form based on count
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// CountStr returns "N item(s)" string
func CountStr(count int, singular, plural string) string {
	return fmt.Sprintf("%d %s", count, Pluralize(count, singular, plural))
}
