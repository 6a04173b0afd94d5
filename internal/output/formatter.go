// Package output renders command results for people or for machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Dicklesworthstone/bigsort/internal/util"
)

// Formatter writes either styled text or JSON to one writer.
type Formatter struct {
	writer io.Writer
	json   bool
	color  bool
	width  int
	styles Styles
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithJSON switches the formatter to JSON output.
func WithJSON(enabled bool) Option {
	return func(f *Formatter) { f.json = enabled }
}

// WithColor forces color on or off instead of detecting it.
func WithColor(enabled bool) Option {
	return func(f *Formatter) { f.color = enabled }
}

// WithWidth overrides the detected terminal width.
func WithWidth(width int) Option {
	return func(f *Formatter) {
		if width > 0 {
			f.width = width
		}
	}
}

// New creates a formatter for w. Color and width are detected from w unless
// overridden.
func New(w io.Writer, opts ...Option) *Formatter {
	f := &Formatter{
		writer: w,
		color:  ColorEnabled(w, false),
		width:  Width(w),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.styles = NewStyles(w, f.color && !f.json)
	return f
}

// Writer returns the underlying writer.
func (f *Formatter) Writer() io.Writer { return f.writer }

// IsJSON reports whether the formatter emits JSON.
func (f *Formatter) IsJSON() bool { return f.json }

// Width returns the usable column count.
func (f *Formatter) Width() int { return f.width }

// Styles returns the formatter's styles.
func (f *Formatter) Styles() Styles { return f.styles }

// JSON writes v as indented JSON.
func (f *Formatter) JSON(v any) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result writes v as JSON in JSON mode, and otherwise calls text.
func (f *Formatter) Result(v any, text func() error) error {
	if f.json {
		return f.JSON(v)
	}
	return text()
}

// Title prints a bold heading.
func (f *Formatter) Title(format string, args ...any) {
	fmt.Fprintln(f.writer, f.styles.Title.Render(fmt.Sprintf(format, args...)))
}

// Success prints a line marked as a success.
func (f *Formatter) Success(format string, args ...any) {
	fmt.Fprintln(f.writer, f.styles.Success.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warning prints a line marked as a warning.
func (f *Formatter) Warning(format string, args ...any) {
	fmt.Fprintln(f.writer, f.styles.Warning.Render("! "+fmt.Sprintf(format, args...)))
}

// Error prints a line marked as an error.
func (f *Formatter) Error(format string, args ...any) {
	fmt.Fprintln(f.writer, f.styles.Error.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Info prints a muted informational line.
func (f *Formatter) Info(format string, args ...any) {
	fmt.Fprintln(f.writer, f.styles.Muted.Render(fmt.Sprintf(format, args...)))
}

// KV is one labelled value for KeyValues.
type KV struct {
	Key   string
	Value string
}

// KeyValues prints aligned "key  value" lines. Values longer than the
// remaining width are truncated.
func (f *Formatter) KeyValues(pairs ...KV) {
	keyWidth := 0
	for _, p := range pairs {
		if w := displayWidth(p.Key); w > keyWidth {
			keyWidth = w
		}
	}
	room := f.width - keyWidth - 4
	for _, p := range pairs {
		value := p.Value
		if room > 0 {
			value = util.Truncate(value, room)
		}
		fmt.Fprintf(f.writer, "  %s  %s\n",
			f.styles.Key.Render(util.PadRight(p.Key, keyWidth)),
			f.styles.Value.Render(value))
	}
}
