package util

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

// Truncate shortens s to at most n display columns, ending with "..." when
// anything was cut. Wide runes count as two columns.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= n {
		return s
	}
	if n <= 3 {
		return runewidth.Truncate(s, n, "")
	}
	return runewidth.Truncate(s, n, "...")
}

// PadRight pads s with spaces to n display columns.
func PadRight(s string, n int) string {
	return runewidth.FillRight(s, n)
}

// SanitizeFilename makes a string safe for use as a filename.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		"%", "_",
		" ", "_",
	)
	safe := replacer.Replace(strings.TrimSpace(name))
	safe = strings.TrimLeft(safe, ".")

	if len(safe) > 100 {
		for i := 100; i >= 0; i-- {
			if utf8.RuneStart(safe[i]) {
				return safe[:i]
			}
		}
		return safe[:100]
	}
	return safe
}

// FormatBytes formats bytes in IEC units (e.g., "1.5 MiB").
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// FormatDuration rounds d for display: milliseconds below a second, tenths
// of a second below a minute, whole seconds above.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// FormatRate formats a throughput of n bytes over d.
func FormatRate(n int64, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	perSec := float64(n) / d.Seconds()
	return fmt.Sprintf("%s/s", humanize.IBytes(uint64(perSec)))
}
