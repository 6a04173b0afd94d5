// Package tui renders a live progress view for long sorts.
package tui

import (
	"fmt"
	"strings"

	"github.com/Dicklesworthstone/bigsort/internal/events"
	"github.com/Dicklesworthstone/bigsort/internal/output"
	"github.com/Dicklesworthstone/bigsort/internal/sorter"
	"github.com/Dicklesworthstone/bigsort/internal/util"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
)

const (
	padding  = 2
	maxWidth = 72
)

// EventMsg delivers a lifecycle event to the model.
type EventMsg events.Event

// Model is the progress view model.
type Model struct {
	title    string
	bar      progress.Model
	keys     KeyMap
	styles   output.Styles
	width    int
	fraction float64
	last     *sorter.Progress
	message  string
	done     bool
	failed   bool
	canceled bool
	cancel   func()
	feed     *Feed
}

// New creates a progress view titled with the input path that renders the
// events arriving on feed. cancel is called when the user asks to stop; it
// may be nil.
func New(title string, feed *Feed, styles output.Styles, color bool, cancel func()) Model {
	opts := []progress.Option{progress.WithWidth(maxWidth - padding*2)}
	if color {
		opts = append(opts, progress.WithDefaultGradient())
	} else {
		opts = append(opts, progress.WithColorProfile(termenv.Ascii))
	}
	return Model{
		title:  title,
		bar:    progress.New(opts...),
		keys:   DefaultKeyMap(),
		styles: styles,
		width:  maxWidth,
		cancel: cancel,
		feed:   feed,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd { return m.feed.wait() }

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = min(msg.Width, maxWidth)
		m.bar.Width = max(m.width-padding*2, 10)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Cancel) {
			m.canceled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case EventMsg:
		ev := events.Event(msg)
		if ev.Progress != nil {
			m.last = ev.Progress
		}
		if ev.Fraction > m.fraction {
			m.fraction = ev.Fraction
		}
		if ev.Message != "" {
			m.message = ev.Message
		}
		if ev.Terminal() {
			m.done = true
			m.failed = ev.Type == events.SortFailed
			if !m.failed {
				m.fraction = 1
			}
			return m, tea.Quit
		}
		return m, m.feed.wait()
	}
	return m, nil
}

// Fraction returns the completed share shown by the bar.
func (m Model) Fraction() float64 { return m.fraction }

// Canceled reports whether the user stopped the sort.
func (m Model) Canceled() bool { return m.canceled }

// View implements tea.Model
func (m Model) View() string {
	pad := strings.Repeat(" ", padding)
	var b strings.Builder
	b.WriteString("\n" + pad + m.styles.Title.Render(output.TruncatePath(m.title, m.width-padding)) + "\n\n")
	b.WriteString(pad + m.bar.ViewAs(m.fraction) + "\n\n")
	b.WriteString(pad + m.status() + "\n")
	if !m.done && !m.canceled {
		h := m.keys.Cancel.Help()
		b.WriteString("\n" + pad + m.styles.Muted.Render(h.Key+" "+h.Desc) + "\n")
	}
	return b.String()
}

func (m Model) status() string {
	switch {
	case m.canceled:
		return m.styles.Warning.Render("canceling...")
	case m.failed:
		return m.styles.Error.Render("failed: " + m.message)
	case m.done && m.last == nil:
		return m.styles.Success.Render("done")
	}
	if m.last == nil {
		return m.styles.Muted.Render("starting...")
	}
	return StatusLine(*m.last, m.styles)
}

// StatusLine summarizes a progress snapshot on one line.
func StatusLine(p sorter.Progress, styles output.Styles) string {
	parts := []string{styles.Key.Render(string(p.Stage))}
	switch p.Stage {
	case sorter.StageSplit:
		chunks := fmt.Sprintf("%d chunks", p.Chunks)
		if p.EstimatedChunks > 0 {
			chunks = fmt.Sprintf("%d/~%d chunks", p.Chunks, p.EstimatedChunks)
		}
		parts = append(parts, chunks, util.FormatBytes(p.Bytes)+" read")
	case sorter.StageMerge:
		parts = append(parts, fmt.Sprintf("%d/%d lines", p.Lines, p.TotalLines))
	case sorter.StageDone:
		parts = append(parts,
			output.CountStr(p.Chunks, "chunk", "chunks"),
			fmt.Sprintf("%d lines", p.Lines),
			util.FormatDuration(p.Elapsed))
		return styles.Success.Render(strings.Join(parts, " · "))
	}
	if p.Remaining > 0 {
		parts = append(parts, "eta "+util.FormatDuration(p.Remaining))
	}
	return strings.Join(parts, " · ")
}
