package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows m on w until a terminal event arrives, the user cancels, or ctx
// is done. It returns the final model.
func Run(ctx context.Context, w io.Writer, m Model) (Model, error) {
	p := tea.NewProgram(m, tea.WithOutput(w), tea.WithoutSignalHandler())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-stop:
		}
	}()

	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		m = fm
	}
	return m, err
}
