package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the progress view keybindings.
type KeyMap struct {
	Cancel key.Binding
}

// DefaultKeyMap returns the bindings used by the progress view.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Cancel: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "cancel")),
	}
}
