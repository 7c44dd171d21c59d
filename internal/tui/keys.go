package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// KeyMap defines the key bindings of the log viewer.
type KeyMap struct {
	SwitchTab key.Binding
	Column1   key.Binding
	Column2   key.Binding
	Column3   key.Binding
	Column4   key.Binding
	Refresh   key.Binding
	Older     key.Binding
	Newer     key.Binding
	Dismiss   key.Binding
	Quit      key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	SwitchTab: key.NewBinding(
		key.WithKeys("tab", "shift+tab"),
		key.WithHelp("tab", "switch stream"),
	),
	Column1: key.NewBinding(key.WithKeys("1"), key.WithHelp("1-4", "sort by column")),
	Column2: key.NewBinding(key.WithKeys("2")),
	Column3: key.NewBinding(key.WithKeys("3")),
	Column4: key.NewBinding(key.WithKeys("4")),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Older: key.NewBinding(
		key.WithKeys("n", "pgdown"),
		key.WithHelp("n", "older"),
	),
	Newer: key.NewBinding(
		key.WithKeys("p", "pgup"),
		key.WithHelp("p", "newer"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "dismiss"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.SwitchTab, k.Column1, k.Refresh, k.Older, k.Newer, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Dismiss}}
}

// columnIndex maps a pressed column key to a zero-based column index.
func (k KeyMap) columnIndex(msg tea.KeyMsg) (int, bool) {
	for i, b := range []key.Binding{k.Column1, k.Column2, k.Column3, k.Column4} {
		if key.Matches(msg, b) {
			return i, true
		}
	}
	return 0, false
}
