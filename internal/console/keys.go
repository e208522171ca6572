package console

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the console's key bindings.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	Connect     key.Binding
	Disconnect  key.Binding
	StartMirror key.Binding
	StopMirror  key.Binding
	Wireless    key.Binding
	Refresh     key.Binding

	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Connect: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "connect"),
	),
	Disconnect: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "disconnect"),
	),
	StartMirror: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mirror"),
	),
	StopMirror: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	Wireless: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "wireless"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k KeyMap) help() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Connect, k.Disconnect, k.StartMirror, k.StopMirror, k.Wireless, k.Refresh, k.Quit}
}
