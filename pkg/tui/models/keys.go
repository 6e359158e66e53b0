package models

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/go-go-golems/dbuddy/pkg/tui/widgets"
)

// KeyMap holds the bindings of the browse and thread views. Pickers, the
// filter line and the detail view use plain key strings.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding

	Details    key.Binding
	Filter     key.Binding
	ClearFilt  key.Binding
	Group      key.Binding
	Thread     key.Binding
	Back       key.Binding
	CycleMode  key.Binding
	Follow     key.Binding
	Relative   key.Binding
	Clear      key.Binding
	ReplayHint key.Binding

	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	PageUp:   key.NewBinding(key.WithKeys("ctrl+u", "pgup"), key.WithHelp("C-u", "page up")),
	PageDown: key.NewBinding(key.WithKeys("ctrl+d", "pgdown"), key.WithHelp("C-d", "page down")),
	Home:     key.NewBinding(key.WithKeys("home"), key.WithHelp("home", "top")),
	End:      key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),

	Details:    key.NewBinding(key.WithKeys("enter", " ", "s"), key.WithHelp("s", "details")),
	Filter:     key.NewBinding(key.WithKeys("/", "f"), key.WithHelp("/", "filter")),
	ClearFilt:  key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("C-l", "clear filter")),
	Group:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "group")),
	Thread:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "thread")),
	Back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	CycleMode:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "bus")),
	Follow:     key.NewBinding(key.WithKeys("F"), key.WithHelp("F", "follow")),
	Relative:   key.NewBinding(key.WithKeys("T"), key.WithHelp("T", "rel. time")),
	Clear:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
	ReplayHint: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "dbus-send")),

	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func keybinds(bs ...key.Binding) []widgets.Keybind {
	out := make([]widgets.Keybind, 0, len(bs))
	for _, b := range bs {
		h := b.Help()
		out = append(out, widgets.Keybind{Key: h.Key, Desc: h.Desc})
	}
	return out
}
