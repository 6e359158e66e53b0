package models

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/dbuddy/pkg/tui/styles"
)

// PickerModel is a small vertical option list.
type PickerModel struct {
	title   string
	options []string
	cursor  int
}

func NewPickerModel(title string, options []string) PickerModel {
	return PickerModel{title: title, options: options}
}

func (m PickerModel) Cursor() int { return m.cursor }

func (m PickerModel) Current() string {
	if m.cursor < 0 || m.cursor >= len(m.options) {
		return ""
	}
	return m.options[m.cursor]
}

// Height is the number of lines View returns.
func (m PickerModel) Height() int { return len(m.options) + 1 }

func (m PickerModel) Update(msg tea.Msg) (PickerModel, tea.Cmd) {
	v, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch v.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	}
	return m, nil
}

// View renders the options; checked, when set, adds a checkbox column.
func (m PickerModel) View(theme styles.Theme, checked func(i int) bool) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(m.title))
	b.WriteString("\n")
	for i, o := range m.options {
		line := "  "
		if i == m.cursor {
			line = "> "
		}
		if checked != nil {
			if checked(i) {
				line += "[x] "
			} else {
				line += "[ ] "
			}
		}
		line += o
		if i == m.cursor {
			line = theme.Selected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
