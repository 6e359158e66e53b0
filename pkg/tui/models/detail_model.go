package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/tui/styles"
	"github.com/pkg/errors"
)

// DetailModel shows the header fields and decoded body of one record.
type DetailModel struct {
	width  int
	height int

	ev    *bus.Event
	plain []string
	theme styles.Theme

	vp viewport.Model
}

func NewDetailModel() DetailModel {
	return DetailModel{theme: styles.DefaultTheme(), vp: viewport.New(0, 0)}
}

func (m DetailModel) WithSize(width, height int) DetailModel {
	m.width, m.height = width, height
	m.vp.Width = maxInt(0, width)
	m.vp.Height = maxInt(1, height)
	return m
}

// WithEvent renders ev. Process identities are peeked once here.
func (m DetailModel) WithEvent(ev *bus.Event, ids Identities) DetailModel {
	m.ev = ev
	m.plain = nil
	if ev == nil {
		m.vp.SetContent("")
		return m
	}

	var styled []string
	for _, l := range detailHeader(ev, ids) {
		m.plain = append(m.plain, l)
		styled = append(styled, l)
	}
	values := 0
	elided := bus.Walk(ev.Body, bus.DefaultMaxDepth, func(v bus.Value, _ int) {
		if v.Kind != bus.ValueVariant {
			values++
		}
	})
	heading := "body:"
	if !ev.Body.IsZero() {
		heading = fmt.Sprintf("body: %d values", values)
		if elided {
			heading += fmt.Sprintf(", nesting beyond %d levels elided", bus.DefaultMaxDepth)
		}
	}
	m.plain = append(m.plain, "", heading)
	styled = append(styled, "", m.theme.Title.Render(heading))

	body := bus.Format(ev.Body, bus.DefaultMaxDepth)
	if len(body) == 0 {
		m.plain = append(m.plain, "  (empty)")
		styled = append(styled, m.theme.TitleMuted.Render("  (empty)"))
	}
	for _, l := range body {
		text := strings.Repeat("  ", l.Depth+1) + l.Text
		m.plain = append(m.plain, text)
		styled = append(styled, m.styleLine(l.Kind).Render(text))
	}
	m.vp.SetContent(strings.Join(styled, "\n"))
	m.vp.GotoTop()
	return m
}

func (m DetailModel) styleLine(k bus.ValueKind) lipgloss.Style {
	switch k {
	case bus.ValueDict:
		return m.theme.ValueDict
	case bus.ValueStruct:
		return m.theme.ValueStruct
	case bus.ValueArray:
		return m.theme.ValueArray
	case bus.ValueUndecodable:
		return m.theme.ValueMissing
	default:
		return m.theme.Member.UnsetBold()
	}
}

func (m DetailModel) Event() *bus.Event { return m.ev }

// Text is the unstyled detail text.
func (m DetailModel) Text() string {
	return strings.Join(m.plain, "\n") + "\n"
}

// Save writes the detail text to a file in dir and returns its path.
func (m DetailModel) Save(dir string) (string, error) {
	if m.ev == nil {
		return "", errors.New("no message selected")
	}
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("dbuddy-%d.txt", m.ev.ID))
	if err := os.WriteFile(path, []byte(m.Text()), 0o600); err != nil {
		return "", errors.Wrap(err, "write details")
	}
	return path, nil
}

func (m DetailModel) Update(msg tea.Msg) (DetailModel, tea.Cmd) {
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m DetailModel) View() string {
	if m.ev == nil {
		return "(no message selected)\n"
	}
	return m.vp.View()
}
