package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/query"
	"github.com/go-go-golems/dbuddy/pkg/sticky"
	"github.com/go-go-golems/dbuddy/pkg/tui/styles"
)

// ListModel is the scrolled message list. The first line is the pinned
// group header; the rest are rows.
type ListModel struct {
	width  int
	height int

	keys KeyMap

	vp         sticky.Viewport
	selected   int
	selectedID uint64
	follow     bool
	relative   bool
}

func NewListModel() ListModel {
	return ListModel{keys: DefaultKeyMap, follow: true}
}

func (m ListModel) WithSize(width, height int) ListModel {
	m.width, m.height = width, height
	m.vp.Height = maxInt(0, height-1)
	return m
}

func (m ListModel) Following() bool { return m.follow }

func (m ListModel) WithFollow(on bool) ListModel {
	m.follow = on
	return m
}

func (m ListModel) Relative() bool { return m.relative }

func (m ListModel) WithRelative(on bool) ListModel {
	m.relative = on
	return m
}

// SelectID moves the selection to the record with id on the next Sync.
func (m ListModel) SelectID(id uint64) ListModel {
	m.selectedID = id
	m.follow = false
	return m
}

// Sync keeps the selection on the same record across a new result. When
// that record is gone the selection stays at the same position.
func (m ListModel) Sync(r *query.Result) ListModel {
	n := r.Len()
	switch {
	case n == 0:
		m.selected = 0
	case m.follow:
		m.selected = n - 1
	default:
		if ev := r.Row(m.selected); ev == nil || ev.ID != m.selectedID {
			if i := r.IndexOf(m.selectedID); i >= 0 {
				m.selected = i
			}
		}
		m.selected = min(max(m.selected, 0), n-1)
	}
	if ev := r.Row(m.selected); ev != nil {
		m.selectedID = ev.ID
	}
	m.vp = m.vp.Follow(m.selected, n)
	return m
}

// Selected is the highlighted record, or nil on an empty list.
func (m ListModel) Selected(r *query.Result) *bus.Event {
	return r.Row(m.selected)
}

func (m ListModel) Update(msg tea.Msg, r *query.Result) (ListModel, tea.Cmd) {
	v, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	n := r.Len()
	page := maxInt(1, m.vp.Height-1)
	switch {
	case key.Matches(v, m.keys.Up):
		m = m.move(-1, n)
	case key.Matches(v, m.keys.Down):
		m = m.move(1, n)
	case key.Matches(v, m.keys.PageUp):
		m = m.move(-page, n)
	case key.Matches(v, m.keys.PageDown):
		m = m.move(page, n)
	case key.Matches(v, m.keys.Home):
		m = m.move(-n, n)
	case key.Matches(v, m.keys.End):
		m = m.move(n, n)
		m.follow = true
	default:
		return m, nil
	}
	if ev := r.Row(m.selected); ev != nil {
		m.selectedID = ev.ID
	}
	m.vp = m.vp.Follow(m.selected, n)
	return m, nil
}

func (m ListModel) move(delta, n int) ListModel {
	if n == 0 {
		return m
	}
	m.selected = min(max(m.selected+delta, 0), n-1)
	if m.selected < n-1 {
		m.follow = false
	}
	return m
}

// View renders the visible rows. ids is only peeked.
func (m ListModel) View(r *query.Result, ids Identities, theme styles.Theme, now time.Time) string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	frame := sticky.Project(r, m.vp)

	var b strings.Builder
	b.WriteString(ansi.Truncate(m.header(r, frame, theme), width, "…"))
	b.WriteString("\n")

	if r.Len() == 0 {
		b.WriteString(theme.TitleMuted.Render("(no messages yet)"))
		b.WriteString("\n")
		return b.String()
	}

	grouped := len(r.Groups) > 0
	for _, row := range frame.Rows {
		ev := r.Row(row.Index)
		line := rowText(ev, ids, theme, now, m.relative)
		if grouped {
			gutter := "│ "
			if row.GroupStart {
				gutter = "┌ "
			}
			line = theme.GroupGutter.Render(gutter) + line
		}
		line = ansi.Truncate(line, width, "…")
		if row.Index == m.selected {
			line = theme.Selected.Render(ansi.Strip(line))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m ListModel) header(r *query.Result, f sticky.Frame, theme styles.Theme) string {
	if r != nil && r.Thread != nil {
		s := fmt.Sprintf("thread of %s #%d: %d messages", r.Thread.Seed.Sender, r.Thread.Seed.Serial, len(r.Thread.Events))
		if len(r.Thread.Missing) > 0 {
			parts := make([]string, len(r.Thread.Missing))
			for i, c := range r.Thread.Missing {
				parts[i] = c.String()
			}
			s += "  (call no longer retained: " + strings.Join(parts, ", ") + ")"
		}
		return theme.GroupHeader.Render(s)
	}
	if !f.Pinned {
		return theme.TitleMuted.Render(fmt.Sprintf("%d messages", r.Len()))
	}
	s := fmt.Sprintf("%s %s (%d)", styles.IconPinned, f.PinnedKey, f.PinnedCount)
	if f.HasMoreAbove {
		s += " " + styles.IconAbove
	}
	if f.HasMoreBelow {
		s += " " + styles.IconBelow
	}
	return theme.GroupHeader.Render(s)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
