package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/history"
	"github.com/go-go-golems/dbuddy/pkg/ingest"
	"github.com/go-go-golems/dbuddy/pkg/query"
	"github.com/go-go-golems/dbuddy/pkg/tui"
	"github.com/go-go-golems/dbuddy/pkg/tui/styles"
	"github.com/go-go-golems/dbuddy/pkg/tui/widgets"
	"github.com/rs/zerolog/log"
)

const DefaultRefresh = 100 * time.Millisecond

// autoFilterFields are offered by the autofilter picker, in order.
var autoFilterFields = []string{"sender", "member", "path", "serial", "reply_serial"}

type tickMsg struct {
	At time.Time
}

type Options struct {
	// Pipeline is drained on every tick. It may be nil when history is
	// filled by other means.
	Pipeline   *ingest.Pipeline
	History    *history.History
	Engine     *query.Engine
	Identities Identities
	Refresh    time.Duration
	// SaveDir receives detail dumps; empty means the temp dir.
	SaveDir string
	Now     func() time.Time
}

// RootModel is the single consumer of ingested records: it drains the
// pipeline, recomputes the view and renders it.
type RootModel struct {
	opts Options

	width  int
	height int

	mode   uiMode
	result *query.Result
	keys   KeyMap
	theme  styles.Theme

	list   ListModel
	detail DetailModel
	input  textinput.Model
	picker PickerModel
	footer widgets.Footer

	statuses map[bus.Source]ingest.Status
	notice   string
	errText  string
}

func NewRootModel(opts Options) RootModel {
	if opts.Refresh <= 0 {
		opts.Refresh = DefaultRefresh
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Engine == nil {
		opts.Engine = query.NewEngine(query.WithHistory(opts.History))
	}

	input := textinput.New()
	input.Placeholder = "sender=… member=… path=… or words"
	input.Prompt = "/ "
	input.CharLimit = 500

	theme := styles.DefaultTheme()
	m := RootModel{
		opts:     opts,
		mode:     browseMode{},
		keys:     DefaultKeyMap,
		theme:    theme,
		list:     NewListModel(),
		detail:   NewDetailModel(),
		input:    input,
		footer:   widgets.NewFooter(theme),
		statuses: map[bus.Source]ingest.Status{},
		width:    80,
		height:   24,
	}
	return m.refresh()
}

func (m RootModel) Init() tea.Cmd {
	return m.tick()
}

func (m RootModel) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg{At: t} })
}

// Result is the view currently on screen.
func (m RootModel) Result() *query.Result { return m.result }

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
		if m.width <= 0 {
			m.width = 80
		}
		if m.height <= 0 {
			m.height = 24
		}
		return m.refresh(), nil
	case tickMsg:
		if m.opts.Pipeline != nil && m.opts.History != nil {
			m.opts.Pipeline.Drain(m.opts.History)
		}
		return m.refresh(), m.tick()
	case tui.StatusMsg:
		m.statuses[v.Status.Source] = v.Status
		return m.layout(), nil
	case tui.ConfigReloadedMsg:
		return m.applyConfig(v), nil
	case tea.KeyMsg:
		if v.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch mode := m.mode.(type) {
		case filterMode:
			return m.updateFilter(v)
		case autoFilterMode:
			return m.updateAutoFilter(v)
		case groupMode:
			return m.updateGroup(v)
		case detailMode:
			return m.updateDetail(v, mode)
		default:
			return m.updateList(v)
		}
	}
	return m, nil
}

func (m RootModel) applyConfig(v tui.ConfigReloadedMsg) RootModel {
	if v.Err != nil {
		m.errText = "config: " + v.Err.Error()
		return m
	}
	qc, err := v.Config.Query()
	if err != nil {
		m.errText = "config: " + err.Error()
		return m
	}
	if err := m.opts.Engine.Configure(qc); err != nil {
		m.errText = "config: " + err.Error()
	} else {
		m.errText = ""
		m.notice = "configuration reloaded"
	}
	log.Info().Str("filter", qc.Filter).Str("group_by", qc.GroupBy.String()).Msg("configuration reloaded")
	return m.refresh()
}

func (m RootModel) updateList(v tea.KeyMsg) (tea.Model, tea.Cmd) {
	_, inThread := m.mode.(threadMode)
	sel := m.list.Selected(m.result)

	switch {
	case key.Matches(v, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(v, m.keys.Back):
		if inThread {
			m.opts.Engine.ClearThread()
			m.mode = browseMode{}
			m.list = m.list.SelectID(m.list.selectedID)
			return m.refresh(), nil
		}
		return m, nil
	case key.Matches(v, m.keys.Details):
		if sel == nil {
			return m, nil
		}
		m.mode = detailMode{back: m.mode}
		m = m.layout()
		m.detail = m.detail.WithEvent(sel, m.opts.Identities)
		return m, nil
	case key.Matches(v, m.keys.Follow):
		m.list = m.list.WithFollow(!m.list.Following())
		return m.refresh(), nil
	case key.Matches(v, m.keys.Relative):
		m.list = m.list.WithRelative(!m.list.Relative())
		return m, nil
	case key.Matches(v, m.keys.ReplayHint):
		if sel != nil {
			m.notice = DbusSendCommand(sel, m.opts.Engine.Mode())
		}
		return m, nil
	}

	if inThread {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(v, m.result)
		return m, cmd
	}

	switch {
	case key.Matches(v, m.keys.Filter):
		m.mode = filterMode{}
		m.input.SetValue(m.opts.Engine.Filter().String())
		m.input.CursorEnd()
		m.input.Focus()
		return m.layout(), textinput.Blink
	case key.Matches(v, m.keys.ClearFilt):
		_ = m.opts.Engine.ApplyFilter("")
		m.errText = ""
		return m.refresh(), nil
	case key.Matches(v, m.keys.Group):
		m.mode = groupMode{}
		names := make([]string, len(query.AllGroupKeys))
		for i, k := range query.AllGroupKeys {
			names[i] = k.String()
		}
		m.picker = NewPickerModel("group by (space toggles, esc closes)", names)
		return m.layout(), nil
	case key.Matches(v, m.keys.Thread):
		if sel == nil {
			return m, nil
		}
		m.opts.Engine.FocusThread(sel)
		m.mode = threadMode{seedID: sel.ID}
		m.list = m.list.SelectID(sel.ID)
		return m.refresh(), nil
	case key.Matches(v, m.keys.CycleMode):
		m.opts.Engine.SetMode(m.opts.Engine.Mode().Next())
		return m.refresh(), nil
	case key.Matches(v, m.keys.Clear):
		if m.opts.History != nil {
			m.opts.History.Clear()
		}
		m.notice = "history cleared"
		return m.refresh(), nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(v, m.result)
	return m, cmd
}

func (m RootModel) updateFilter(v tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch v.String() {
	case "esc":
		m.input.Blur()
		m.mode = browseMode{}
		m.errText = ""
		return m.layout(), nil
	case "enter":
		if err := m.opts.Engine.ApplyFilter(m.input.Value()); err != nil {
			m.errText = err.Error()
			return m.layout(), nil
		}
		m.errText = ""
		m.input.Blur()
		m.mode = browseMode{}
		return m.refresh(), nil
	case "tab":
		if m.list.Selected(m.result) == nil {
			return m, nil
		}
		m.mode = autoFilterMode{}
		m.picker = NewPickerModel("filter on field of selected message", autoFilterFields)
		return m.layout(), nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(v)
	return m, cmd
}

func (m RootModel) updateAutoFilter(v tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch v.String() {
	case "esc":
		m.mode = filterMode{}
		return m.layout(), nil
	case "enter", "tab":
		if sel := m.list.Selected(m.result); sel != nil {
			clause := query.AutoFilter(sel, m.picker.Current())
			cur := strings.TrimSpace(m.input.Value())
			if cur != "" {
				clause = cur + " " + clause
			}
			m.input.SetValue(clause)
			m.input.CursorEnd()
		}
		m.mode = filterMode{}
		return m.layout(), nil
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(v)
	return m, cmd
}

func (m RootModel) updateGroup(v tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch v.String() {
	case "esc", "g", "q":
		m.mode = browseMode{}
		return m.layout(), nil
	case " ", "enter":
		k := query.AllGroupKeys[m.picker.Cursor()]
		m.opts.Engine.SetGroupBy(m.opts.Engine.GroupBy().Toggle(k))
		return m.refresh(), nil
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(v)
	return m, cmd
}

func (m RootModel) updateDetail(v tea.KeyMsg, mode detailMode) (tea.Model, tea.Cmd) {
	switch v.String() {
	case "esc", "q", "s", "enter", " ":
		m.mode = mode.back
		return m.refresh(), nil
	case "c":
		path, err := m.detail.Save(m.opts.SaveDir)
		if err != nil {
			m.errText = err.Error()
			log.Warn().Err(err).Msg("could not save details")
		} else {
			m.notice = "saved to " + path
		}
		return m, nil
	case "r":
		if ev := m.detail.Event(); ev != nil {
			m.notice = DbusSendCommand(ev, m.opts.Engine.Mode())
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(v)
	return m, cmd
}

// refresh recomputes the view and re-syncs the list to it.
func (m RootModel) refresh() RootModel {
	m = m.layout()
	m.result = m.opts.Engine.Result(m.opts.History)
	m.list = m.list.Sync(m.result)
	return m
}

func (m RootModel) layout() RootModel {
	m.footer = m.footer.WithWidth(m.width).
		WithView(m.mode.modeName(), m.keybinds()).
		WithCounts(m.busCounts())
	body := maxInt(2, m.height-2-m.footer.Height()-m.extraHeight())
	m.list = m.list.WithSize(m.width, body)
	m.detail = m.detail.WithSize(m.width, body)
	return m
}

func (m RootModel) extraHeight() int {
	switch m.mode.(type) {
	case filterMode:
		if m.errText != "" {
			return 2
		}
		return 1
	case autoFilterMode:
		return 1 + m.picker.Height()
	case groupMode:
		return m.picker.Height()
	default:
		return 0
	}
}

// busCounts lists every bus that has reported in or holds messages.
func (m RootModel) busCounts() []widgets.BusCount {
	var out []widgets.BusCount
	for _, src := range bus.Sources {
		c := widgets.BusCount{Bus: src.String()}
		if m.opts.History != nil {
			c.Retained = m.opts.History.Store(src).Len()
		}
		if m.opts.Pipeline != nil {
			c.Dropped = m.opts.Pipeline.Dropped(src)
		}
		if _, ok := m.statuses[src]; ok || c.Retained > 0 || c.Dropped > 0 {
			out = append(out, c)
		}
	}
	return out
}

func (m RootModel) keybinds() []widgets.Keybind {
	k := m.keys
	switch m.mode.(type) {
	case filterMode:
		return []widgets.Keybind{{Key: "enter", Desc: "apply"}, {Key: "tab", Desc: "from selection"}, {Key: "esc", Desc: "cancel"}}
	case autoFilterMode:
		return []widgets.Keybind{{Key: "↑/↓", Desc: "field"}, {Key: "enter", Desc: "insert"}, {Key: "esc", Desc: "back"}}
	case groupMode:
		return []widgets.Keybind{{Key: "↑/↓", Desc: "key"}, {Key: "space", Desc: "toggle"}, {Key: "esc", Desc: "close"}}
	case detailMode:
		return []widgets.Keybind{{Key: "↑/↓", Desc: "scroll"}, {Key: "c", Desc: "save"}, {Key: "r", Desc: "dbus-send"}, {Key: "esc", Desc: "back"}}
	case threadMode:
		return keybinds(k.Up, k.Down, k.Details, k.Follow, k.Relative, k.Back, k.Quit)
	default:
		return keybinds(k.Up, k.Down, k.Details, k.Filter, k.Group, k.Thread, k.CycleMode, k.Follow, k.Relative, k.Clear, k.Quit)
	}
}

func (m RootModel) View() string {
	var b strings.Builder
	b.WriteString(ansi.Truncate(m.titleLine(), m.width, "…"))
	b.WriteString("\n")
	b.WriteString(ansi.Truncate(m.statusLine(), m.width, "…"))
	b.WriteString("\n")

	switch m.mode.(type) {
	case detailMode:
		b.WriteString(m.detail.View())
		b.WriteString("\n")
	default:
		b.WriteString(m.list.View(m.result, m.opts.Identities, m.theme, m.opts.Now()))
	}

	switch m.mode.(type) {
	case filterMode:
		b.WriteString(m.input.View())
		b.WriteString("\n")
		if m.errText != "" {
			b.WriteString(m.theme.StatusBad.Render(m.errText))
			b.WriteString("\n")
		}
	case autoFilterMode:
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(m.picker.View(m.theme, nil))
	case groupMode:
		current := m.opts.Engine.GroupBy()
		b.WriteString(m.picker.View(m.theme, func(i int) bool {
			for _, k := range current {
				if k == query.AllGroupKeys[i] {
					return true
				}
			}
			return false
		}))
	}

	b.WriteString(m.footer.Render())
	return b.String()
}

func (m RootModel) titleLine() string {
	mode := m.opts.Engine.Mode()
	tabs := make([]string, 0, 3)
	for _, md := range []history.Mode{history.ModeSession, history.ModeSystem, history.ModeBoth} {
		st := m.theme.Tab
		if md == mode {
			st = m.theme.TabActive
		}
		tabs = append(tabs, st.Render(md.String()))
	}
	title := m.theme.Title.Render("dbuddy")
	if th, ok := m.mode.(threadMode); ok {
		title += m.theme.TitleMuted.Render(fmt.Sprintf(" · thread #%d", th.seedID))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", strings.Join(tabs, ""))
}

func (m RootModel) statusLine() string {
	var parts []string
	for _, src := range bus.Sources {
		st, ok := m.statuses[src]
		if !ok {
			continue
		}
		s := fmt.Sprintf("%s %s", st.Source, styles.StatusIcon(st.Kind))
		style := m.theme.StatusOK
		switch st.Kind {
		case ingest.StatusTransportError:
			style = m.theme.StatusBad
		case ingest.StatusRetrying:
			style = m.theme.StatusWarn
			s += fmt.Sprintf(" retry in %s", st.Retry.Round(time.Millisecond))
		case ingest.StatusStopped:
			style = m.theme.TitleMuted
		}
		parts = append(parts, style.Render(s))
	}

	shown := fmt.Sprintf("%d/%d", m.result.Len(), m.resultTotal())
	parts = append(parts, shown)
	if f := m.opts.Engine.Filter(); !f.IsEmpty() {
		parts = append(parts, "filter: "+f.String())
	}
	if g := m.opts.Engine.GroupBy(); !g.IsNone() {
		parts = append(parts, "group: "+g.String())
	}
	if m.list.Following() {
		parts = append(parts, "follow")
	}
	if m.errText != "" {
		if _, editing := m.mode.(filterMode); !editing {
			parts = append(parts, m.theme.StatusBad.Render(m.errText))
		}
	}
	if m.notice != "" {
		parts = append(parts, m.theme.StatusWarn.Render(m.notice))
	}
	return strings.Join(parts, "  "+styles.IconBullet+"  ")
}

func (m RootModel) resultTotal() int {
	if m.result == nil {
		return 0
	}
	return m.result.Total
}
