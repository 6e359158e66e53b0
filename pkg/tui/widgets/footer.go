package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/go-go-golems/dbuddy/pkg/tui/styles"
)

// BusCount is what one bus has retained and lost so far.
type BusCount struct {
	Bus      string
	Retained int
	Dropped  uint64
}

func (c BusCount) String() string {
	s := fmt.Sprintf("%s %d", c.Bus, c.Retained)
	if c.Dropped > 0 {
		s += fmt.Sprintf(" (%d dropped)", c.Dropped)
	}
	return s
}

// Footer is the bottom bar: a rule naming the current view, then the keys
// valid in it on the left and the per-bus counters on the right. Counters
// win over keys when the terminal is narrow.
type Footer struct {
	View     string
	Keybinds []Keybind
	Counts   []BusCount
	Width    int
	theme    styles.Theme
}

func NewFooter(theme styles.Theme) Footer {
	return Footer{theme: theme}
}

func (f Footer) WithWidth(w int) Footer {
	f.Width = w
	return f
}

func (f Footer) WithView(name string, keys []Keybind) Footer {
	f.View = name
	f.Keybinds = keys
	return f
}

func (f Footer) WithCounts(c []BusCount) Footer {
	f.Counts = c
	return f
}

// Height is the number of lines Render returns.
func (f Footer) Height() int { return 2 }

func (f Footer) Render() string {
	width := f.Width
	if width <= 0 {
		width = 80
	}

	label := ""
	if f.View != "" {
		label = "━━ " + f.View + " "
	}
	rule := f.theme.TitleMuted.Render(label + strings.Repeat("━", maxInt(0, width-lipgloss.Width(label))))

	var counts []string
	for _, c := range f.Counts {
		style := f.theme.KeybindDesc
		if c.Dropped > 0 {
			style = f.theme.StatusWarn
		}
		counts = append(counts, style.Render(c.String()))
	}
	right := strings.Join(counts, f.theme.KeybindDesc.Render("  "))
	if lipgloss.Width(right) > width {
		right = ansi.Truncate(right, width, "…")
	}

	left := RenderKeybinds(f.Keybinds, f.theme)
	room := width - lipgloss.Width(right)
	if right != "" {
		room -= 2
	}
	if room <= 0 {
		left = ""
	} else if lipgloss.Width(left) > room {
		left = ansi.Truncate(left, room, "…")
	}
	gap := maxInt(0, width-lipgloss.Width(left)-lipgloss.Width(right))

	return rule + "\n" + left + strings.Repeat(" ", gap) + right
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
