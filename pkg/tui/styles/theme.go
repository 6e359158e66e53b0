package styles

import "github.com/charmbracelet/lipgloss"

// Theme holds every style the models render with.
type Theme struct {
	Primary lipgloss.Color
	Muted   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Accent  lipgloss.Color

	Title        lipgloss.Style
	TitleMuted   lipgloss.Style
	Tab          lipgloss.Style
	TabActive    lipgloss.Style
	StatusOK     lipgloss.Style
	StatusBad    lipgloss.Style
	StatusWarn   lipgloss.Style
	KeybindKey   lipgloss.Style
	KeybindDesc  lipgloss.Style
	Selected     lipgloss.Style
	GroupHeader  lipgloss.Style
	GroupGutter  lipgloss.Style
	Timestamp    lipgloss.Style
	Sender       lipgloss.Style
	Member       lipgloss.Style
	Path         lipgloss.Style
	ValueDict    lipgloss.Style
	ValueStruct  lipgloss.Style
	ValueArray   lipgloss.Style
	ValueMissing lipgloss.Style
}

func DefaultTheme() Theme {
	t := Theme{
		Primary: lipgloss.Color("12"),
		Muted:   lipgloss.Color("8"),
		Success: lipgloss.Color("10"),
		Warning: lipgloss.Color("11"),
		Error:   lipgloss.Color("9"),
		Accent:  lipgloss.Color("13"),
	}
	t.Title = lipgloss.NewStyle().Bold(true).Foreground(t.Primary)
	t.TitleMuted = lipgloss.NewStyle().Foreground(t.Muted)
	t.Tab = lipgloss.NewStyle().Foreground(t.Muted).Padding(0, 1)
	t.TabActive = lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Underline(true).Padding(0, 1)
	t.StatusOK = lipgloss.NewStyle().Foreground(t.Success)
	t.StatusBad = lipgloss.NewStyle().Foreground(t.Error)
	t.StatusWarn = lipgloss.NewStyle().Foreground(t.Warning)
	t.KeybindKey = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.KeybindDesc = lipgloss.NewStyle().Foreground(t.Muted)
	t.Selected = lipgloss.NewStyle().Reverse(true)
	t.GroupHeader = lipgloss.NewStyle().Bold(true).Foreground(t.Warning)
	t.GroupGutter = lipgloss.NewStyle().Foreground(t.Warning)
	t.Timestamp = lipgloss.NewStyle().Foreground(t.Muted)
	t.Sender = lipgloss.NewStyle().Foreground(t.Success)
	t.Member = lipgloss.NewStyle().Bold(true)
	t.Path = lipgloss.NewStyle().Foreground(t.Primary)
	t.ValueDict = lipgloss.NewStyle().Foreground(t.Accent)
	t.ValueStruct = lipgloss.NewStyle().Foreground(t.Primary)
	t.ValueArray = lipgloss.NewStyle().Foreground(t.Warning)
	t.ValueMissing = lipgloss.NewStyle().Foreground(t.Error).Italic(true)
	return t
}
