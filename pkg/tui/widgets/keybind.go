package widgets

import (
	"strings"

	"github.com/go-go-golems/dbuddy/pkg/tui/styles"
)

type Keybind struct {
	Key  string
	Desc string
}

// RenderKeybinds renders "key desc" pairs separated by dots.
func RenderKeybinds(binds []Keybind, theme styles.Theme) string {
	parts := make([]string, 0, len(binds))
	for _, b := range binds {
		parts = append(parts, theme.KeybindKey.Render(b.Key)+" "+theme.KeybindDesc.Render(b.Desc))
	}
	return strings.Join(parts, theme.KeybindDesc.Render("  ·  "))
}
