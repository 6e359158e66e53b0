package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/dbuddy/pkg/config"
	"github.com/rs/zerolog/log"
)

// ReloadConfig loads the file behind w on every change and sends the result
// to the program until ctx is done.
func ReloadConfig(ctx context.Context, w *config.Watcher, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.Changes():
			if !ok {
				return
			}
			c, err := config.Load(w.Path())
			if err != nil {
				log.Warn().Err(err).Str("path", w.Path()).Msg("config reload failed")
			} else {
				log.Info().Str("path", w.Path()).Msg("config reloaded")
			}
			send(ConfigReloadedMsg{Config: c, Err: err})
		}
	}
}
