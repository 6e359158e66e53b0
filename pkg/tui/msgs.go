package tui

import (
	"github.com/go-go-golems/dbuddy/pkg/config"
	"github.com/go-go-golems/dbuddy/pkg/ingest"
)

// StatusMsg carries a source status from the status topic into the UI.
type StatusMsg struct {
	Status ingest.Status
}

// ConfigReloadedMsg is sent after the config file changed on disk.
type ConfigReloadedMsg struct {
	Config *config.Config
	Err    error
}
