package styles

import (
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/ingest"
)

const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconRunning = "▶"
	IconPending = "○"
	IconSignal  = "◆"
	IconCall    = "→"
	IconReturn  = "←"
	IconRetry   = "↻"
	IconBullet  = "•"
	IconPinned  = "▾"
	IconAbove   = "↑"
	IconBelow   = "↓"
)

// KindIcon returns the icon for a message kind.
func KindIcon(k bus.Kind) string {
	switch k {
	case bus.Signal:
		return IconSignal
	case bus.MethodCall:
		return IconCall
	case bus.MethodReturn:
		return IconReturn
	case bus.Error:
		return IconError
	default:
		return IconBullet
	}
}

// StatusIcon returns the icon for a source status.
func StatusIcon(k ingest.StatusKind) string {
	switch k {
	case ingest.StatusConnected:
		return IconSuccess
	case ingest.StatusTransportError:
		return IconError
	case ingest.StatusRetrying:
		return IconRetry
	case ingest.StatusStopped:
		return IconPending
	default:
		return IconPending
	}
}

// SourceTag is a one letter source marker for list rows.
func SourceTag(src bus.Source) string {
	if src == bus.SystemBus {
		return "Y"
	}
	return "S"
}
