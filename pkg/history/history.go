package history

import (
	"strings"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/metrics"
	"github.com/pkg/errors"
)

// Mode selects which sources a view covers.
type Mode int

const (
	ModeSession Mode = iota
	ModeSystem
	ModeBoth
)

func (m Mode) String() string {
	switch m {
	case ModeSession:
		return "session"
	case ModeSystem:
		return "system"
	case ModeBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Next cycles session -> system -> both -> session.
func (m Mode) Next() Mode {
	return (m + 1) % 3
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "session", "user":
		return ModeSession, nil
	case "system":
		return ModeSystem, nil
	case "both", "all":
		return ModeBoth, nil
	default:
		return 0, errors.Errorf("unknown view mode %q (valid: session, system, both)", s)
	}
}

// History holds one Store per source.
type History struct {
	stores map[bus.Source]*Store
}

func New(max int, m *metrics.Metrics) *History {
	h := &History{stores: map[bus.Source]*Store{}}
	for _, src := range bus.Sources {
		h.stores[src] = NewStore(src, max, m)
	}
	return h
}

func (h *History) Store(src bus.Source) *Store {
	return h.stores[src]
}

func (h *History) Append(src bus.Source, events ...*bus.Event) int {
	s, ok := h.stores[src]
	if !ok {
		return 0
	}
	return s.Append(events...)
}

func (h *History) SetMax(max int) {
	for _, s := range h.stores {
		s.SetMax(max)
	}
}

// Max is the per-source cap.
func (h *History) Max() int {
	return h.stores[bus.SessionBus].Max()
}

func (h *History) Clear() {
	for _, s := range h.stores {
		s.Clear()
	}
}

// Version changes whenever any store changes.
func (h *History) Version() uint64 {
	var v uint64
	for _, s := range h.stores {
		v += s.Version()
	}
	return v
}

func (h *History) Len(mode Mode) int {
	switch mode {
	case ModeSession:
		return h.stores[bus.SessionBus].Len()
	case ModeSystem:
		return h.stores[bus.SystemBus].Len()
	default:
		return h.stores[bus.SessionBus].Len() + h.stores[bus.SystemBus].Len()
	}
}

// View appends the references visible in mode to dst, oldest first. For
// ModeBoth the two stores are merged by timestamp; only the reference list
// is allocated, never the events.
func (h *History) View(mode Mode, dst []*bus.Event) []*bus.Event {
	switch mode {
	case ModeSession:
		return h.stores[bus.SessionBus].AppendTo(dst)
	case ModeSystem:
		return h.stores[bus.SystemBus].AppendTo(dst)
	default:
		session, system := h.stores[bus.SessionBus], h.stores[bus.SystemBus]
		if cap(dst)-len(dst) < session.Len()+system.Len() {
			grown := make([]*bus.Event, len(dst), len(dst)+session.Len()+system.Len())
			copy(grown, dst)
			dst = grown
		}
		for ev := range Merged(session, system) {
			dst = append(dst, ev)
		}
		return dst
	}
}
