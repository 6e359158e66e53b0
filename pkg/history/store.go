package history

import (

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/metrics"
)

// DefaultMaxMessages is the retention cap per source.
const DefaultMaxMessages = 40000

// Store is the bounded history of a single source: a ring of event
// pointers that grows up to max and then overwrites its oldest slot, so an
// insert never costs more than the records it pushes out.
//
// A Store is owned by the consumer goroutine and is not safe for
// concurrent use.
type Store struct {
	source  bus.Source
	metrics *metrics.Metrics

	buf  []*bus.Event
	head int
	max  int

	version uint64
	trimmed uint64
}

func NewStore(source bus.Source, max int, m *metrics.Metrics) *Store {
	if max < 1 {
		max = 1
	}
	return &Store{source: source, max: max, metrics: m}
}

func (s *Store) Source() bus.Source { return s.source }

func (s *Store) Len() int { return len(s.buf) }

func (s *Store) Max() int { return s.max }

// Version changes whenever the content of the store changes.
func (s *Store) Version() uint64 { return s.version }

// Trimmed is the number of events removed from the head so far.
func (s *Store) Trimmed() uint64 { return s.trimmed }

// At returns the i-th retained event, oldest first.
func (s *Store) At(i int) *bus.Event {
	return s.buf[(s.head+i)%len(s.buf)]
}

// Append adds events at the tail and trims the head down to max. It
// returns how many events were trimmed.
func (s *Store) Append(events ...*bus.Event) int {
	if len(events) == 0 {
		return 0
	}
	trimmed := 0
	// records that would be overwritten within this very batch are skipped
	if over := len(events) - s.max; over > 0 {
		trimmed += over
		events = events[over:]
	}
	for _, ev := range events {
		if len(s.buf) < s.max {
			s.buf = append(s.buf, ev)
			continue
		}
		s.buf[s.head] = ev
		s.head = (s.head + 1) % s.max
		trimmed++
	}
	s.version++
	s.trimmed += uint64(trimmed)
	s.metrics.HistoryTrimmed(s.source.String(), trimmed)
	s.metrics.HistorySize(s.source.String(), len(s.buf))
	return trimmed
}

// SetMax changes the retention cap, keeping the newest events. It copies
// the retained references once.
func (s *Store) SetMax(max int) {
	if max < 1 {
		max = 1
	}
	if max == s.max {
		return
	}
	keep := len(s.buf)
	if keep > max {
		keep = max
	}
	dropped := len(s.buf) - keep
	next := make([]*bus.Event, 0, keep)
	for i := dropped; i < len(s.buf); i++ {
		next = append(next, s.At(i))
	}
	s.buf, s.head, s.max = next, 0, max
	s.trimmed += uint64(dropped)
	s.version++
	s.metrics.HistoryTrimmed(s.source.String(), dropped)
	s.metrics.HistorySize(s.source.String(), len(s.buf))
}

// Clear drops every retained event.
func (s *Store) Clear() {
	s.trimmed += uint64(len(s.buf))
	s.buf, s.head = nil, 0
	s.version++
	s.metrics.HistorySize(s.source.String(), 0)
}

// AppendTo appends the retained references to dst.
func (s *Store) AppendTo(dst []*bus.Event) []*bus.Event {
	n := len(s.buf)
	if n == 0 {
		return dst
	}
	// the ring is at most two contiguous runs
	if s.head == 0 {
		return append(dst, s.buf...)
	}
	dst = append(dst, s.buf[s.head:]...)
	return append(dst, s.buf[:s.head]...)
}
