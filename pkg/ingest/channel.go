package ingest

import (
	"sync/atomic"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/metrics"
)

// DefaultChannelCapacity is how many events a source may have in flight
// between two refreshes before new ones are dropped.
const DefaultChannelCapacity = 4096

// Channel hands events from one producer goroutine to the consumer. Offer
// never blocks: when the buffer is full the newest event is dropped and
// counted, so a flood degrades completeness instead of UI liveness.
type Channel struct {
	source  bus.Source
	ch      chan *bus.Event
	notify  chan struct{}
	metrics *metrics.Metrics

	accepted atomic.Uint64
	dropped  atomic.Uint64
}

func NewChannel(source bus.Source, capacity int, notify chan struct{}, m *metrics.Metrics) *Channel {
	if capacity < 1 {
		capacity = DefaultChannelCapacity
	}
	return &Channel{
		source:  source,
		ch:      make(chan *bus.Event, capacity),
		notify:  notify,
		metrics: m,
	}
}

func (c *Channel) Source() bus.Source { return c.source }

// Offer enqueues ev, or drops it when the channel is full.
func (c *Channel) Offer(ev *bus.Event) bool {
	select {
	case c.ch <- ev:
	default:
		c.dropped.Add(1)
		c.metrics.EventDropped(c.source.String())
		return false
	}
	c.accepted.Add(1)
	c.metrics.EventIngested(c.source.String())
	if c.notify != nil {
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
	return true
}

// Discard counts n events that were lost upstream of the channel, e.g. in
// the transport's own buffer.
func (c *Channel) Discard(n uint64) {
	if n == 0 {
		return
	}
	c.dropped.Add(n)
	c.metrics.EventsDropped(c.source.String(), n)
}

// Drain appends whatever is buffered right now to dst without blocking.
// It takes at most the number of events present when it started, so a
// busy producer cannot keep the consumer here.
func (c *Channel) Drain(dst []*bus.Event) []*bus.Event {
	n := len(c.ch)
	for i := 0; i < n; i++ {
		select {
		case ev := <-c.ch:
			dst = append(dst, ev)
		default:
			return dst
		}
	}
	return dst
}

func (c *Channel) Len() int { return len(c.ch) }

func (c *Channel) Cap() int { return cap(c.ch) }

func (c *Channel) Accepted() uint64 { return c.accepted.Load() }

func (c *Channel) Dropped() uint64 { return c.dropped.Load() }
