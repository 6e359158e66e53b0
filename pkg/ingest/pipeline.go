package ingest

import (
	"context"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/history"
	"github.com/go-go-golems/dbuddy/pkg/metrics"
	"github.com/go-go-golems/dbuddy/pkg/procinfo"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	ChannelCapacity int
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	Decoder         Decoder
	Cache           *procinfo.Cache
	Status          *StatusPublisher
	Metrics         *metrics.Metrics
}

// Pipeline wires one Producer and Channel per source. Run owns the producer
// goroutines; Drain and DrainWait are called from the single consumer.
type Pipeline struct {
	producers []*Producer
	channels  map[bus.Source]*Channel
	notify    chan struct{}

	scratch []*bus.Event
}

func NewPipeline(transports map[bus.Source]Transport, opts Options) *Pipeline {
	p := &Pipeline{
		channels: map[bus.Source]*Channel{},
		notify:   make(chan struct{}, 1),
	}
	ids := &IDSequence{}
	for _, src := range bus.Sources {
		tr, ok := transports[src]
		if !ok {
			continue
		}
		ch := NewChannel(src, opts.ChannelCapacity, p.notify, opts.Metrics)
		p.channels[src] = ch
		p.producers = append(p.producers, &Producer{
			Source:        src,
			Transport:     tr,
			Normalizer:    NewNormalizer(src, ids, opts.Decoder, opts.Cache),
			Channel:       ch,
			Status:        opts.Status,
			Metrics:       opts.Metrics,
			RetryDelay:    opts.RetryDelay,
			MaxRetryDelay: opts.MaxRetryDelay,
		})
	}
	return p
}

// Run blocks until ctx is cancelled. The whole pipeline stops as a unit.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.producers) == 0 {
		return errors.New("no bus sources configured")
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, pr := range p.producers {
		g.Go(func() error {
			return pr.Run(ctx)
		})
	}
	return g.Wait()
}

func (p *Pipeline) Channel(src bus.Source) *Channel {
	return p.channels[src]
}

// Drain moves everything currently buffered into h without blocking and
// returns the number of events moved.
func (p *Pipeline) Drain(h *history.History) int {
	total := 0
	for _, src := range bus.Sources {
		ch, ok := p.channels[src]
		if !ok {
			continue
		}
		p.scratch = ch.Drain(p.scratch[:0])
		if len(p.scratch) == 0 {
			continue
		}
		h.Append(src, p.scratch...)
		total += len(p.scratch)
	}
	clear(p.scratch)
	p.scratch = p.scratch[:0]
	return total
}

// DrainWait is Drain, but waits up to timeout for the first event when
// nothing is buffered yet.
func (p *Pipeline) DrainWait(ctx context.Context, h *history.History, timeout time.Duration) int {
	if n := p.Drain(h); n > 0 {
		return n
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.notify:
	case <-timer.C:
	case <-ctx.Done():
		return 0
	}
	return p.Drain(h)
}

// Dropped is the number of events dropped by the channel of src.
func (p *Pipeline) Dropped(src bus.Source) uint64 {
	ch, ok := p.channels[src]
	if !ok {
		return 0
	}
	return ch.Dropped()
}
