package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/procinfo"
	"github.com/rs/zerolog/log"
)

// IDSequence hands out event ids that are unique across all sources.
type IDSequence struct {
	last atomic.Uint64
}

func (s *IDSequence) Next() uint64 {
	return s.last.Add(1)
}

// Normalizer builds Events for one source. It is owned by that source's
// producer goroutine; only the IDSequence and the process cache are shared.
type Normalizer struct {
	source  bus.Source
	ids     *IDSequence
	decoder Decoder
	cache   *procinfo.Cache
	now     func() time.Time

	last time.Time
}

func NewNormalizer(source bus.Source, ids *IDSequence, decoder Decoder, cache *procinfo.Cache) *Normalizer {
	return &Normalizer{source: source, ids: ids, decoder: decoder, cache: cache, now: time.Now}
}

// Normalize turns a raw transport event into an immutable Event. Timestamps
// are clamped so they never go backwards within the source, decode failures
// become an undecodable body, and pids are handed to the cache to warm in
// the background so the renderer later finds them resolved.
func (n *Normalizer) Normalize(ctx context.Context, raw bus.RawEvent) *bus.Event {
	ts := raw.At
	if ts.IsZero() {
		ts = n.now()
	}
	if ts.Before(n.last) {
		ts = n.last
	}
	n.last = ts

	ev := &bus.Event{
		ID:             n.ids.Next(),
		Timestamp:      ts,
		Source:         n.source,
		Kind:           raw.Kind,
		Sender:         raw.Sender,
		Destination:    raw.Destination,
		Path:           raw.Path,
		Interface:      raw.Interface,
		Member:         raw.Member,
		ErrorName:      raw.ErrorName,
		Signature:      raw.Signature,
		Serial:         raw.Serial,
		ReplySerial:    raw.ReplySerial,
		SenderPID:      raw.SenderPID,
		DestinationPID: raw.DestinationPID,
	}

	if err := ev.Validate(); err != nil {
		log.Warn().Err(err).Str("source", n.source.String()).Str("sender", raw.Sender).Msg("dropping reply serial")
		ev.ReplySerial = nil
	}

	ev.Body = n.decode(raw)

	if n.cache != nil {
		if ev.SenderPID != nil {
			n.cache.Warm(ctx, *ev.SenderPID)
		}
		if ev.DestinationPID != nil {
			n.cache.Warm(ctx, *ev.DestinationPID)
		}
	}
	return ev
}

func (n *Normalizer) decode(raw bus.RawEvent) bus.Value {
	if n.decoder == nil || raw.Body == nil {
		return bus.Value{}
	}
	v, err := n.decoder.Decode(raw)
	if err != nil {
		log.Debug().Err(err).Str("source", n.source.String()).Str("member", raw.Member).Msg("undecodable body")
		return bus.Undecodable(err.Error())
	}
	return v
}
