package ingest

import (
	"context"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultMaxRetryDelay = 30 * time.Second
)

// Producer pumps one source into its Channel. A transport failure pauses
// only this source: it is reported on the status topic and the transport is
// reopened after an exponential backoff.
type Producer struct {
	Source        bus.Source
	Transport     Transport
	Normalizer    *Normalizer
	Channel       *Channel
	Status        *StatusPublisher
	Metrics       *metrics.Metrics
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func (p *Producer) Run(ctx context.Context) error {
	if p.Transport == nil {
		return errors.Errorf("%s: missing transport", p.Source)
	}
	if p.Channel == nil || p.Normalizer == nil {
		return errors.Errorf("%s: missing channel or normalizer", p.Source)
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	if p.MaxRetryDelay < p.RetryDelay {
		p.MaxRetryDelay = DefaultMaxRetryDelay
	}

	delay := p.RetryDelay
	attempt := 0
	for {
		connected, err := p.runOnce(ctx)
		if ctx.Err() != nil {
			p.publish(Status{Source: p.Source, Kind: StatusStopped})
			return nil
		}
		if connected {
			delay, attempt = p.RetryDelay, 0
		}
		attempt++
		p.Metrics.TransportError(p.Source.String())
		log.Warn().Err(err).Str("source", p.Source.String()).Int("attempt", attempt).Dur("retry", delay).Msg("transport failed")
		p.publish(Status{Source: p.Source, Kind: StatusTransportError, Message: errMessage(err), Attempt: attempt})
		p.publish(Status{Source: p.Source, Kind: StatusRetrying, Attempt: attempt, Retry: delay})

		select {
		case <-ctx.Done():
			p.publish(Status{Source: p.Source, Kind: StatusStopped})
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxRetryDelay {
			delay = p.MaxRetryDelay
		}
	}
}

func (p *Producer) runOnce(ctx context.Context) (connected bool, err error) {
	stream, err := p.Transport.Open(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "open %s bus", p.Source)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.Debug().Err(cerr).Str("source", p.Source.String()).Msg("close stream")
		}
	}()

	log.Info().Str("source", p.Source.String()).Msg("listening")
	p.publish(Status{Source: p.Source, Kind: StatusConnected})

	counter, _ := stream.(DropCounter)
	var seen uint64
	for {
		raw, err := stream.Next(ctx)
		if counter != nil {
			if d := counter.Dropped(); d > seen {
				p.Channel.Discard(d - seen)
				seen = d
			}
		}
		if err != nil {
			return true, errors.Wrapf(err, "read %s bus", p.Source)
		}
		p.Channel.Offer(p.Normalizer.Normalize(ctx, raw))
	}
}

func (p *Producer) publish(st Status) {
	if st.At.IsZero() {
		st.At = time.Now()
	}
	if err := p.Status.Publish(st); err != nil {
		log.Debug().Err(err).Str("source", p.Source.String()).Msg("publish status")
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
