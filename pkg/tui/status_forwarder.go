package tui

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/dbuddy/pkg/ingest"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// StatusForwarder relays source statuses from the watermill topic to the
// bubbletea program.
type StatusForwarder struct {
	Sub  message.Subscriber
	Send func(tea.Msg)

	msgs <-chan *message.Message
}

// Subscribe attaches to the status topic. Call it before the producers
// start so no early status is missed; Run subscribes on its own otherwise.
func (f *StatusForwarder) Subscribe(ctx context.Context) error {
	if f.Sub == nil {
		return errors.New("missing Subscriber")
	}
	msgs, err := f.Sub.Subscribe(ctx, ingest.TopicStatus)
	if err != nil {
		return errors.Wrap(err, "subscribe status topic")
	}
	f.msgs = msgs
	return nil
}

func (f *StatusForwarder) Run(ctx context.Context) error {
	if f.Send == nil {
		return errors.New("missing Send")
	}
	if f.msgs == nil {
		if err := f.Subscribe(ctx); err != nil {
			return err
		}
	}
	msgs := f.msgs
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			st, err := ingest.DecodeStatus(msg.Payload)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("uuid", msg.UUID).Msg("bad status message")
				continue
			}
			f.Send(StatusMsg{Status: st})
		}
	}
}
