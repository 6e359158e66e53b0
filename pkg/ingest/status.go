package ingest

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/pkg/errors"
)

const TopicStatus = "dbuddy.status"

const DomainTypeSourceStatus = "source.status"

type StatusKind string

const (
	StatusConnected      StatusKind = "connected"
	StatusTransportError StatusKind = "transport-error"
	StatusRetrying       StatusKind = "retrying"
	StatusStopped        StatusKind = "stopped"
)

// Status is a per-source condition the consumer should surface.
type Status struct {
	Source  bus.Source    `json:"source"`
	Kind    StatusKind    `json:"kind"`
	Message string        `json:"message,omitempty"`
	Attempt int           `json:"attempt,omitempty"`
	Retry   time.Duration `json:"retry_ns,omitempty"`
	At      time.Time     `json:"at"`
}

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(typ string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "marshal %s payload", typ)
	}
	return Envelope{Type: typ, Payload: b}, nil
}

func (e Envelope) MarshalJSONBytes() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return b, nil
}

// DecodeStatus parses a message published by StatusPublisher.
func DecodeStatus(payload []byte) (Status, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Status{}, errors.Wrap(err, "parse envelope")
	}
	if env.Type != DomainTypeSourceStatus {
		return Status{}, errors.Errorf("unexpected envelope type %q", env.Type)
	}
	var st Status
	if err := json.Unmarshal(env.Payload, &st); err != nil {
		return Status{}, errors.Wrap(err, "parse status")
	}
	return st, nil
}

// StatusPublisher sends Status updates on TopicStatus. A nil publisher
// discards them.
type StatusPublisher struct {
	Pub message.Publisher
}

func (p *StatusPublisher) Publish(st Status) error {
	if p == nil || p.Pub == nil {
		return nil
	}
	env, err := NewEnvelope(DomainTypeSourceStatus, st)
	if err != nil {
		return err
	}
	b, err := env.MarshalJSONBytes()
	if err != nil {
		return err
	}
	return p.Pub.Publish(TopicStatus, message.NewMessage(watermill.NewUUID(), b))
}
