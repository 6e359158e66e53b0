package ingest

import (
	"context"

	"github.com/go-go-golems/dbuddy/pkg/bus"
)

// Transport connects to one bus. Open is called again after every failure.
type Transport interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream delivers raw events until it fails or ctx is cancelled.
type Stream interface {
	Next(ctx context.Context) (bus.RawEvent, error)
	Close() error
}

// DropCounter is implemented by streams that buffer internally and may
// discard messages before Next returns them. The count is cumulative.
type DropCounter interface {
	Dropped() uint64
}

// Decoder turns a transport body into a value tree.
type Decoder interface {
	Decode(raw bus.RawEvent) (bus.Value, error)
}

type DecoderFunc func(raw bus.RawEvent) (bus.Value, error)

func (f DecoderFunc) Decode(raw bus.RawEvent) (bus.Value, error) {
	return f(raw)
}
