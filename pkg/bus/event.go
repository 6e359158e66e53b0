package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Source int

const (
	SessionBus Source = iota
	SystemBus
)

// Sources lists every bus the inspector listens to, in display order.
var Sources = []Source{SessionBus, SystemBus}

func (s Source) String() string {
	switch s {
	case SessionBus:
		return "session"
	case SystemBus:
		return "system"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

func ParseSource(s string) (Source, error) {
	switch strings.ToLower(s) {
	case "session", "user":
		return SessionBus, nil
	case "system":
		return SystemBus, nil
	default:
		return 0, errors.Errorf("unknown bus %q", s)
	}
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(b []byte) error {
	v, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type Kind int

const (
	Signal Kind = iota
	MethodCall
	MethodReturn
	Error
)

func (k Kind) String() string {
	switch k {
	case Signal:
		return "signal"
	case MethodCall:
		return "call"
	case MethodReturn:
		return "return"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the names printed by Kind.String plus a few aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "signal", "sig":
		return Signal, nil
	case "call", "method_call", "methodcall":
		return MethodCall, nil
	case "return", "reply", "method_return", "methodreturn":
		return MethodReturn, nil
	case "error", "err":
		return Error, nil
	default:
		return 0, errors.Errorf("unknown message kind %q", s)
	}
}

// IsReply reports whether records of this kind may carry a reply serial.
func (k Kind) IsReply() bool {
	return k == MethodReturn || k == Error
}

// RawEvent is what a transport hands to a producer before normalization.
type RawEvent struct {
	At          time.Time
	Kind        Kind
	Sender      string
	Destination string
	Path        string
	Interface   string
	Member      string
	ErrorName   string
	Signature   string
	Serial      uint32
	ReplySerial *uint32
	// Body is transport specific and only interpreted by a Decoder.
	Body any

	SenderPID      *uint32
	DestinationPID *uint32
}

// Event is one normalized bus message. Events are immutable once built and
// are shared by pointer between the history, query results and renderers.
type Event struct {
	ID          uint64
	Timestamp   time.Time
	Source      Source
	Kind        Kind
	Sender      string
	Destination string
	Path        string
	Interface   string
	Member      string
	ErrorName   string
	Signature   string
	Serial      uint32
	ReplySerial *uint32
	Body        Value

	SenderPID      *uint32
	DestinationPID *uint32
}

var ErrReplySerialOnNonReply = errors.New("reply serial on a message that is not a reply")

func (e *Event) Validate() error {
	if e.ReplySerial != nil && !e.Kind.IsReply() {
		return errors.Wrapf(ErrReplySerialOnNonReply, "%s serial %d", e.Kind, e.Serial)
	}
	return nil
}

// ConnSerial is a serial scoped to the connection that issued it. Serials
// are only unique per connection, so thread keys always carry the
// connection name and the bus it lives on.
type ConnSerial struct {
	Source Source
	Conn   string
	Serial uint32
}

func (k ConnSerial) String() string {
	return fmt.Sprintf("%s/%s#%d", k.Source, k.Conn, k.Serial)
}

// Origin is the key under which other messages refer to this one.
func (e *Event) Origin() ConnSerial {
	return ConnSerial{Source: e.Source, Conn: e.Sender, Serial: e.Serial}
}

// ReplyTarget is the key of the call this record answers. A reply travels
// back to the caller, so the call was issued by the reply's destination.
func (e *Event) ReplyTarget() (ConnSerial, bool) {
	if e.ReplySerial == nil {
		return ConnSerial{}, false
	}
	return ConnSerial{Source: e.Source, Conn: e.Destination, Serial: *e.ReplySerial}, true
}

// Field returns the textual value of a header field by name.
func (e *Event) Field(name string) string {
	switch name {
	case "sender":
		return e.Sender
	case "destination":
		return e.Destination
	case "path":
		return e.Path
	case "interface":
		return e.Interface
	case "member":
		if e.Kind == Error && e.Member == "" {
			return e.ErrorName
		}
		return e.Member
	case "serial":
		return fmt.Sprintf("%d", e.Serial)
	case "reply_serial":
		if e.ReplySerial == nil {
			return ""
		}
		return fmt.Sprintf("%d", *e.ReplySerial)
	case "kind":
		return e.Kind.String()
	default:
		return ""
	}
}

func U32(v uint32) *uint32 {
	return &v
}
