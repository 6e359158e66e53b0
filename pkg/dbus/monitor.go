// Package dbus adapts godbus monitor connections to the ingest transport.
package dbus

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/ingest"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	becomeMonitor   = "org.freedesktop.DBus.Monitoring.BecomeMonitor"
	getUnixPID      = "org.freedesktop.DBus.GetConnectionUnixProcessID"
	nameOwnerChange = "NameOwnerChanged"

	DefaultBuffer = 1024
	pidTimeout    = 250 * time.Millisecond
	pidQueue      = 256
)

// Monitor opens a monitoring connection to one bus. A second, ordinary
// connection is used to ask the daemon for peer pids, since a monitor may
// not send messages.
type Monitor struct {
	Source bus.Source
	// Rules are match rules passed to BecomeMonitor; empty means everything.
	Rules  []string
	Buffer int

	connect func() (*godbus.Conn, error)
}

func NewMonitor(src bus.Source) *Monitor {
	m := &Monitor{Source: src, Buffer: DefaultBuffer}
	switch src {
	case bus.SystemBus:
		m.connect = func() (*godbus.Conn, error) { return godbus.ConnectSystemBus() }
	default:
		m.connect = func() (*godbus.Conn, error) { return godbus.ConnectSessionBus() }
	}
	return m
}

func (m *Monitor) Open(ctx context.Context) (ingest.Stream, error) {
	conn, err := m.connect()
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s bus", m.Source)
	}
	rules := m.Rules
	if rules == nil {
		rules = []string{}
	}
	call := conn.BusObject().CallWithContext(ctx, becomeMonitor, 0, rules, uint32(0))
	if call.Err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(call.Err, "become monitor")
	}

	buf := m.Buffer
	if buf < 1 {
		buf = DefaultBuffer
	}
	in := make(chan *godbus.Message, buf)
	conn.Eavesdrop(in)
	closers := []io.Closer{conn}

	var lookup pidLookup
	self := ""
	helper, err := m.connect()
	if err != nil {
		log.Warn().Err(err).Str("source", m.Source.String()).Msg("no helper connection, pids unavailable")
	} else {
		closers = append([]io.Closer{helper}, closers...)
		if names := helper.Names(); len(names) > 0 {
			self = names[0]
		}
		lookup = func(ctx context.Context, name string) (uint32, error) {
			var pid uint32
			err := helper.BusObject().CallWithContext(ctx, getUnixPID, 0, name).Store(&pid)
			return pid, err
		}
	}
	return newStream(streamConfig{
		source:  m.Source,
		self:    self,
		in:      in,
		buffer:  buf,
		gone:    conn.Context().Done(),
		lookup:  lookup,
		closers: closers,
	}), nil
}

type pidLookup func(ctx context.Context, name string) (uint32, error)

type streamConfig struct {
	source bus.Source
	// self is the helper's unique name; its own traffic is hidden.
	self    string
	in      <-chan *godbus.Message
	buffer  int
	gone    <-chan struct{}
	lookup  pidLookup
	closers []io.Closer
}

// stream keeps the read path free of bus round trips. A relay goroutine
// empties the godbus eavesdrop channel into a bounded queue, counting what
// does not fit, and a resolver goroutine asks the daemon for peer pids.
// Next only ever reads pids that are already known, so the first messages
// of a peer may carry none.
type stream struct {
	streamConfig
	out     chan *godbus.Message
	names   chan string
	dropped atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu sync.Mutex
	// unique names are never reused on a bus, so their pid never changes;
	// a nil entry is a lookup that is queued or failed
	pids map[string]*uint32
}

func newStream(cfg streamConfig) *stream {
	if cfg.buffer < 1 {
		cfg.buffer = DefaultBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{
		streamConfig: cfg,
		out:          make(chan *godbus.Message, cfg.buffer),
		names:        make(chan string, pidQueue),
		ctx:          ctx,
		cancel:       cancel,
		pids:         map[string]*uint32{},
	}
	s.wg.Add(1)
	go s.relay()
	if s.lookup != nil {
		s.wg.Add(1)
		go s.resolve()
	}
	return s
}

func (s *stream) relay() {
	defer s.wg.Done()
	defer close(s.out)
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.in:
			if !ok {
				return
			}
			select {
			case s.out <- msg:
			default:
				s.dropped.Add(1)
			}
		}
	}
}

func (s *stream) resolve() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case name := <-s.names:
			ctx, cancel := context.WithTimeout(s.ctx, pidTimeout)
			pid, err := s.lookup(ctx, name)
			timedOut := ctx.Err() != nil
			cancel()

			s.mu.Lock()
			switch {
			case err == nil:
				s.pids[name] = &pid
			case timedOut:
				// forget the name so a later message retries
				delete(s.pids, name)
			default:
				log.Debug().Err(err).Str("name", name).Msg("pid lookup failed")
			}
			s.mu.Unlock()
		}
	}
}

// Dropped is the number of messages discarded because Next fell behind.
func (s *stream) Dropped() uint64 { return s.dropped.Load() }

func (s *stream) Next(ctx context.Context) (bus.RawEvent, error) {
	for {
		select {
		case <-ctx.Done():
			return bus.RawEvent{}, ctx.Err()
		case <-s.gone:
			return bus.RawEvent{}, errors.New("connection closed")
		case msg, ok := <-s.out:
			if !ok {
				return bus.RawEvent{}, errors.New("monitor channel closed")
			}
			raw := Convert(msg, time.Now())
			if s.self != "" && (raw.Sender == s.self || raw.Destination == s.self) {
				continue
			}
			s.track(raw)
			raw.SenderPID = s.pid(raw.Sender)
			raw.DestinationPID = s.pid(raw.Destination)
			return raw, nil
		}
	}
}

// track follows NameOwnerChanged so pids of new connections are looked up
// before they send anything, and vanished ones are forgotten.
func (s *stream) track(raw bus.RawEvent) {
	if raw.Kind != bus.Signal || raw.Member != nameOwnerChange {
		return
	}
	body, ok := raw.Body.([]interface{})
	if !ok || len(body) != 3 {
		return
	}
	name, _ := body[0].(string)
	oldOwner, _ := body[1].(string)
	newOwner, _ := body[2].(string)
	switch {
	case name == newOwner && oldOwner == "":
		s.pid(name)
	case name == oldOwner && newOwner == "":
		s.mu.Lock()
		delete(s.pids, name)
		s.mu.Unlock()
	}
}

// pid returns the known pid of a unique name and queues a lookup for names
// not seen before. It never waits on the bus.
func (s *stream) pid(name string) *uint32 {
	if s.lookup == nil || !strings.HasPrefix(name, ":") {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pids[name]; ok {
		return p
	}
	select {
	case s.names <- name:
		s.pids[name] = nil
	default:
	}
	return nil
}

func (s *stream) Close() error {
	s.cancel()
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	if err := stderrors.Join(errs...); err != nil {
		return errors.Wrapf(err, "close %s bus", s.source)
	}
	return nil
}

// Convert copies the header of msg into a RawEvent. The body is left as
// godbus decoded it.
func Convert(msg *godbus.Message, at time.Time) bus.RawEvent {
	raw := bus.RawEvent{
		At:          at,
		Kind:        kindOf(msg.Type),
		Sender:      header(msg, godbus.FieldSender),
		Destination: header(msg, godbus.FieldDestination),
		Path:        header(msg, godbus.FieldPath),
		Interface:   header(msg, godbus.FieldInterface),
		Member:      header(msg, godbus.FieldMember),
		ErrorName:   header(msg, godbus.FieldErrorName),
		Signature:   header(msg, godbus.FieldSignature),
		Serial:      msg.Serial(),
	}
	if v, ok := msg.Headers[godbus.FieldReplySerial]; ok {
		if rs, ok := v.Value().(uint32); ok {
			raw.ReplySerial = bus.U32(rs)
		}
	}
	if len(msg.Body) > 0 {
		raw.Body = msg.Body
	}
	return raw
}

func kindOf(t godbus.Type) bus.Kind {
	switch t {
	case godbus.TypeMethodCall:
		return bus.MethodCall
	case godbus.TypeMethodReply:
		return bus.MethodReturn
	case godbus.TypeError:
		return bus.Error
	default:
		return bus.Signal
	}
}

func header(msg *godbus.Message, f godbus.HeaderField) string {
	v, ok := msg.Headers[f]
	if !ok {
		return ""
	}
	switch x := v.Value().(type) {
	case string:
		return x
	case godbus.ObjectPath:
		return string(x)
	case godbus.Signature:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
