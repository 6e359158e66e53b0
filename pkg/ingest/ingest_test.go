package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/history"
	"github.com/go-go-golems/dbuddy/pkg/procinfo"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	events []bus.RawEvent
	err    error
	closed bool
	// lost is what the stream reports as discarded before Next
	lost uint64
}

func (s *fakeStream) Dropped() uint64 { return s.lost }

func (s *fakeStream) Next(ctx context.Context) (bus.RawEvent, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.err != nil {
		return bus.RawEvent{}, s.err
	}
	<-ctx.Done()
	return bus.RawEvent{}, ctx.Err()
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeTransport fails to open failOpens times, then hands out streams in order.
type fakeTransport struct {
	mu        sync.Mutex
	failOpens int
	streams   []*fakeStream
	opens     int
}

func (t *fakeTransport) Open(ctx context.Context) (Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	if t.failOpens > 0 {
		t.failOpens--
		return nil, errors.New("connection refused")
	}
	if len(t.streams) == 0 {
		return &fakeStream{}, nil
	}
	s := t.streams[0]
	t.streams = t.streams[1:]
	return s, nil
}

func (t *fakeTransport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func signal(member string, serial uint32) bus.RawEvent {
	return bus.RawEvent{
		Kind:   bus.Signal,
		Sender: ":1.1",
		Path:   "/org/example",
		Member: member,
		Serial: serial,
	}
}

func TestChannel_DropsNewestWhenFull(t *testing.T) {
	notify := make(chan struct{}, 1)
	ch := NewChannel(bus.SessionBus, 2, notify, nil)

	require.True(t, ch.Offer(&bus.Event{ID: 1}))
	require.True(t, ch.Offer(&bus.Event{ID: 2}))
	require.False(t, ch.Offer(&bus.Event{ID: 3}))
	require.Equal(t, uint64(1), ch.Dropped())
	require.Equal(t, uint64(2), ch.Accepted())
	require.Len(t, notify, 1)

	got := ch.Drain(nil)
	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].ID)
	require.Equal(t, uint64(2), got[1].ID)
	require.Equal(t, 0, ch.Len())
}

func TestNormalizer_ClampsTimestampsPerSource(t *testing.T) {
	n := NewNormalizer(bus.SystemBus, &IDSequence{}, nil, nil)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	a := signal("A", 1)
	a.At = base
	b := signal("B", 2)
	b.At = base.Add(-time.Second)

	ea := n.Normalize(context.Background(), a)
	eb := n.Normalize(context.Background(), b)
	require.Equal(t, base, ea.Timestamp)
	require.Equal(t, base, eb.Timestamp)
	require.Equal(t, bus.SystemBus, eb.Source)
	require.Less(t, ea.ID, eb.ID)
}

func TestNormalizer_DecodeFailureBecomesMarker(t *testing.T) {
	dec := DecoderFunc(func(raw bus.RawEvent) (bus.Value, error) {
		return bus.Value{}, errors.New("unsupported signature h")
	})
	n := NewNormalizer(bus.SessionBus, &IDSequence{}, dec, nil)

	raw := signal("Changed", 1)
	raw.Body = []any{int32(3)}
	ev := n.Normalize(context.Background(), raw)
	require.Equal(t, bus.ValueUndecodable, ev.Body.Kind)
	require.Contains(t, ev.Body.Text, "unsupported signature h")
	require.Equal(t, "Changed", ev.Member)
}

func TestNormalizer_DropsReplySerialOnSignal(t *testing.T) {
	n := NewNormalizer(bus.SessionBus, &IDSequence{}, nil, nil)
	raw := signal("Changed", 9)
	raw.ReplySerial = bus.U32(3)

	ev := n.Normalize(context.Background(), raw)
	require.Nil(t, ev.ReplySerial)
	require.NoError(t, ev.Validate())
}

func TestNormalizer_WarmsProcessCache(t *testing.T) {
	cache := procinfo.NewCache(procinfo.LookupFunc(func(ctx context.Context, pid uint32) (procinfo.Info, error) {
		return procinfo.Info{Argv: []string{"/usr/libexec/gsd-power"}}, nil
	}))
	n := NewNormalizer(bus.SessionBus, &IDSequence{}, nil, cache)
	raw := signal("Changed", 1)
	raw.SenderPID = bus.U32(812)

	n.Normalize(context.Background(), raw)
	require.Eventually(t, func() bool {
		_, ok := cache.Peek(812)
		return ok
	}, 2*time.Second, time.Millisecond)
	id, _ := cache.Peek(812)
	require.Equal(t, "gsd-power", id.AppName)
}

func TestNormalizer_DoesNotWaitForSlowLookups(t *testing.T) {
	release := make(chan struct{})
	cache := procinfo.NewCache(procinfo.LookupFunc(func(ctx context.Context, pid uint32) (procinfo.Info, error) {
		<-release
		return procinfo.Info{Comm: "slow"}, nil
	}))
	n := NewNormalizer(bus.SessionBus, &IDSequence{}, nil, cache)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := uint32(1); i <= 100; i++ {
			raw := signal("Tick", i)
			raw.SenderPID = bus.U32(900 + i%3)
			n.Normalize(context.Background(), raw)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("normalize blocked on a process lookup")
	}

	close(release)
	require.Eventually(t, func() bool { return cache.Len() == 3 }, 2*time.Second, time.Millisecond)
}

func TestIDSequence_UniqueAcrossGoroutines(t *testing.T) {
	ids := &IDSequence{}
	got := make([][]uint64, 8)
	var wg sync.WaitGroup
	for g := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				got[g] = append(got[g], ids.Next())
			}
		}()
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for _, part := range got {
		for _, id := range part {
			require.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
	}
	require.Len(t, seen, 4000)
}

func collectStatuses(t *testing.T, msgs <-chan *message.Message) (func() []StatusKind, <-chan struct{}) {
	t.Helper()
	var mu sync.Mutex
	var kinds []StatusKind
	stopped := make(chan struct{})
	go func() {
		for msg := range msgs {
			st, err := DecodeStatus(msg.Payload)
			msg.Ack()
			if err != nil || st.Source != bus.SessionBus {
				continue
			}
			mu.Lock()
			kinds = append(kinds, st.Kind)
			mu.Unlock()
			if st.Kind == StatusStopped {
				close(stopped)
				return
			}
		}
	}()
	return func() []StatusKind {
		mu.Lock()
		defer mu.Unlock()
		return append([]StatusKind(nil), kinds...)
	}, stopped
}

func TestProducer_RetriesAfterTransportFailureAndReportsStatus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	defer func() { _ = pubsub.Close() }()
	msgs, err := pubsub.Subscribe(context.Background(), TopicStatus)
	require.NoError(t, err)
	kinds, stopped := collectStatuses(t, msgs)

	tr := &fakeTransport{
		failOpens: 1,
		streams: []*fakeStream{
			{events: []bus.RawEvent{signal("A", 1)}, err: errors.New("bus went away")},
			{events: []bus.RawEvent{signal("B", 2)}},
		},
	}
	ch := NewChannel(bus.SessionBus, 16, make(chan struct{}, 1), nil)
	p := &Producer{
		Source:        bus.SessionBus,
		Transport:     tr,
		Normalizer:    NewNormalizer(bus.SessionBus, &IDSequence{}, nil, nil),
		Channel:       ch,
		Status:        &StatusPublisher{Pub: pubsub},
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 4 * time.Millisecond,
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return ch.Len() == 2 }, 3*time.Second, time.Millisecond)
	require.Equal(t, 3, tr.Opens())
	cancel()
	require.NoError(t, <-done)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("no stopped status, got %v", kinds())
	}
	require.Equal(t, []StatusKind{
		StatusTransportError, StatusRetrying,
		StatusConnected, StatusTransportError, StatusRetrying,
		StatusConnected, StatusStopped,
	}, kinds())

	got := ch.Drain(nil)
	require.Equal(t, "A", got[0].Member)
	require.Equal(t, "B", got[1].Member)
}

func TestProducer_CountsTransportDrops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &fakeTransport{streams: []*fakeStream{{events: []bus.RawEvent{signal("A", 1)}, lost: 5}}}
	ch := NewChannel(bus.SessionBus, 16, nil, nil)
	p := &Producer{
		Source:     bus.SessionBus,
		Transport:  tr,
		Normalizer: NewNormalizer(bus.SessionBus, &IDSequence{}, nil, nil),
		Channel:    ch,
	}
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return ch.Len() == 1 && ch.Dropped() == 5 }, 3*time.Second, time.Millisecond)
	require.Equal(t, uint64(1), ch.Accepted())
	cancel()
	require.NoError(t, <-done)
}

func TestChannel_DiscardCountsUpstreamLoss(t *testing.T) {
	ch := NewChannel(bus.SystemBus, 2, nil, nil)
	ch.Discard(0)
	require.Zero(t, ch.Dropped())
	ch.Discard(3)
	require.True(t, ch.Offer(&bus.Event{ID: 1}))
	require.Equal(t, uint64(3), ch.Dropped())
	require.Equal(t, 1, ch.Len())
}

func TestPipeline_DrainMovesEventsIntoHistory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transports := map[bus.Source]Transport{
		bus.SessionBus: &fakeTransport{streams: []*fakeStream{{events: []bus.RawEvent{signal("A", 1), signal("B", 2)}}}},
		bus.SystemBus:  &fakeTransport{streams: []*fakeStream{{events: []bus.RawEvent{signal("C", 1)}}}},
	}
	p := NewPipeline(transports, Options{ChannelCapacity: 8})
	h := history.New(100, nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	total := 0
	require.Eventually(t, func() bool {
		total += p.DrainWait(ctx, h, 10*time.Millisecond)
		return total == 3
	}, 3*time.Second, time.Millisecond)

	require.Equal(t, 2, h.Len(history.ModeSession))
	require.Equal(t, 1, h.Len(history.ModeSystem))
	require.Equal(t, 3, h.Len(history.ModeBoth))
	require.Zero(t, p.Dropped(bus.SessionBus))

	cancel()
	require.NoError(t, <-done)
}

func TestPipeline_RunWithoutSourcesFails(t *testing.T) {
	p := NewPipeline(nil, Options{})
	require.Error(t, p.Run(context.Background()))
}

func TestStatusPublisher_NilDiscards(t *testing.T) {
	var p *StatusPublisher
	require.NoError(t, p.Publish(Status{Kind: StatusConnected}))
}
