package query

import (
	"math/rand"
	"testing"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/stretchr/testify/require"
)

func eventIDs(events []*bus.Event) []uint64 {
	out := make([]uint64, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

// threadFixture: 1 is a call from :1.1, 4 answers it, 5 answers 4.
func threadFixture() []*bus.Event {
	mk := func(id uint64, kind bus.Kind, sender, dest string, serial uint32, reply *uint32) *bus.Event {
		return &bus.Event{
			ID: id, Source: bus.SessionBus, Kind: kind,
			Timestamp: now.Add(time.Duration(id) * time.Millisecond),
			Sender:    sender, Destination: dest, Serial: serial, ReplySerial: reply,
		}
	}
	return []*bus.Event{
		mk(1, bus.MethodCall, ":1.1", ":1.2", 1, nil),
		mk(2, bus.Signal, ":1.1", "", 2, nil),
		mk(3, bus.Signal, ":1.1", "", 3, nil),
		mk(4, bus.MethodReturn, ":1.2", ":1.1", 4, bus.U32(1)),
		mk(5, bus.MethodReturn, ":1.1", ":1.2", 5, bus.U32(4)),
	}
}

func TestClosure_FollowsReplyChain(t *testing.T) {
	events := threadFixture()
	th := Closure(events[0], events)
	require.Equal(t, []uint64{1, 4, 5}, eventIDs(th.Events))
	require.Empty(t, th.Missing)

	// any member of the conversation yields the same closure
	th = Closure(events[4], events)
	require.Equal(t, []uint64{1, 4, 5}, eventIDs(th.Events))
}

func TestClosure_SerialsAreConnectionScoped(t *testing.T) {
	events := threadFixture()
	other := &bus.Event{
		ID: 6, Source: bus.SessionBus, Kind: bus.MethodCall, Timestamp: now.Add(6 * time.Millisecond),
		Sender: ":1.9", Serial: 1,
	}
	events = append(events, other)
	th := Closure(events[0], events)
	require.Equal(t, []uint64{1, 4, 5}, eventIDs(th.Events))

	systemTwin := &bus.Event{
		ID: 7, Source: bus.SystemBus, Kind: bus.MethodReturn, Timestamp: now.Add(7 * time.Millisecond),
		Sender: ":1.2", Destination: ":1.1", Serial: 9, ReplySerial: bus.U32(1),
	}
	events = append(events, systemTwin)
	th = Closure(events[0], events)
	require.Equal(t, []uint64{1, 4, 5}, eventIDs(th.Events))
}

func TestClosure_ReportsTrimmedCall(t *testing.T) {
	events := threadFixture()[1:] // the call is gone
	th := Closure(events[2], events)
	require.Equal(t, []uint64{4, 5}, eventIDs(th.Events))
	require.Equal(t, []bus.ConnSerial{{Source: bus.SessionBus, Conn: ":1.1", Serial: 1}}, th.Missing)
}

func TestClosure_TrimmedSeedIsNotEmitted(t *testing.T) {
	all := threadFixture()
	th := Closure(all[0], all[1:])
	require.Equal(t, []uint64{4, 5}, eventIDs(th.Events))
	require.Equal(t, []bus.ConnSerial{{Source: bus.SessionBus, Conn: ":1.1", Serial: 1}}, th.Missing)
	require.Same(t, all[0], th.Seed)

	th = Closure(all[1], all[2:])
	require.Empty(t, th.Events)
	require.Empty(t, th.Missing)
}

func TestClosure_SortsByTimestamp(t *testing.T) {
	events := threadFixture()
	// the reply was observed with an earlier clock than the call
	events[3].Timestamp = now.Add(-time.Second)
	th := Closure(events[0], events)
	require.Equal(t, []uint64{4, 1, 5}, eventIDs(th.Events))
}

func TestClosure_Soundness(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	conns := []string{":1.1", ":1.2", ":1.3"}
	var events []*bus.Event
	for i := 1; i <= 200; i++ {
		e := &bus.Event{
			ID: uint64(i), Source: bus.SessionBus, Kind: bus.MethodCall,
			Timestamp: now.Add(time.Duration(i) * time.Millisecond),
			Sender:    conns[r.Intn(len(conns))], Destination: conns[r.Intn(len(conns))],
			Serial:    uint32(r.Intn(40)),
		}
		if r.Intn(2) == 0 {
			e.Kind = bus.MethodReturn
			e.ReplySerial = bus.U32(uint32(r.Intn(40)))
		}
		events = append(events, e)
	}

	linked := func(a, b *bus.Event) bool {
		if a.Origin() == b.Origin() {
			return true
		}
		ta, oka := a.ReplyTarget()
		tb, okb := b.ReplyTarget()
		return (oka && ta == b.Origin()) || (okb && tb == a.Origin()) || (oka && okb && ta == tb)
	}

	for _, seed := range events[:20] {
		th := Closure(seed, events)

		in := map[*bus.Event]bool{}
		for _, e := range th.Events {
			require.False(t, in[e], "duplicate record %d", e.ID)
			in[e] = true
		}
		require.True(t, in[seed])

		// closed: nothing outside links to anything inside
		for _, e := range events {
			if in[e] {
				continue
			}
			for m := range in {
				require.False(t, linked(e, m), "record %d links to %d but is outside", e.ID, m.ID)
			}
		}
	}
}
