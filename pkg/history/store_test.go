package history

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func mkEvents(src bus.Source, firstID uint64, n int) []*bus.Event {
	out := make([]*bus.Event, n)
	for i := range out {
		id := firstID + uint64(i)
		out[i] = &bus.Event{ID: id, Source: src, Timestamp: t0.Add(time.Duration(id) * time.Millisecond), Serial: uint32(id)}
	}
	return out
}

func ids(events []*bus.Event) []uint64 {
	out := make([]uint64, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestStore_KeepsNewestWithinMax(t *testing.T) {
	s := NewStore(bus.SessionBus, 3, nil)
	for _, ev := range mkEvents(bus.SessionBus, 1, 5) {
		s.Append(ev)
	}
	require.Equal(t, []uint64{3, 4, 5}, ids(s.AppendTo(nil)))
	require.Equal(t, uint64(2), s.Trimmed())
}

func TestStore_BoundHoldsForEveryBatch(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	s := NewStore(bus.SystemBus, 50, nil)
	next := uint64(1)
	for round := 0; round < 200; round++ {
		n := r.Intn(120)
		trimmed := s.Append(mkEvents(bus.SystemBus, next, n)...)
		next += uint64(n)
		require.LessOrEqual(t, s.Len(), 50)
		require.LessOrEqual(t, trimmed, n)

		got := ids(s.AppendTo(nil))
		require.True(t, slices.IsSorted(got))
		if len(got) > 0 {
			require.Equal(t, next-1, got[len(got)-1])
		}
	}
	require.Equal(t, next-1, uint64(s.Len())+s.Trimmed())
}

func TestStore_AtAndAppendToAgreeAcrossWrap(t *testing.T) {
	s := NewStore(bus.SessionBus, 4, nil)
	s.Append(mkEvents(bus.SessionBus, 1, 6)...)
	s.Append(mkEvents(bus.SessionBus, 7, 1)...)

	var all []uint64
	for _, ev := range s.AppendTo(nil) {
		all = append(all, ev.ID)
	}
	require.Equal(t, []uint64{4, 5, 6, 7}, all)
	for i := 0; i < s.Len(); i++ {
		require.Equal(t, all[i], s.At(i).ID)
	}
}

func TestStore_SetMaxKeepsNewest(t *testing.T) {
	s := NewStore(bus.SessionBus, 10, nil)
	s.Append(mkEvents(bus.SessionBus, 1, 10)...)
	v := s.Version()

	s.SetMax(4)
	require.Equal(t, []uint64{7, 8, 9, 10}, ids(s.AppendTo(nil)))
	require.NotEqual(t, v, s.Version())

	s.SetMax(6)
	s.Append(mkEvents(bus.SessionBus, 11, 3)...)
	require.Equal(t, []uint64{8, 9, 10, 11, 12, 13}, ids(s.AppendTo(nil)))
}

func TestStore_ClearBumpsVersion(t *testing.T) {
	s := NewStore(bus.SessionBus, 10, nil)
	s.Append(mkEvents(bus.SessionBus, 1, 3)...)
	v := s.Version()
	s.Clear()
	require.Equal(t, 0, s.Len())
	require.NotEqual(t, v, s.Version())
}
