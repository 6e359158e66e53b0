package history

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/stretchr/testify/require"
)

func randomRun(r *rand.Rand, src bus.Source, firstID uint64, n int) []*bus.Event {
	out := make([]*bus.Event, n)
	ts := t0
	for i := range out {
		ts = ts.Add(time.Duration(r.Intn(3)) * time.Millisecond)
		out[i] = &bus.Event{ID: firstID + uint64(i), Source: src, Timestamp: ts}
	}
	return out
}

func TestMerged_SortedAndComplete(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		a := randomRun(r, bus.SessionBus, 1, r.Intn(40))
		b := randomRun(r, bus.SystemBus, 1000, r.Intn(40))

		var merged []*bus.Event
		for ev := range Merged(Events(a), Events(b)) {
			merged = append(merged, ev)
		}

		require.Len(t, merged, len(a)+len(b))
		require.True(t, slices.IsSortedFunc(merged, func(x, y *bus.Event) int {
			return x.Timestamp.Compare(y.Timestamp)
		}))

		seen := map[*bus.Event]int{}
		for _, ev := range merged {
			seen[ev]++
		}
		for _, ev := range append(slices.Clone(a), b...) {
			require.Equal(t, 1, seen[ev])
		}
	}
}

func TestMerged_TiesOrderedByID(t *testing.T) {
	a := []*bus.Event{{ID: 1, Timestamp: t0}, {ID: 4, Timestamp: t0}}
	b := []*bus.Event{{ID: 2, Timestamp: t0}, {ID: 3, Timestamp: t0}}
	var got []uint64
	for ev := range Merged(Events(a), Events(b)) {
		got = append(got, ev.ID)
	}
	require.Equal(t, []uint64{1, 2, 3, 4}, got)
}

func TestMerged_StopsEarly(t *testing.T) {
	a := mkEvents(bus.SessionBus, 1, 10)
	n := 0
	for range Merged(Events(a), Events(nil)) {
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
}

func TestHistory_ViewSharesRecords(t *testing.T) {
	h := New(100, nil)
	session := mkEvents(bus.SessionBus, 1, 3)
	system := []*bus.Event{
		{ID: 10, Source: bus.SystemBus, Timestamp: t0.Add(1500 * time.Microsecond)},
		{ID: 11, Source: bus.SystemBus, Timestamp: t0.Add(5 * time.Millisecond)},
	}
	h.Append(bus.SessionBus, session...)
	h.Append(bus.SystemBus, system...)

	both := h.View(ModeBoth, nil)
	require.Equal(t, []uint64{1, 10, 2, 3, 11}, ids(both))
	require.Same(t, session[0], both[0])
	require.Same(t, system[0], both[1])

	require.Equal(t, []uint64{1, 2, 3}, ids(h.View(ModeSession, nil)))
	require.Equal(t, []uint64{10, 11}, ids(h.View(ModeSystem, nil)))
	require.Equal(t, 5, h.Len(ModeBoth))
}

func TestHistory_VersionTracksEveryStore(t *testing.T) {
	h := New(2, nil)
	v0 := h.Version()
	h.Append(bus.SystemBus, mkEvents(bus.SystemBus, 1, 1)...)
	v1 := h.Version()
	require.NotEqual(t, v0, v1)
	h.SetMax(1)
	require.NotEqual(t, v1, h.Version())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Both")
	require.NoError(t, err)
	require.Equal(t, ModeBoth, m)
	require.Equal(t, ModeSession, m.Next())
	_, err = ParseMode("kernel")
	require.Error(t, err)
}
