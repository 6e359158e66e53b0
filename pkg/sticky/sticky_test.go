package sticky

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type span struct {
	key        string
	start, len int
}

// fakeGrouped counts GroupAt calls so tests can check the per-frame cost.
type fakeGrouped struct {
	n     int
	spans []span
	calls int
}

func (g *fakeGrouped) Len() int { return g.n }

func (g *fakeGrouped) GroupAt(row int) (string, int, int, bool) {
	g.calls++
	for _, s := range g.spans {
		if row >= s.start && row < s.start+s.len {
			return s.key, s.start, s.len, true
		}
	}
	return "", 0, 0, false
}

func threeGroups() *fakeGrouped {
	return &fakeGrouped{n: 10, spans: []span{{"a", 0, 4}, {"b", 4, 3}, {"c", 7, 3}}}
}

func TestProject_PinsGroupOfTopRow(t *testing.T) {
	f := Project(threeGroups(), Viewport{Top: 2, Height: 3})
	require.True(t, f.Pinned)
	require.Equal(t, "a", f.PinnedKey)
	require.Equal(t, 4, f.PinnedCount)
	require.True(t, f.HasMoreAbove)
	require.False(t, f.HasMoreBelow)

	require.Len(t, f.Rows, 3)
	require.Equal(t, []Row{{2, false}, {3, false}, {4, true}}, f.Rows)
}

func TestProject_GroupContinuesBelow(t *testing.T) {
	f := Project(threeGroups(), Viewport{Top: 4, Height: 2})
	require.Equal(t, "b", f.PinnedKey)
	require.False(t, f.HasMoreAbove)
	require.True(t, f.HasMoreBelow)
}

func TestProject_ClampsPastEnd(t *testing.T) {
	f := Project(threeGroups(), Viewport{Top: 50, Height: 4})
	require.Equal(t, Viewport{Top: 6, Height: 4}, f.Viewport)
	require.Equal(t, "b", f.PinnedKey)
	require.True(t, f.HasMoreAbove)
	require.False(t, f.HasMoreBelow)
}

func TestProject_Ungrouped(t *testing.T) {
	f := Project(&fakeGrouped{n: 5}, Viewport{Top: 0, Height: 3})
	require.False(t, f.Pinned)
	require.Len(t, f.Rows, 3)
	for _, r := range f.Rows {
		require.False(t, r.GroupStart)
	}
}

func TestProject_Empty(t *testing.T) {
	f := Project(&fakeGrouped{}, Viewport{Top: 3, Height: 10})
	require.Empty(t, f.Rows)
	require.False(t, f.Pinned)
	require.Equal(t, 0, f.Viewport.Top)
}

func TestProject_CostBoundedByHeight(t *testing.T) {
	g := &fakeGrouped{n: 100000, spans: []span{{"all", 0, 100000}}}
	Project(g, Viewport{Top: 50000, Height: 20})
	require.LessOrEqual(t, g.calls, 21)
}

func TestViewport_Follow(t *testing.T) {
	vp := Viewport{Top: 0, Height: 5}
	vp = vp.Follow(7, 20)
	require.Equal(t, 3, vp.Top)
	vp = vp.Follow(1, 20)
	require.Equal(t, 1, vp.Top)
	vp = vp.Follow(19, 20)
	require.Equal(t, 15, vp.Top)
	vp = vp.Follow(3, 2)
	require.Equal(t, 0, vp.Top)
}
