// Package sticky computes which group header stays pinned at the top of a
// scrolled, grouped list.
package sticky

// Grouped is a row sequence split into contiguous groups. GroupAt must be
// O(1); ok is false when rows are not grouped.
type Grouped interface {
	Len() int
	GroupAt(row int) (key string, start, n int, ok bool)
}

// Viewport is the visible window of rows. It is the only state that
// survives between frames.
type Viewport struct {
	Top    int
	Height int
}

// Clamp keeps the viewport inside a list of n rows.
func (v Viewport) Clamp(n int) Viewport {
	if v.Height < 0 {
		v.Height = 0
	}
	if v.Top > n-v.Height {
		v.Top = n - v.Height
	}
	if v.Top < 0 {
		v.Top = 0
	}
	return v
}

// Follow scrolls the minimum amount needed to show row selected.
func (v Viewport) Follow(selected, n int) Viewport {
	if v.Height > 0 {
		if selected < v.Top {
			v.Top = selected
		} else if selected >= v.Top+v.Height {
			v.Top = selected - v.Height + 1
		}
	}
	return v.Clamp(n)
}

// Bottom is one past the last visible row.
func (v Viewport) Bottom(n int) int {
	return min(v.Top+v.Height, n)
}

type Row struct {
	Index int
	// GroupStart is set on the first row of a group.
	GroupStart bool
}

// Frame is everything a renderer needs for one screen.
type Frame struct {
	Viewport Viewport
	Rows     []Row

	Pinned      bool
	PinnedKey   string
	PinnedCount int
	// HasMoreAbove is set when the pinned group has rows above the viewport.
	HasMoreAbove bool
	// HasMoreBelow is set when the pinned group continues past the bottom.
	HasMoreBelow bool
}

// Project computes the frame for vp. It looks at the visible rows only.
func Project(seq Grouped, vp Viewport) Frame {
	n := seq.Len()
	vp = vp.Clamp(n)
	f := Frame{Viewport: vp}
	bottom := vp.Bottom(n)
	if bottom <= vp.Top {
		return f
	}

	f.Rows = make([]Row, 0, bottom-vp.Top)
	for i := vp.Top; i < bottom; i++ {
		_, start, _, ok := seq.GroupAt(i)
		f.Rows = append(f.Rows, Row{Index: i, GroupStart: ok && start == i})
	}

	key, start, count, ok := seq.GroupAt(vp.Top)
	if !ok {
		return f
	}
	f.Pinned = true
	f.PinnedKey = key
	f.PinnedCount = count
	f.HasMoreAbove = start < vp.Top
	f.HasMoreBelow = start+count > bottom
	return f
}
