package history

import (
	"iter"

	"github.com/go-go-golems/dbuddy/pkg/bus"
)

// Sequence is a random-access, timestamp-ordered run of events.
type Sequence interface {
	Len() int
	At(i int) *bus.Event
}

// Events adapts a slice to Sequence.
type Events []*bus.Event

func (e Events) Len() int { return len(e) }

func (e Events) At(i int) *bus.Event { return e[i] }

// Merged lazily merges two timestamp-ordered sequences. Equal timestamps
// are ordered by event ID, which follows ingestion order.
func Merged(a, b Sequence) iter.Seq[*bus.Event] {
	return func(yield func(*bus.Event) bool) {
		i, j := 0, 0
		na, nb := a.Len(), b.Len()
		for i < na && j < nb {
			ea, eb := a.At(i), b.At(j)
			if before(eb, ea) {
				if !yield(eb) {
					return
				}
				j++
				continue
			}
			if !yield(ea) {
				return
			}
			i++
		}
		for ; i < na; i++ {
			if !yield(a.At(i)) {
				return
			}
		}
		for ; j < nb; j++ {
			if !yield(b.At(j)) {
				return
			}
		}
	}
}

func before(x, y *bus.Event) bool {
	if x.Timestamp.Equal(y.Timestamp) {
		return x.ID < y.ID
	}
	return x.Timestamp.Before(y.Timestamp)
}
