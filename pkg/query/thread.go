package query

import (
	"slices"

	"github.com/go-go-golems/dbuddy/pkg/bus"
)

// Thread is the conversation around a seed record.
type Thread struct {
	Seed   *bus.Event
	Events []*bus.Event
	// Missing lists calls that replies in Events answer but which are no
	// longer retained.
	Missing []bus.ConnSerial
}

// Closure follows serial and reply_serial links from seed across events in
// both directions until no new record is reached. The result is sorted by
// timestamp and holds each record once. A seed that is no longer in events
// still links the thread together but is not part of it.
func Closure(seed *bus.Event, events []*bus.Event) Thread {
	th := Thread{Seed: seed}
	if seed == nil {
		return th
	}

	byOrigin := make(map[bus.ConnSerial][]*bus.Event, len(events))
	byTarget := map[bus.ConnSerial][]*bus.Event{}
	retained := false
	for _, ev := range events {
		if ev == seed {
			retained = true
		}
		byOrigin[ev.Origin()] = append(byOrigin[ev.Origin()], ev)
		if t, ok := ev.ReplyTarget(); ok {
			byTarget[t] = append(byTarget[t], ev)
		}
	}

	seen := map[*bus.Event]bool{seed: true}
	missing := map[bus.ConnSerial]bool{}
	queue := []*bus.Event{seed}
	push := func(evs []*bus.Event) {
		for _, ev := range evs {
			if !seen[ev] {
				seen[ev] = true
				queue = append(queue, ev)
			}
		}
	}

	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]
		if ev != seed || retained {
			th.Events = append(th.Events, ev)
		}

		origin := ev.Origin()
		push(byOrigin[origin])
		push(byTarget[origin])

		if t, ok := ev.ReplyTarget(); ok {
			calls := byOrigin[t]
			if len(calls) == 0 && !missing[t] {
				missing[t] = true
				th.Missing = append(th.Missing, t)
			}
			push(calls)
			push(byTarget[t])
		}
	}

	slices.SortStableFunc(th.Events, compareEvents)
	return th
}

func compareEvents(a, b *bus.Event) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
