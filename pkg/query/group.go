package query

import (
	"slices"
	"strconv"
	"strings"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/pkg/errors"
)

type GroupKey int

const (
	GroupSender GroupKey = iota
	GroupMember
	GroupPath
	GroupSerial
	GroupNone
)

// AllGroupKeys is the picker order.
var AllGroupKeys = []GroupKey{GroupSender, GroupMember, GroupPath, GroupSerial, GroupNone}

func (k GroupKey) String() string {
	switch k {
	case GroupSender:
		return "sender"
	case GroupMember:
		return "member"
	case GroupPath:
		return "path"
	case GroupSerial:
		return "serial"
	case GroupNone:
		return "none"
	default:
		return "unknown"
	}
}

func ParseGroupKey(s string) (GroupKey, error) {
	for _, k := range AllGroupKeys {
		if strings.EqualFold(strings.TrimSpace(s), k.String()) {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown group key %q", s)
}

// GroupKeys is a set of keys combined into one flat composite key.
type GroupKeys []GroupKey

// ParseGroupKeys reads a comma separated list such as "sender,path".
func ParseGroupKeys(s string) (GroupKeys, error) {
	if strings.TrimSpace(s) == "" {
		return GroupKeys{GroupNone}, nil
	}
	var keys GroupKeys
	for _, part := range strings.Split(s, ",") {
		k, err := ParseGroupKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys.Normalize(), nil
}

// Normalize dedupes keys into picker order. none only survives alone, and
// an empty set becomes none.
func (ks GroupKeys) Normalize() GroupKeys {
	var out GroupKeys
	for _, k := range AllGroupKeys {
		if k != GroupNone && slices.Contains(ks, k) {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return GroupKeys{GroupNone}
	}
	return out
}

// Toggle flips k in the set. Selecting none clears every other key.
func (ks GroupKeys) Toggle(k GroupKey) GroupKeys {
	if k == GroupNone {
		return GroupKeys{GroupNone}
	}
	if slices.Contains(ks, k) {
		return slices.DeleteFunc(slices.Clone(ks), func(x GroupKey) bool { return x == k }).Normalize()
	}
	return append(slices.Clone(ks), k).Normalize()
}

func (ks GroupKeys) IsNone() bool {
	n := ks.Normalize()
	return len(n) == 1 && n[0] == GroupNone
}

func (ks GroupKeys) Equal(other GroupKeys) bool {
	return slices.Equal(ks.Normalize(), other.Normalize())
}

func (ks GroupKeys) String() string {
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

// KeySeparator joins the parts of a composite group key.
const KeySeparator = " | "

// Key is the composite group key of ev.
func (ks GroupKeys) Key(ev *bus.Event) string {
	var b strings.Builder
	for i, k := range ks {
		if k == GroupNone {
			continue
		}
		if i > 0 {
			b.WriteString(KeySeparator)
		}
		switch k {
		case GroupSender:
			b.WriteString(ev.Sender)
		case GroupMember:
			b.WriteString(ev.Field("member"))
		case GroupPath:
			b.WriteString(ev.Path)
		case GroupSerial:
			b.WriteString(strconv.FormatUint(uint64(ev.Serial), 10))
		}
	}
	return b.String()
}

// Group is a contiguous run of rows sharing a key.
type Group struct {
	Key   string
	Start int
	Len   int
}

// Partition orders events into contiguous groups. Groups appear in order of
// first occurrence and each group is sorted by timestamp. With no keys the
// input order is kept and no groups are returned.
func Partition(events []*bus.Event, keys GroupKeys) (rows []*bus.Event, groups []Group) {
	keys = keys.Normalize()
	if keys.IsNone() {
		return events, nil
	}

	index := map[string]int{}
	var buckets [][]*bus.Event
	var names []string
	for _, ev := range events {
		key := keys.Key(ev)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, nil)
			names = append(names, key)
		}
		buckets[i] = append(buckets[i], ev)
	}

	rows = make([]*bus.Event, 0, len(events))
	groups = make([]Group, 0, len(buckets))
	for i, b := range buckets {
		slices.SortStableFunc(b, compareEvents)
		groups = append(groups, Group{Key: names[i], Start: len(rows), Len: len(b)})
		rows = append(rows, b...)
	}
	return rows, groups
}
