package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/history"
	"github.com/go-go-golems/dbuddy/pkg/procinfo"
	"github.com/go-go-golems/dbuddy/pkg/tui/styles"
)

// Identities is the read side of the process cache. Renderers only ever
// peek, so drawing never waits for a lookup.
type Identities interface {
	Peek(pid uint32) (procinfo.Identity, bool)
	Stale(pid uint32) bool
}

func peerLabel(ids Identities, name string, pid *uint32) string {
	if ids == nil || pid == nil {
		return name
	}
	id, ok := ids.Peek(*pid)
	if !ok {
		return name
	}
	return id.Display(name)
}

func formatTime(ts, now time.Time, relative bool) string {
	if !relative {
		return ts.Format("15:04:05.000")
	}
	d := now.Sub(ts)
	switch {
	case d < time.Second:
		return fmt.Sprintf("-%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("-%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("-%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("-%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// memberText names what a record is about; errors show their error name.
func memberText(ev *bus.Event) string {
	m := ev.Field("member")
	if ev.Interface != "" && ev.Member != "" {
		m = ev.Interface + "." + ev.Member
	}
	if m == "" && ev.ReplySerial != nil {
		m = fmt.Sprintf("reply to #%d", *ev.ReplySerial)
	}
	return m
}

func rowText(ev *bus.Event, ids Identities, theme styles.Theme, now time.Time, relative bool) string {
	var b strings.Builder
	b.WriteString(theme.Timestamp.Render(formatTime(ev.Timestamp, now, relative)))
	b.WriteString(" ")
	b.WriteString(styles.SourceTag(ev.Source))
	b.WriteString(" ")
	b.WriteString(styles.KindIcon(ev.Kind))
	b.WriteString(" ")
	b.WriteString(theme.Sender.Render(peerLabel(ids, ev.Sender, ev.SenderPID)))
	if ev.Destination != "" {
		b.WriteString(" → ")
		b.WriteString(peerLabel(ids, ev.Destination, ev.DestinationPID))
	}
	b.WriteString(" ")
	b.WriteString(theme.Member.Render(memberText(ev)))
	if ev.Path != "" {
		b.WriteString(" ")
		b.WriteString(theme.Path.Render(ev.Path))
	}
	return b.String()
}

// DbusSendCommand is a starting point for calling the selected peer again.
func DbusSendCommand(ev *bus.Event, mode history.Mode) string {
	flag := "--session"
	if ev.Source == bus.SystemBus || mode == history.ModeSystem {
		flag = "--system"
	}
	dest := ev.Sender
	if ev.Kind == bus.MethodCall && ev.Destination != "" {
		dest = ev.Destination
	}
	member := "<interface>.<member>"
	if ev.Interface != "" && ev.Member != "" {
		member = ev.Interface + "." + ev.Member
	}
	path := ev.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("dbus-send %s --print-reply --dest=%s %s %s", flag, dest, path, member)
}

// detailHeader lists the header fields of ev, one per line.
func detailHeader(ev *bus.Event, ids Identities) []string {
	lines := []string{
		fmt.Sprintf("time:        %s", ev.Timestamp.Format("2006-01-02 15:04:05.000000")),
		fmt.Sprintf("bus:         %s", ev.Source),
		fmt.Sprintf("kind:        %s", ev.Kind),
		fmt.Sprintf("sender:      %s", peerDetail(ids, ev.Sender, ev.SenderPID)),
	}
	if ev.Destination != "" {
		lines = append(lines, fmt.Sprintf("destination: %s", peerDetail(ids, ev.Destination, ev.DestinationPID)))
	}
	add := func(label, v string) {
		if v != "" {
			lines = append(lines, fmt.Sprintf("%-12s %s", label+":", v))
		}
	}
	add("path", ev.Path)
	add("interface", ev.Interface)
	add("member", ev.Member)
	add("error", ev.ErrorName)
	add("signature", ev.Signature)
	lines = append(lines, fmt.Sprintf("serial:      %d", ev.Serial))
	if ev.ReplySerial != nil {
		lines = append(lines, fmt.Sprintf("reply to:    %d", *ev.ReplySerial))
	}
	return lines
}

func peerDetail(ids Identities, name string, pid *uint32) string {
	if pid == nil {
		return name
	}
	if ids == nil {
		return fmt.Sprintf("%s (pid %d)", name, *pid)
	}
	id, ok := ids.Peek(*pid)
	if !ok {
		return fmt.Sprintf("%s (pid %d, resolving)", name, *pid)
	}
	if !id.Resolved {
		return fmt.Sprintf("%s (pid %d, %s)", name, *pid, id.Err)
	}
	s := fmt.Sprintf("%s (%s, %s)", name, id.Display(name), strings.Join(id.Argv, " "))
	if ids.Stale(*pid) {
		s += " [exited, pid may be reused]"
	}
	return s
}
