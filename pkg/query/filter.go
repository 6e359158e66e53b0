package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/pkg/errors"
)

// Fields that may appear on the left of a field=value clause.
var Fields = []string{
	"sender", "member", "path", "serial", "reply_serial",
	"interface", "destination", "kind", "since",
}

var fieldAliases = map[string]string{
	"dest":  "destination",
	"iface": "interface",
	"reply": "reply_serial",
}

// ParseError is returned for filter text that cannot be applied. Pos is a
// byte offset into Input.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("filter: %s at column %d", e.Msg, e.Pos+1)
}

// Filter is a conjunction of clauses. The zero value matches everything.
type Filter struct {
	// Terms are bare tokens; each must occur in sender, member or path.
	Terms []string

	Sender      string
	Member      string
	Path        string
	Interface   string
	Destination string
	Serial      *uint32
	ReplySerial *uint32
	Kind        *bus.Kind
	Since       time.Time

	sinceText string
}

func (f Filter) IsEmpty() bool {
	return len(f.Terms) == 0 && f.Sender == "" && f.Member == "" && f.Path == "" &&
		f.Interface == "" && f.Destination == "" && f.Serial == nil &&
		f.ReplySerial == nil && f.Kind == nil && f.Since.IsZero()
}

// Parse builds a filter from text alone.
func Parse(text string, now time.Time) (Filter, error) {
	return Filter{}.Apply(text, now)
}

// Apply merges text into f and returns the new filter. Field clauses set
// their field, or clear it when the value is empty. Bare tokens replace the
// previous set of bare tokens. Blank text clears everything. On error f is
// left as it was.
func (f Filter) Apply(text string, now time.Time) (Filter, error) {
	if strings.TrimSpace(text) == "" {
		return Filter{}, nil
	}
	toks, err := lex(text)
	if err != nil {
		return f, err
	}

	next := f
	next.Terms = append([]string(nil), f.Terms...)
	var terms []string
	for _, tok := range toks {
		if tok.eq < 0 {
			terms = append(terms, strings.ToLower(tok.text))
			continue
		}
		key := strings.ToLower(tok.text[:tok.eq])
		val := tok.text[tok.eq+1:]
		if alias, ok := fieldAliases[key]; ok {
			key = alias
		}
		if err := next.set(key, val, now); err != nil {
			return f, &ParseError{Input: text, Pos: tok.pos, Msg: err.Error()}
		}
	}
	if len(terms) > 0 {
		next.Terms = terms
	}
	return next, nil
}

func (f *Filter) set(key, val string, now time.Time) error {
	switch key {
	case "":
		return errors.New("missing field name")
	case "sender":
		f.Sender = val
	case "member":
		f.Member = val
	case "path":
		f.Path = val
	case "interface":
		f.Interface = val
	case "destination":
		f.Destination = val
	case "serial", "reply_serial":
		var p *uint32
		if val != "" {
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return errors.Errorf("%s wants a number, got %q", key, val)
			}
			p = bus.U32(uint32(n))
		}
		if key == "serial" {
			f.Serial = p
		} else {
			f.ReplySerial = p
		}
	case "kind":
		if val == "" {
			f.Kind = nil
			return nil
		}
		k, err := bus.ParseKind(val)
		if err != nil {
			return err
		}
		f.Kind = &k
	case "since":
		if val == "" {
			f.Since, f.sinceText = time.Time{}, ""
			return nil
		}
		t, err := parseSince(val, now)
		if err != nil {
			return err
		}
		f.Since, f.sinceText = t, val
	default:
		return errors.Errorf("unknown field %q", key)
	}
	return nil
}

// parseSince accepts a duration back from now ("90s", "5m") or anything
// dateparse understands.
func parseSince(val string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(val); err == nil {
		if d < 0 {
			d = -d
		}
		return now.Add(-d), nil
	}
	t, err := dateparse.ParseLocal(val)
	if err != nil {
		return time.Time{}, errors.Errorf("since wants a time or duration, got %q", val)
	}
	return t, nil
}

// Match reports whether ev satisfies every clause.
func (f *Filter) Match(ev *bus.Event) bool {
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if f.Kind != nil && ev.Kind != *f.Kind {
		return false
	}
	if f.Serial != nil && ev.Serial != *f.Serial {
		return false
	}
	if f.ReplySerial != nil && (ev.ReplySerial == nil || *ev.ReplySerial != *f.ReplySerial) {
		return false
	}
	member := ev.Field("member")
	if f.Sender != "" && !containsFold(ev.Sender, f.Sender) {
		return false
	}
	if f.Member != "" && !containsFold(member, f.Member) {
		return false
	}
	if f.Path != "" && !containsFold(ev.Path, f.Path) {
		return false
	}
	if f.Interface != "" && !containsFold(ev.Interface, f.Interface) {
		return false
	}
	if f.Destination != "" && !containsFold(ev.Destination, f.Destination) {
		return false
	}
	for _, term := range f.Terms {
		if !containsFold(ev.Sender, term) && !containsFold(member, term) && !containsFold(ev.Path, term) {
			return false
		}
	}
	return true
}

// String renders f back into filter text that Parse accepts.
func (f Filter) String() string {
	var parts []string
	for _, t := range f.Terms {
		parts = append(parts, quote(t))
	}
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, Clause(k, v))
		}
	}
	add("sender", f.Sender)
	add("member", f.Member)
	add("path", f.Path)
	add("interface", f.Interface)
	add("destination", f.Destination)
	if f.Serial != nil {
		add("serial", strconv.FormatUint(uint64(*f.Serial), 10))
	}
	if f.ReplySerial != nil {
		add("reply_serial", strconv.FormatUint(uint64(*f.ReplySerial), 10))
	}
	if f.Kind != nil {
		add("kind", f.Kind.String())
	}
	if !f.Since.IsZero() {
		since := f.sinceText
		if since == "" {
			since = f.Since.Format(time.RFC3339)
		}
		add("since", since)
	}
	return strings.Join(parts, " ")
}

// Clause formats a field=value clause, quoting the value when needed.
func Clause(field, value string) string {
	return field + "=" + quote(value)
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"") {
		return strconv.Quote(s)
	}
	return s
}

// AutoFilter returns the clause selecting ev's value of field.
func AutoFilter(ev *bus.Event, field string) string {
	return Clause(field, ev.Field(field))
}

type token struct {
	text string
	pos  int
	// eq is the index in text of the first unquoted '=', or -1.
	eq int
}

func lex(s string) ([]token, error) {
	var toks []token
	var cur strings.Builder
	inTok, inQuote := false, false
	start, eq, quoteAt := 0, -1, 0

	flush := func() {
		if inTok {
			toks = append(toks, token{text: cur.String(), pos: start, eq: eq})
		}
		cur.Reset()
		inTok, eq = false, -1
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			switch c {
			case '"':
				inQuote = false
			case '\\':
				if i+1 < len(s) {
					i++
					cur.WriteByte(s[i])
				}
			default:
				cur.WriteByte(c)
			}
		case c == ' ' || c == '\t':
			flush()
		case c == '"':
			if !inTok {
				inTok, start = true, i
			}
			inQuote, quoteAt = true, i
		default:
			if !inTok {
				inTok, start = true, i
			}
			if c == '=' && eq < 0 {
				eq = cur.Len()
			}
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, &ParseError{Input: s, Pos: quoteAt, Msg: "unterminated quote"}
	}
	flush()
	return toks, nil
}

// containsFold is an allocation free, ASCII case-insensitive strings.Contains.
func containsFold(s, sub string) bool {
	n := len(sub)
	if n == 0 {
		return true
	}
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], sub) {
			return true
		}
	}
	return false
}
