package query

import (
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/history"
	"github.com/go-go-golems/dbuddy/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// Config holds every knob a renderer can turn.
type Config struct {
	MaxMessages int
	GroupBy     GroupKeys
	Filter      string
	Mode        history.Mode
}

// Result is one computed view. It is shared with the renderer and must not
// be modified.
type Result struct {
	Mode    history.Mode
	Version uint64
	// Total is the size of the view before filtering.
	Total  int
	Rows   []*bus.Event
	Groups []Group
	// Thread is set while a thread is focused; Rows then hold its events.
	Thread *Thread

	rowGroup []int32
}

func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

func (r *Result) Row(i int) *bus.Event {
	if r == nil || i < 0 || i >= len(r.Rows) {
		return nil
	}
	return r.Rows[i]
}

// GroupAt returns the group containing row in O(1).
func (r *Result) GroupAt(row int) (key string, start, n int, ok bool) {
	if r == nil || row < 0 || row >= len(r.rowGroup) {
		return "", 0, 0, false
	}
	g := r.Groups[r.rowGroup[row]]
	return g.Key, g.Start, g.Len, true
}

// IndexOf finds the row holding the event with id, or -1.
func (r *Result) IndexOf(id uint64) int {
	if r == nil {
		return -1
	}
	for i, ev := range r.Rows {
		if ev.ID == id {
			return i
		}
	}
	return -1
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHistory attaches the history whose retention cap Configure controls.
func WithHistory(h *history.History) Option {
	return func(e *Engine) { e.history = h }
}

// Engine runs filter, thread and group over a history. It belongs to the
// consumer and is not safe for concurrent use.
type Engine struct {
	metrics *metrics.Metrics
	now     func() time.Time
	history *history.History

	filter      Filter
	groupBy     GroupKeys
	mode        history.Mode
	maxMessages int
	seed        *bus.Event

	// generation changes on every configuration change.
	generation uint64

	cached     *Result
	cachedHist *history.History
	cachedVer  uint64
	cachedGen  uint64

	view []*bus.Event
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:         time.Now,
		groupBy:     GroupKeys{GroupNone},
		mode:        history.ModeBoth,
		maxMessages: history.DefaultMaxMessages,
	}
	for _, o := range opts {
		o(e)
	}
	if e.history != nil {
		e.maxMessages = e.history.Max()
	}
	return e
}

// Configure applies every knob of cfg. The retention cap takes effect on
// the attached history immediately. A bad filter is reported after the
// other knobs are applied and leaves the previous filter in place.
func (e *Engine) Configure(cfg Config) error {
	if cfg.MaxMessages > 0 && cfg.MaxMessages != e.maxMessages {
		e.maxMessages = cfg.MaxMessages
		e.generation++
	}
	if e.history != nil && e.history.Max() != e.maxMessages {
		e.history.SetMax(e.maxMessages)
	}
	if cfg.GroupBy != nil {
		e.SetGroupBy(cfg.GroupBy)
	}
	e.SetMode(cfg.Mode)
	f, err := Parse(cfg.Filter, e.now())
	if err != nil {
		return err
	}
	e.filter = f
	e.generation++
	return nil
}

// ApplyFilter merges text into the current filter.
func (e *Engine) ApplyFilter(text string) error {
	f, err := e.filter.Apply(text, e.now())
	if err != nil {
		log.Debug().Err(err).Str("filter", text).Msg("filter rejected")
		return err
	}
	e.filter = f
	e.generation++
	return nil
}

func (e *Engine) Filter() Filter { return e.filter }

func (e *Engine) SetGroupBy(keys GroupKeys) {
	keys = keys.Normalize()
	if keys.Equal(e.groupBy) {
		return
	}
	e.groupBy = keys
	e.generation++
}

func (e *Engine) GroupBy() GroupKeys { return e.groupBy }

func (e *Engine) SetMode(mode history.Mode) {
	if mode == e.mode {
		return
	}
	e.mode = mode
	e.generation++
}

func (e *Engine) Mode() history.Mode { return e.mode }

func (e *Engine) MaxMessages() int { return e.maxMessages }

// FocusThread switches the result to the conversation around seed.
func (e *Engine) FocusThread(seed *bus.Event) {
	if seed == nil {
		return
	}
	e.seed = seed
	e.generation++
}

func (e *Engine) ClearThread() {
	if e.seed == nil {
		return
	}
	e.seed = nil
	e.generation++
}

func (e *Engine) ThreadSeed() *bus.Event { return e.seed }

// Config reports the current configuration. The filter is rendered back to
// text.
func (e *Engine) Config() Config {
	return Config{
		MaxMessages: e.maxMessages,
		GroupBy:     e.groupBy,
		Filter:      e.filter.String(),
		Mode:        e.mode,
	}
}

// Result computes the current view of h without modifying it. The result is
// cached until h or the configuration changes.
func (e *Engine) Result(h *history.History) *Result {
	if h == nil {
		return &Result{Mode: e.mode}
	}
	if e.cached != nil && e.cachedHist == h && e.cachedVer == h.Version() && e.cachedGen == e.generation {
		return e.cached
	}

	r := &Result{Mode: e.mode, Version: h.Version()}
	e.view = h.View(e.mode, e.view[:0])
	r.Total = len(e.view)

	if e.seed != nil {
		start := time.Now()
		th := Closure(e.seed, e.view)
		e.metrics.ObserveQuery("thread", time.Since(start))
		r.Thread = &th
		r.Rows = th.Events
	} else {
		start := time.Now()
		var rows []*bus.Event
		if e.filter.IsEmpty() {
			rows = make([]*bus.Event, len(e.view))
			copy(rows, e.view)
		} else {
			for _, ev := range e.view {
				if e.filter.Match(ev) {
					rows = append(rows, ev)
				}
			}
		}
		e.metrics.ObserveQuery("filter", time.Since(start))

		start = time.Now()
		r.Rows, r.Groups = Partition(rows, e.groupBy)
		r.rowGroup = spanIndex(r.Groups, len(r.Rows))
		e.metrics.ObserveQuery("group", time.Since(start))
	}
	clear(e.view)

	e.cached, e.cachedHist, e.cachedVer, e.cachedGen = r, h, r.Version, e.generation
	return r
}

func spanIndex(groups []Group, n int) []int32 {
	if len(groups) == 0 {
		return nil
	}
	idx := make([]int32, n)
	for gi, g := range groups {
		for i := g.Start; i < g.Start+g.Len; i++ {
			idx[i] = int32(gi)
		}
	}
	return idx
}
