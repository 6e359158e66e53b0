package procinfo

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Cache resolves pids to identities. Entries are kept for the lifetime of
// the cache, failures included, so a vanished process is looked up once.
// A pid reused by the OS keeps its first identity; Stale makes that visible.
type Cache struct {
	lookup  Lookup
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[uint32]Identity
	flight  singleflight.Group
}

type Option func(*Cache)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func NewCache(lookup Lookup, opts ...Option) *Cache {
	c := &Cache{
		lookup:  lookup,
		now:     time.Now,
		entries: map[uint32]Identity{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Resolve returns the identity for pid, performing at most one external
// lookup per pid no matter how many goroutines ask concurrently. The lock is
// never held while the lookup runs.
func (c *Cache) Resolve(ctx context.Context, pid uint32) Identity {
	if id, ok := c.Peek(pid); ok {
		return id
	}
	if err := ctx.Err(); err != nil {
		return unresolved(pid, err, c.now())
	}

	select {
	case res := <-c.start(ctx, pid):
		return res.Val.(Identity)
	case <-ctx.Done():
		return unresolved(pid, ctx.Err(), c.now())
	}
}

// Warm starts a lookup for pid in the background unless it is cached or
// already running. It never blocks; the identity shows up in Peek once the
// lookup is done.
func (c *Cache) Warm(ctx context.Context, pid uint32) {
	if _, ok := c.Peek(pid); ok || ctx.Err() != nil {
		return
	}
	c.start(ctx, pid)
}

// start joins the running lookup for pid or begins one. The returned channel
// is buffered, so nobody has to receive from it.
func (c *Cache) start(ctx context.Context, pid uint32) <-chan singleflight.Result {
	return c.flight.DoChan(strconv.FormatUint(uint64(pid), 10), func() (interface{}, error) {
		return c.lookupAndStore(ctx, pid), nil
	})
}

func (c *Cache) lookupAndStore(ctx context.Context, pid uint32) Identity {
	// a waiter that joined after the previous flight stored its result
	if id, ok := c.Peek(pid); ok {
		return id
	}

	info, err := c.lookup.LookupProcess(ctx, pid)
	var id Identity
	if err != nil {
		id = unresolved(pid, err, c.now())
		log.Debug().Uint32("pid", pid).Err(err).Msg("process lookup failed")
	} else {
		id = newIdentity(pid, info, c.now())
	}
	c.metrics.ProcessLookup(err == nil)

	// a cancelled lookup says nothing about the process, let the next caller retry
	if !isContextErr(err) {
		c.mu.Lock()
		c.entries[pid] = id
		c.mu.Unlock()
	}
	return id
}

// Peek returns the cached identity without ever triggering a lookup. Render
// paths use it so they never wait on the OS.
func (c *Cache) Peek(pid uint32) (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[pid]
	return id, ok
}

// Stale reports whether the process behind a cached identity is gone, in
// which case the pid may since have been reused by an unrelated process.
func (c *Cache) Stale(pid uint32) bool {
	id, ok := c.Peek(pid)
	if !ok || !id.Resolved {
		return false
	}
	return !ProcessAlive(int(pid))
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func isContextErr(err error) bool {
	return err != nil && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded))
}

func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if stderrors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
