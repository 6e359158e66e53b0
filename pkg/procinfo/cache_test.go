package procinfo

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCache_ConcurrentResolveDeduplicatesLookups(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	lookup := LookupFunc(func(ctx context.Context, pid uint32) (Info, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return Info{Argv: []string{"/usr/bin/gnome-shell", "--wayland"}}, nil
	})
	c := NewCache(lookup)

	const n = 32
	results := make([]Identity, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Resolve(context.Background(), 4242)
		}(i)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("lookup never started")
	}
	// give the remaining goroutines time to join the running lookup
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, id := range results {
		require.True(t, id.Resolved)
		require.Equal(t, "gnome-shell", id.AppName)
		require.Equal(t, "/usr/bin/gnome-shell", id.FullPath)
	}
	require.Equal(t, 1, c.Len())
}

func TestCache_FailureIsCachedAsSentinel(t *testing.T) {
	var calls atomic.Int32
	lookup := LookupFunc(func(ctx context.Context, pid uint32) (Info, error) {
		calls.Add(1)
		return Info{}, errors.Wrap(ErrNotFound, "gone")
	})
	c := NewCache(lookup)

	for i := 0; i < 5; i++ {
		id := c.Resolve(context.Background(), 7)
		require.False(t, id.Resolved)
		require.Equal(t, "Unknown", id.AppName)
		require.Contains(t, id.Err, "process not found")
	}
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, ":1.5", c.Resolve(context.Background(), 7).Display(":1.5"))
}

func TestCache_CancelledLookupIsNotCached(t *testing.T) {
	var calls atomic.Int32
	lookup := LookupFunc(func(ctx context.Context, pid uint32) (Info, error) {
		calls.Add(1)
		if err := ctx.Err(); err != nil {
			return Info{}, err
		}
		return Info{Comm: "dbus-daemon"}, nil
	})
	c := NewCache(lookup)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, c.Resolve(ctx, 1).Resolved)
	require.Equal(t, int32(0), calls.Load())

	id := c.Resolve(context.Background(), 1)
	require.True(t, id.Resolved)
	require.Equal(t, "dbus-daemon", id.AppName)
	require.Equal(t, int32(1), calls.Load())
}

func TestCache_WaiterReturnsWhenItsContextEnds(t *testing.T) {
	var calls atomic.Int32
	lookup := LookupFunc(func(ctx context.Context, pid uint32) (Info, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return Info{}, ctx.Err()
		}
		return Info{Comm: "pipewire"}, nil
	})
	c := NewCache(lookup)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	id := c.Resolve(ctx, 3)
	require.False(t, id.Resolved)
	require.Contains(t, id.Err, "deadline")

	// the aborted flight left nothing behind, a later caller looks up again
	require.Eventually(t, func() bool {
		return c.Resolve(context.Background(), 3).Resolved
	}, 2*time.Second, 5*time.Millisecond)
	id, ok := c.Peek(3)
	require.True(t, ok)
	require.Equal(t, "pipewire", id.AppName)
}

func TestCache_PeekNeverLooksUp(t *testing.T) {
	lookup := LookupFunc(func(ctx context.Context, pid uint32) (Info, error) {
		t.Fatal("lookup must not run")
		return Info{}, nil
	})
	c := NewCache(lookup)
	_, ok := c.Peek(99)
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestCache_ResolvedAtAndStale(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	lookup := LookupFunc(func(ctx context.Context, pid uint32) (Info, error) {
		return Info{FullPath: "/usr/bin/test"}, nil
	})
	c := NewCache(lookup, WithClock(func() time.Time { return at }))

	self := uint32(os.Getpid())
	id := c.Resolve(context.Background(), self)
	require.Equal(t, at, id.ResolvedAt)
	require.Equal(t, "test", id.AppName)
	require.False(t, c.Stale(self))
	require.Equal(t, "test:"+strconv.Itoa(int(self)), id.Display("x"))
}
