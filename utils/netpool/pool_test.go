package netpool_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/frankli0324/go-httpssl/utils/netpool"
	"github.com/frankli0324/go-httpssl/utils/nettools"
)

type recorder struct {
	mu     sync.Mutex
	hits   int
	misses int
	evicts map[string]int
}

func (r *recorder) Hit(netpool.Key)  { r.mu.Lock(); r.hits++; r.mu.Unlock() }
func (r *recorder) Miss(netpool.Key) { r.mu.Lock(); r.misses++; r.mu.Unlock() }
func (r *recorder) Evict(_ netpool.Key, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicts == nil {
		r.evicts = map[string]int{}
	}
	r.evicts[reason]++
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits, r.misses
}

func (r *recorder) evicted(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicts[reason]
}

type dialer struct{ n atomic.Int64 }

func (d *dialer) dial(key netpool.Key) netpool.DialFunc {
	return func(ctx context.Context) (*netpool.Session, error) {
		d.n.Add(1)
		a, _ := net.Pipe()
		return netpool.NewSession(key, a), nil
	}
}

var keyA = netpool.Key{Host: "example.com", Port: "443", Fingerprint: "aaaa"}

func newGroup(opts netpool.Options) (*netpool.PoolGroup, *recorder) {
	r := &recorder{}
	return netpool.NewGroup(opts, r, zerolog.Nop()), r
}

func TestHitAfterRelease(t *testing.T) {
	g, r := newGroup(netpool.Options{})
	d := &dialer{}
	ctx := context.Background()

	s1, err := g.Acquire(ctx, keyA, false, d.dial(keyA))
	require.NoError(t, err)
	assert.False(t, s1.Reused())

	// not cached until released
	s2, err := g.Acquire(ctx, keyA, false, d.dial(keyA))
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	g.Release(s2, false)
	assert.False(t, s2.Available())

	g.Release(s1, true)
	s3, err := g.Acquire(ctx, keyA, false, d.dial(keyA))
	require.NoError(t, err)
	assert.Same(t, s1, s3)
	assert.True(t, s3.Reused())

	hits, misses := r.counts()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 2, misses)
	assert.EqualValues(t, 2, d.n.Load())

	g.Release(s3, true)
	g.Release(s3, true) // double release is ignored
	assert.Equal(t, netpool.Stats{Pools: 1, Idle: 1, Active: 0}, g.Stats())
}

func TestFingerprintIsPartOfTheKey(t *testing.T) {
	g, _ := newGroup(netpool.Options{})
	d := &dialer{}
	ctx := context.Background()
	keyB := keyA
	keyB.Fingerprint = "bbbb"

	s1, err := g.Acquire(ctx, keyA, false, d.dial(keyA))
	require.NoError(t, err)
	g.Release(s1, true)

	s2, err := g.Acquire(ctx, keyB, false, d.dial(keyB))
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.False(t, s2.Reused())
	g.Release(s2, true)

	assert.Equal(t, 1, g.EvictFingerprint("aaaa"))
	assert.False(t, s1.Available())
	assert.True(t, s2.Available())
}

func TestFreshSkipsIdle(t *testing.T) {
	g, _ := newGroup(netpool.Options{})
	d := &dialer{}
	ctx := context.Background()
	s1, _ := g.Acquire(ctx, keyA, false, d.dial(keyA))
	g.Release(s1, true)

	s2, err := g.Acquire(ctx, keyA, true, d.dial(keyA))
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.True(t, s1.Available(), "idle session stays cached")
}

func TestInvalidateAndClear(t *testing.T) {
	g, r := newGroup(netpool.Options{})
	d := &dialer{}
	ctx := context.Background()

	idle, _ := g.Acquire(ctx, keyA, false, d.dial(keyA))
	busy, _ := g.Acquire(ctx, keyA, false, d.dial(keyA))
	g.Release(idle, true)

	assert.Equal(t, 1, g.Invalidate("example.com", "443"))
	assert.False(t, idle.Available())

	// sessions in use when the key was invalidated are not cached afterwards
	g.Release(busy, true)
	assert.False(t, busy.Available())
	assert.Equal(t, 2, r.evicted(netpool.EvictInvalidate))

	s, _ := g.Acquire(ctx, keyA, false, d.dial(keyA))
	g.Release(s, true)
	assert.Equal(t, 1, g.Clear())
	assert.False(t, s.Available())
	assert.Equal(t, netpool.Stats{}, g.Stats())
}

func TestIdleTimeout(t *testing.T) {
	g, r := newGroup(netpool.Options{MaxIdleDuration: 20 * time.Millisecond})
	d := &dialer{}
	ctx := context.Background()

	s1, _ := g.Acquire(ctx, keyA, false, d.dial(keyA))
	g.Release(s1, true)
	time.Sleep(40 * time.Millisecond)

	s2, err := g.Acquire(ctx, keyA, false, d.dial(keyA))
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.False(t, s1.Available())
	assert.Equal(t, 1, r.evicted(netpool.EvictIdleTimeout))

	g.Release(s2, true)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, g.Sweep())
	assert.Equal(t, netpool.Stats{}, g.Stats())
}

func TestBackgroundSweep(t *testing.T) {
	g, r := newGroup(netpool.Options{MaxIdleDuration: 20 * time.Millisecond, SweepInterval: 10 * time.Millisecond})
	d := &dialer{}

	s1, err := g.Acquire(context.Background(), keyA, false, d.dial(keyA))
	require.NoError(t, err)
	g.Release(s1, true)

	require.Eventually(t, func() bool { return !s1.Available() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, r.evicted(netpool.EvictIdleTimeout))
	require.Eventually(t, func() bool { return g.Stats() == netpool.Stats{} }, 2*time.Second, 5*time.Millisecond)

	// the group picks sweeping up again once it holds sessions
	s2, err := g.Acquire(context.Background(), keyA, false, d.dial(keyA))
	require.NoError(t, err)
	g.Release(s2, true)
	require.Eventually(t, func() bool { return !s2.Available() }, 2*time.Second, 5*time.Millisecond)
}

func TestIdleCapacity(t *testing.T) {
	g, r := newGroup(netpool.Options{MaxIdlePerKey: 1})
	d := &dialer{}
	ctx := context.Background()
	s1, _ := g.Acquire(ctx, keyA, false, d.dial(keyA))
	s2, _ := g.Acquire(ctx, keyA, false, d.dial(keyA))
	g.Release(s1, true)
	g.Release(s2, true)
	assert.True(t, s1.Available())
	assert.False(t, s2.Available())
	assert.Equal(t, 1, r.evicted(netpool.EvictCapacity))

	g2, _ := newGroup(netpool.Options{MaxIdlePerKey: -1})
	s3, _ := g2.Acquire(ctx, keyA, false, d.dial(keyA))
	g2.Release(s3, true)
	assert.False(t, s3.Available())
}

func TestKeepAliveDisabled(t *testing.T) {
	g, _ := newGroup(netpool.Options{})
	d := &dialer{}
	s, _ := g.Acquire(context.Background(), keyA, false, d.dial(keyA))
	s.KeepAlive = false
	g.Release(s, true)
	assert.False(t, s.Available())
}

func TestBoundedWaiting(t *testing.T) {
	g, _ := newGroup(netpool.Options{MaxConnsPerKey: 1})
	d := &dialer{}

	s1, err := g.Acquire(context.Background(), keyA, false, d.dial(keyA))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, keyA, false, d.dial(keyA))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	time.AfterFunc(30*time.Millisecond, func() { g.Release(s1, true) })
	s2, err := g.Acquire(context.Background(), keyA, false, d.dial(keyA))
	require.NoError(t, err)
	assert.Same(t, s1, s2, "the waiter gets the released session")
	g.Release(s2, true)
}

func TestConcurrentAcquireRespectsBound(t *testing.T) {
	const bound = 3
	g, _ := newGroup(netpool.Options{MaxConnsPerKey: bound})
	d := &dialer{}
	var inUse, peak atomic.Int64

	var eg errgroup.Group
	for i := 0; i < 20; i++ {
		eg.Go(func() error {
			s, err := g.Acquire(context.Background(), keyA, false, d.dial(keyA))
			if err != nil {
				return err
			}
			n := inUse.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inUse.Add(-1)
			g.Release(s, true)
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.LessOrEqual(t, peak.Load(), int64(bound))
	assert.LessOrEqual(t, d.n.Load(), int64(bound))
	assert.Equal(t, 0, g.Stats().Active)
}

func TestExpiredIdleKeepsBound(t *testing.T) {
	g, r := newGroup(netpool.Options{MaxConnsPerKey: 1, MaxIdleDuration: 10 * time.Millisecond})
	d := &dialer{}

	s1, err := g.Acquire(context.Background(), keyA, false, d.dial(keyA))
	require.NoError(t, err)
	g.Release(s1, true)
	time.Sleep(30 * time.Millisecond)

	s2, err := g.Acquire(context.Background(), keyA, false, d.dial(keyA))
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, 1, r.evicted(netpool.EvictIdleTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, keyA, false, d.dial(keyA))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 2, d.n.Load())

	assert.NotPanics(t, func() { g.Release(s2, true) })
	s3, err := g.Acquire(context.Background(), keyA, false, d.dial(keyA))
	require.NoError(t, err)
	assert.Same(t, s2, s3)
	g.Release(s3, false)
	assert.Equal(t, 0, g.Stats().Active)
}

func TestDialErrorReleasesSlot(t *testing.T) {
	g, _ := newGroup(netpool.Options{MaxConnsPerKey: 1})
	fail := func(context.Context) (*netpool.Session, error) { return nil, net.ErrClosed }
	for i := 0; i < 3; i++ {
		_, err := g.Acquire(context.Background(), keyA, false, fail)
		require.ErrorIs(t, err, net.ErrClosed)
	}
	assert.Equal(t, netpool.Stats{}, g.Stats(), "no pool is kept for an unreachable key")
}

func TestStaleSessionIsEvicted(t *testing.T) {
	if nettools.Picked() == nettools.ModeNone {
		t.Skip("no socket probing on this platform")
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	peers := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		peers <- c
	}()

	g, r := newGroup(netpool.Options{})
	dialTCP := func(ctx context.Context) (*netpool.Session, error) {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return nil, err
		}
		return netpool.NewSession(keyA, c), nil
	}
	s1, err := g.Acquire(context.Background(), keyA, false, dialTCP)
	require.NoError(t, err)
	g.Release(s1, true)
	(<-peers).Close()

	require.Eventually(t, func() bool { return g.Sweep() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s1.Available())
	assert.Equal(t, 1, r.evicted(netpool.EvictStale))
}
