package netpool

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/frankli0324/go-httpssl/utils/nettools"
)

// eviction reasons reported to an [Observer]
const (
	EvictIdleTimeout = "idle_timeout"
	EvictStale       = "stale"
	EvictFingerprint = "fingerprint"
	EvictInvalidate  = "invalidate"
	EvictClear       = "clear"
	EvictCapacity    = "capacity"
	EvictNotReusable = "not_reusable"
)

// Observer receives cache events. implementations must be safe for
// concurrent use.
type Observer interface {
	Hit(key Key)
	Miss(key Key)
	Evict(key Key, reason string)
}

type nopObserver struct{}

func (nopObserver) Hit(Key)           {}
func (nopObserver) Miss(Key)          {}
func (nopObserver) Evict(Key, string) {}

type Options struct {
	// MaxConnsPerKey bounds the sessions of one key that are in use at the
	// same time. callers over the bound wait for a release. 0 means unlimited.
	MaxConnsPerKey int
	// MaxIdlePerKey bounds the idle list of one key. 0 picks the default,
	// negative disables caching.
	MaxIdlePerKey int
	// MaxIdleDuration evicts sessions idle for longer. 0 picks the default,
	// negative keeps them until the peer closes.
	MaxIdleDuration time.Duration
	// SweepInterval is how often a group closes idle sessions that expired
	// or were closed by the peer. 0 picks the default, negative leaves it to
	// the next Acquire of the same key.
	SweepInterval time.Duration
}

var DefaultOptions = Options{MaxIdlePerKey: 8, MaxIdleDuration: 90 * time.Second, SweepInterval: 30 * time.Second}

func (o Options) normalize() Options {
	if o.MaxIdlePerKey == 0 {
		o.MaxIdlePerKey = DefaultOptions.MaxIdlePerKey
	}
	if o.MaxIdleDuration == 0 {
		o.MaxIdleDuration = DefaultOptions.MaxIdleDuration
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = DefaultOptions.SweepInterval
	}
	return o
}

type DialFunc func(ctx context.Context) (*Session, error)

// Pool holds the sessions of a single key. The idle list is LIFO so the most
// recently used, most likely alive, session is served first.
type Pool struct {
	key  Key
	opts Options
	sem  *semaphore.Weighted

	mu     sync.Mutex
	idle    []*Session
	active  int
	pending int // callers inside Acquire
	gen     uint64

	// detached pools are no longer reachable from their group
	detached bool

	observer Observer
	logger   zerolog.Logger
}

func NewPool(key Key, opts Options, observer Observer, logger zerolog.Logger) *Pool {
	opts = opts.normalize()
	p := &Pool{key: key, opts: opts, observer: observer, logger: logger}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if opts.MaxConnsPerKey > 0 {
		p.sem = semaphore.NewWeighted(int64(opts.MaxConnsPerKey))
	}
	return p
}

// Acquire returns an idle session, or a new one from dial. fresh skips the
// idle list. A new session joins the idle list only when released as reusable.
func (p *Pool) Acquire(ctx context.Context, fresh bool, dial DialFunc) (*Session, error) {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
	}()

	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if !fresh {
		if s := p.popIdle(); s != nil {
			p.observer.Hit(p.key)
			s.logEvent(p.logger.Debug()).Msg("netpool: reusing session")
			return s, nil
		}
	}
	p.observer.Miss(p.key)

	p.mu.Lock()
	p.active++
	gen := p.gen
	p.mu.Unlock()

	s, err := dial(ctx)
	if err != nil {
		p.done()
		return nil, err
	}
	s.gen, s.logger, s.Key, s.pool = gen, p.logger, p.key, p
	return s, nil
}

// popIdle takes the newest usable idle session, dropping expired or stale
// ones on the way. The returned session is already counted as active.
func (p *Pool) popIdle() *Session {
	for {
		p.mu.Lock()
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			return nil
		}
		s := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.active++
		p.mu.Unlock()

		// the session is ours alone from here on
		reason := ""
		switch {
		case !s.Available():
			reason = EvictStale
		case p.opts.MaxIdleDuration > 0 && time.Since(s.lastUsed) > p.opts.MaxIdleDuration:
			reason = EvictIdleTimeout
		case s.Buffered() || nettools.IsStale(s.conn) && !s.alive():
			reason = EvictStale
		}
		if reason == "" {
			s.reused = true
			s.released.Store(false)
			return s
		}
		// the caller's slot stays held for the next candidate or the dial
		p.evict(s, reason)
		p.retire()
	}
}

func (p *Pool) retire() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}

// done gives back the slot taken by Acquire.
func (p *Pool) done() {
	p.retire()
	if p.sem != nil {
		p.sem.Release(1)
	}
}

func (p *Pool) evict(s *Session, reason string) {
	s.logEvent(p.logger.Debug()).Str("reason", reason).Msg("netpool: evicting session")
	s.Close()
	p.observer.Evict(p.key, reason)
}

// Release ends the caller's ownership of s. A reusable session goes back to
// the idle list, anything else is closed. Releasing twice is a no-op.
func (p *Pool) Release(s *Session, reusable bool) {
	if s == nil || s.released.Swap(true) {
		return
	}
	defer p.done()

	reason := ""
	p.mu.Lock()
	switch {
	case !reusable || !s.KeepAlive:
		reason = EvictNotReusable
	case !s.Available():
		reason = EvictStale
	case s.gen != p.gen:
		reason = EvictInvalidate
	case p.detached:
		reason = EvictClear
	case p.opts.MaxIdlePerKey < 0 || len(p.idle) >= p.opts.MaxIdlePerKey:
		reason = EvictCapacity
	default:
		s.lastUsed = time.Now()
		p.idle = append(p.idle, s)
	}
	p.mu.Unlock()

	if reason != "" {
		p.evict(s, reason)
	}
}

// drain closes every idle session and makes sessions currently in use
// unreusable. it returns how many idle sessions were closed.
func (p *Pool) drain(reason string) int {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.gen++
	p.mu.Unlock()
	for _, s := range idle {
		p.evict(s, reason)
	}
	return len(idle)
}

// sweep closes idle sessions that are past their idle timeout or that the
// peer has closed. idle sessions are taken out of the list while probed.
func (p *Pool) sweep() int {
	p.mu.Lock()
	idle, gen := p.idle, p.gen
	p.idle = nil
	p.mu.Unlock()
	if len(idle) == 0 {
		return 0
	}

	conns := make([]net.Conn, len(idle))
	for i, s := range idle {
		conns[i] = s.conn
	}
	stale := nettools.Stale(conns)
	var kept []*Session
	n := 0
	for i, s := range idle {
		reason := ""
		switch {
		case !s.Available() || s.Buffered() || stale[i] && !s.alive():
			reason = EvictStale
		case p.opts.MaxIdleDuration > 0 && time.Since(s.lastUsed) > p.opts.MaxIdleDuration:
			reason = EvictIdleTimeout
		}
		if reason != "" {
			p.evict(s, reason)
			n++
			continue
		}
		kept = append(kept, s)
	}

	p.mu.Lock()
	reason := ""
	switch {
	case p.gen != gen:
		reason = EvictInvalidate
	case p.detached:
		reason = EvictClear
	default:
		// sessions released meanwhile are newer, they stay on top
		p.idle = append(kept, p.idle...)
		kept = nil
	}
	p.mu.Unlock()
	for _, s := range kept {
		p.evict(s, reason)
	}
	return n
}

// detach marks an empty pool as detached and reports whether it was empty.
func (p *Pool) detach() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) == 0 && p.active == 0 && p.pending == 0 {
		p.detached = true
	}
	return p.detached
}

func (p *Pool) counts() (idle, active int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.active
}
