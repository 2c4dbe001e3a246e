package netpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PoolGroup is the session cache: one [Pool] per (host, port, fingerprint).
// A session is only ever served to callers asking for its exact key, so a
// change of trust configuration never gets a session authenticated under
// the old one.
//
// The zero value is ready to use with [DefaultOptions].
type PoolGroup struct {
	sync.RWMutex
	pools map[Key]*Pool

	Options  Options
	Observer Observer
	Logger   zerolog.Logger

	sweeping atomic.Bool
}

func NewGroup(opts Options, observer Observer, logger zerolog.Logger) *PoolGroup {
	return &PoolGroup{
		pools:   map[Key]*Pool{},
		Options: opts, Observer: observer, Logger: logger,
	}
}

// NewEmpty returns a group with the same settings and no sessions.
func (g *PoolGroup) NewEmpty() *PoolGroup {
	return NewGroup(g.Options, g.Observer, g.Logger)
}

func (g *PoolGroup) pool(key Key) *Pool {
	g.RLock()
	p, ok := g.pools[key]
	g.RUnlock()
	if ok {
		return p
	}
	g.Lock()
	defer g.Unlock()
	if p, ok = g.pools[key]; !ok {
		if g.pools == nil {
			g.pools = map[Key]*Pool{}
		}
		p = NewPool(key, g.Options, g.Observer, g.Logger)
		g.pools[key] = p
		g.startSweeper()
	}
	return p
}

// startSweeper runs Sweep periodically for as long as the group holds any
// pool. g must be locked.
func (g *PoolGroup) startSweeper() {
	every := g.Options.normalize().SweepInterval
	if every <= 0 || !g.sweeping.CompareAndSwap(false, true) {
		return
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for range t.C {
			if n := g.Sweep(); n > 0 {
				g.Logger.Debug().Int("sessions", n).Msg("netpool: swept idle sessions")
			}
			g.Lock()
			empty := len(g.pools) == 0
			if empty {
				g.sweeping.Store(false)
			}
			g.Unlock()
			if empty {
				return
			}
		}
	}()
}

// Acquire serves a cached session for key or dials a new one, see
// [Pool.Acquire].
func (g *PoolGroup) Acquire(ctx context.Context, key Key, fresh bool, dial DialFunc) (*Session, error) {
	p := g.pool(key)
	s, err := p.Acquire(ctx, fresh, dial)
	if err != nil {
		g.forget(key, p)
	}
	return s, err
}

// forget drops p from the group if nothing uses it anymore, so failed
// dials to unreachable hosts leave nothing behind.
func (g *PoolGroup) forget(key Key, p *Pool) {
	g.Lock()
	defer g.Unlock()
	if g.pools[key] == p && p.detach() {
		delete(g.pools, key)
	}
}

func (g *PoolGroup) Release(s *Session, reusable bool) {
	if s == nil {
		return
	}
	if s.pool != nil {
		s.pool.Release(s, reusable)
		return
	}
	g.pool(s.Key).Release(s, reusable)
}

func (g *PoolGroup) each(match func(Key) bool, fn func(Key, *Pool)) {
	g.RLock()
	var keys []Key
	var pools []*Pool
	for k, p := range g.pools {
		if match(k) {
			keys = append(keys, k)
			pools = append(pools, p)
		}
	}
	g.RUnlock()
	for i := range pools {
		fn(keys[i], pools[i])
	}
}

// Invalidate discards every session for host and port, whatever
// fingerprint it was established under. Sessions currently in use are
// closed when released.
func (g *PoolGroup) Invalidate(host, port string) int {
	n := 0
	g.each(func(k Key) bool { return k.Host == host && k.Port == port }, func(_ Key, p *Pool) {
		n += p.drain(EvictInvalidate)
	})
	return n
}

// EvictFingerprint discards every session established under fp.
func (g *PoolGroup) EvictFingerprint(fp string) int {
	n := 0
	g.each(func(k Key) bool { return k.Fingerprint == fp }, func(_ Key, p *Pool) {
		n += p.drain(EvictFingerprint)
	})
	g.prune()
	return n
}

// Clear discards every cached session.
func (g *PoolGroup) Clear() int {
	n := 0
	g.each(func(Key) bool { return true }, func(_ Key, p *Pool) {
		n += p.drain(EvictClear)
	})
	g.prune()
	return n
}

// Sweep closes idle sessions that timed out or were closed by the peer and
// forgets pools left with nothing in them.
func (g *PoolGroup) Sweep() int {
	n := 0
	g.each(func(Key) bool { return true }, func(_ Key, p *Pool) {
		n += p.sweep()
	})
	g.prune()
	return n
}

func (g *PoolGroup) prune() {
	g.Lock()
	defer g.Unlock()
	for k, p := range g.pools {
		if p.detach() {
			delete(g.pools, k)
		}
	}
}

type Stats struct {
	Pools  int
	Idle   int
	Active int
}

func (g *PoolGroup) Stats() Stats {
	var st Stats
	g.each(func(Key) bool { return true }, func(_ Key, p *Pool) {
		idle, active := p.counts()
		st.Pools++
		st.Idle += idle
		st.Active += active
	})
	return st
}
