// package trust holds the trust configuration shared by every handshake a
// client performs: trust anchors, client identity, cipher policy and
// verification policy.
//
// A [Config] is mutated through its setters and read through [Config.Snapshot].
// Setters publish a new immutable [Snapshot]; handshakes hold the snapshot
// they started with, so reconfiguring never affects one already in flight.
package trust

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

type VerifyMode int

const (
	// VerifyNone skips chain validation, the verify callback and the hostname check.
	VerifyNone VerifyMode = iota
	// VerifyPeer validates the peer certificate when one is presented.
	VerifyPeer
	// VerifyPeerRequireCert validates the peer certificate and fails when none is presented.
	VerifyPeerRequireCert
)

func (m VerifyMode) String() string {
	switch m {
	case VerifyNone:
		return "none"
	case VerifyPeer:
		return "peer"
	case VerifyPeerRequireCert:
		return "peer_require_cert"
	}
	return fmt.Sprintf("VerifyMode(%d)", int(m))
}

func ParseVerifyMode(s string) (VerifyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return VerifyNone, nil
	case "peer":
		return VerifyPeer, nil
	case "peer_require_cert", "", "require":
		return VerifyPeerRequireCert, nil
	}
	return 0, fmt.Errorf("unknown verify mode %q", s)
}

// VerifyCallback observes the engine verdict for one certificate of the
// peer chain and returns the verdict to use instead. It is called exactly
// once per chain element, leaf first, including on failing handshakes.
type VerifyCallback func(ok bool, cert *x509.Certificate) bool

// Config is safe for concurrent use. The zero value is ready to use and
// carries the default policy: no anchors, no identity, [VerifyPeerRequireCert],
// no callback, no depth limit and [DefaultCipherPolicy].
type Config struct {
	mu    sync.Mutex
	cur   atomic.Pointer[Snapshot]
	cbGen uint64
	hooks []func(old, new *Snapshot)
}

// Snapshot returns the current configuration. It never blocks.
func (c *Config) Snapshot() *Snapshot {
	if s := c.cur.Load(); s != nil {
		return s
	}
	c.cur.CompareAndSwap(nil, defaultSnapshot())
	return c.cur.Load()
}

// OnChange registers fn to be called after every change that alters the
// fingerprint. fn runs on the goroutine that made the change.
func (c *Config) OnChange(fn func(old, new *Snapshot)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

func (c *Config) update(fn func(s *Snapshot) error) error {
	c.mu.Lock()
	old := c.Snapshot()
	next := old.clone()
	if err := fn(next); err != nil {
		c.mu.Unlock()
		return err
	}
	next.seal()
	c.cur.Store(next)
	hooks := slices.Clone(c.hooks)
	c.mu.Unlock()

	if old.fingerprint != next.fingerprint {
		for _, h := range hooks {
			h(old, next)
		}
	}
	return nil
}

func (c *Config) set(fn func(s *Snapshot)) {
	_ = c.update(func(s *Snapshot) error { fn(s); return nil })
}

// SetCipherPolicy replaces the cipher policy, see [ParseCipherPolicy]. A
// policy that matches no suite is accepted; every handshake made with it
// fails with a cipher negotiation error.
func (c *Config) SetCipherPolicy(spec string) error {
	return c.update(func(s *Snapshot) error {
		if err := s.applyPolicy(spec); err != nil {
			return fmt.Errorf("trust: invalid cipher policy: %w", err)
		}
		return nil
	})
}

func (c *Config) SetVerifyMode(m VerifyMode) {
	c.set(func(s *Snapshot) { s.mode = m })
}

// SetVerifyDepth limits how many certificates may follow the leaf in the
// verified chain. Negative values remove the limit.
func (c *Config) SetVerifyDepth(n int) {
	if n < 0 {
		n = -1
	}
	c.set(func(s *Snapshot) { s.depth = n })
}

func (c *Config) UnsetVerifyDepth() { c.SetVerifyDepth(-1) }

// SetVerifyCallback installs fn, or removes the callback when fn is nil.
// Functions cannot be compared, so installing a callback always changes the
// fingerprint.
func (c *Config) SetVerifyCallback(fn VerifyCallback) {
	c.set(func(s *Snapshot) {
		if fn == nil {
			s.callback, s.cbGen = nil, 0
			return
		}
		c.cbGen++
		s.callback, s.cbGen = fn, c.cbGen
	})
}

var knownVersions = []uint16{tls.VersionTLS10, tls.VersionTLS11, tls.VersionTLS12, tls.VersionTLS13}

// SetProtocolConstraint bounds the negotiated protocol version. zero leaves
// a bound to the engine.
func (c *Config) SetProtocolConstraint(min, max uint16) error {
	for _, v := range []uint16{min, max} {
		if v != 0 && !slices.Contains(knownVersions, v) {
			return fmt.Errorf("trust: unknown protocol version 0x%04x", v)
		}
	}
	if min != 0 && max != 0 && min > max {
		return fmt.Errorf("trust: minimum version %s above maximum %s", tls.VersionName(min), tls.VersionName(max))
	}
	c.set(func(s *Snapshot) { s.minVersion, s.maxVersion = min, max })
	return nil
}

// ParseVersion accepts "1.0" through "1.3", optionally prefixed with "TLS".
func ParseVersion(s string) (uint16, error) {
	v := strings.TrimPrefix(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "TLS"), "V")
	switch strings.TrimSpace(v) {
	case "":
		return 0, nil
	case "1.0", "1":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unknown protocol version %q", s)
}
