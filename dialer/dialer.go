package dialer

import (
	"github.com/frankli0324/go-httpssl/internal/dialer"
)

// Dialers hand out sessions able to carry a request: connected, and for
// https authenticated under the trust snapshot of the request. A Dialer
// wrapping another one must return it from Unwrap so the owning client can
// still reach the session cache underneath.
type Dialer = dialer.Dialer

// CoreDialer is the default implementation of the [Dialer] interface. It is
// used by a zero value Client and caches sessions by host, port and trust
// fingerprint.
type CoreDialer = dialer.CoreDialer

type ProxyConfig = dialer.ProxyConfig

// ResolveConfig maps hostnames to addresses before connecting: static
// entries first, then DNS, optionally against a server of its own instead
// of the one in /etc/resolv.conf. Behind a proxy it resolves the proxy, and
// the origin only when [ProxyConfig] sets ResolveLocally.
type ResolveConfig = dialer.ResolveConfig
