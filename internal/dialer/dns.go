package dialer

import (
	"context"
	"net"
	"sync"
)

// ResolveConfig controls how hostnames become addresses. The zero value
// uses the system resolver.
type ResolveConfig struct {
	CustomDNSServer string            // host:port queried instead of the system servers
	Network         string            // "ip4" or "ip6", anything else means both
	StaticHosts     map[string]string // host to address, checked before DNS
}

func (c *ResolveConfig) Clone() *ResolveConfig {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Merge fills the fields c leaves empty from fallback.
func (c *ResolveConfig) Merge(fallback *ResolveConfig) *ResolveConfig {
	if c == nil {
		return fallback.Clone()
	}
	m := c.Clone()
	if fallback == nil {
		return m
	}
	if m.CustomDNSServer == "" {
		m.CustomDNSServer = fallback.CustomDNSServer
	}
	if m.Network == "" {
		m.Network = fallback.Network
	}
	if m.StaticHosts == nil {
		m.StaticHosts = fallback.StaticHosts
	}
	return m
}

func (c *ResolveConfig) ipNetwork() string {
	if c != nil && (c.Network == "ip4" || c.Network == "ip6") {
		return c.Network
	}
	return "ip"
}

func (c *ResolveConfig) tcpNetwork() string {
	switch c.ipNetwork() {
	case "ip4":
		return "tcp4"
	case "ip6":
		return "tcp6"
	}
	return "tcp"
}

func (c *ResolveConfig) lookupStatic(host string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.StaticHosts[host]
	return v, ok
}

func (c *ResolveConfig) resolver() *net.Resolver {
	if c == nil {
		return nil
	}
	return resolverFor(c.CustomDNSServer)
}

// resolvers holds one pure Go resolver per custom DNS server.
var resolvers sync.Map

// resolverFor returns the resolver sending every query to server, or nil
// (the system resolver) when server is empty.
func resolverFor(server string) *net.Resolver {
	if server == "" {
		return nil
	}
	if r, ok := resolvers.Load(server); ok {
		return r.(*net.Resolver)
	}
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return zeroDialer.DialContext(ctx, network, server)
		},
	}
	actual, _ := resolvers.LoadOrStore(server, r)
	return actual.(*net.Resolver)
}

func (d *CoreDialer) lookup(ctx context.Context, cfg *ResolveConfig, host string) ([]net.IP, error) {
	if addr, ok := cfg.lookupStatic(host); ok {
		if ip := net.ParseIP(addr); ip != nil {
			return []net.IP{ip}, nil
		}
		host = addr
	}
	var dns string
	if cfg != nil {
		dns = cfg.CustomDNSServer
	}
	return d.LookupIPServer(ctx, cfg.ipNetwork(), host, dns)
}

// LookupIPServer resolves host, asking dns when it is set. network is one
// of "ip", "ip4" or "ip6". Wrapping dialers can use it to resolve the way
// *[CoreDialer] does.
func (d *CoreDialer) LookupIPServer(ctx context.Context, network, host, dns string) ([]net.IP, error) {
	r := resolverFor(dns)
	if r == nil {
		r = net.DefaultResolver
	}
	return r.LookupIP(ctx, network, host)
}
