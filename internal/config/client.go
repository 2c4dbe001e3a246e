package config

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frankli0324/go-httpssl/internal"
	"github.com/frankli0324/go-httpssl/internal/dialer"
	"github.com/frankli0324/go-httpssl/internal/http"
	"github.com/frankli0324/go-httpssl/internal/metrics"
	"github.com/frankli0324/go-httpssl/internal/trust"
	"github.com/frankli0324/go-httpssl/utils/netpool"
)

// Option adjusts a client built by [File.NewClient].
type Option func(c *internal.Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *internal.Client) { c.Logger = &l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *internal.Client) { c.Metrics = m }
}

// NewClient validates f and builds a client from it. Certificate and key
// files are read here, so errors from the trust setters surface as is.
func (f *File) NewClient(opts ...Option) (*internal.Client, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	c := &internal.Client{}
	for _, o := range opts {
		o(c)
	}
	logger := log.Logger
	if c.Logger != nil {
		logger = *c.Logger
	}

	d := f.dialer(c, logger)
	c.UseDialer(func(internal.Dialer) internal.Dialer { return d })

	if err := f.TLS.apply(c.TLS()); err != nil {
		return nil, err
	}

	connect, _ := duration("timeouts.connect", f.Timeouts.Connect)
	send, _ := duration("timeouts.send", f.Timeouts.Send)
	receive, _ := duration("timeouts.receive", f.Timeouts.Receive)
	if f.Timeouts.Connect != "" {
		c.SetConnectTimeout(connect)
	}
	if f.Timeouts.Send != "" {
		c.SetSendTimeout(send)
	}
	if f.Timeouts.Receive != "" {
		c.SetReceiveTimeout(receive)
	}
	if f.Pool.KeepAlive != nil {
		c.SetKeepAlive(*f.Pool.KeepAlive)
	}
	return c, nil
}

func (f *File) dialer(c *internal.Client, logger zerolog.Logger) *dialer.CoreDialer {
	idle, _ := duration("pool.max_idle_duration", f.Pool.MaxIdleDuration)
	sweep, _ := duration("pool.sweep_interval", f.Pool.SweepInterval)
	keepAlive, _ := duration("pool.tcp_keepalive", f.Pool.TCPKeepAlive)
	d := &dialer.CoreDialer{
		ConnPool: netpool.NewGroup(netpool.Options{
			MaxConnsPerKey:  f.Pool.MaxConnsPerKey,
			MaxIdlePerKey:   f.Pool.MaxIdlePerKey,
			MaxIdleDuration: idle,
			SweepInterval:   sweep,
		}, c.Metrics, logger),
		TCPKeepAlive: keepAlive,
		Metrics:      c.Metrics,
		Logger:       c.Logger,
	}
	if r := f.Resolve; r.DNSServer != "" || r.Network != "" || len(r.StaticHosts) > 0 {
		d.ResolveConfig = &dialer.ResolveConfig{
			CustomDNSServer: r.DNSServer,
			Network:         r.Network,
			StaticHosts:     r.StaticHosts,
		}
	}
	if proxy := f.Proxy.URL; proxy != "" {
		d.GetProxy = func(context.Context, *http.Request) (string, error) { return proxy, nil }
		d.ProxyConfig = &dialer.ProxyConfig{ResolveLocally: f.Proxy.ResolveLocally}
	}
	return d
}

func (t TLSSection) apply(cfg *trust.Config) error {
	if t.DefaultPaths {
		if err := cfg.SetDefaultPaths(); err != nil {
			return err
		}
	}
	for _, path := range t.CAFiles {
		if err := cfg.AddTrustAnchor(path); err != nil {
			return err
		}
	}
	switch {
	case t.PKCS12 != "":
		if err := cfg.SetClientIdentityPKCS12(t.PKCS12, t.Passphrase); err != nil {
			return err
		}
	case t.Cert != "":
		if err := cfg.SetClientIdentity(t.Cert, t.Key, t.Passphrase); err != nil {
			return err
		}
	}
	if t.Ciphers != "" {
		if err := cfg.SetCipherPolicy(t.Ciphers); err != nil {
			return err
		}
	}
	if t.Verify != "" {
		mode, _ := trust.ParseVerifyMode(t.Verify)
		cfg.SetVerifyMode(mode)
	}
	if t.Depth != nil {
		cfg.SetVerifyDepth(*t.Depth)
	}
	min, _ := trust.ParseVersion(t.MinVersion)
	max, _ := trust.ParseVersion(t.MaxVersion)
	if err := cfg.SetProtocolConstraint(min, max); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	return nil
}

// WatchTrust reloads the trust anchors of c whenever one of tls.ca_files
// changes. It returns nil when watching is not enabled.
func (f *File) WatchTrust(c *internal.Client, logger zerolog.Logger) (*trust.Watcher, error) {
	if !f.TLS.Watch {
		return nil, nil
	}
	return trust.Watch(c.TLS(), f.TLS.CAFiles, logger)
}
