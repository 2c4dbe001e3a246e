package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/frankli0324/go-httpssl/internal/trust"
)

func duration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	if d < 0 && field != "pool.tcp_keepalive" && field != "pool.max_idle_duration" && field != "pool.sweep_interval" {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// Validate checks every field without touching the filesystem.
func (f *File) Validate() error {
	if f.Version > 1 {
		return fmt.Errorf("unsupported config version %d", f.Version)
	}

	t := f.TLS
	if (t.Cert == "") != (t.Key == "") {
		return errors.New("tls.cert and tls.key must be set together")
	}
	if t.PKCS12 != "" && t.Cert != "" {
		return errors.New("cannot set both tls.pkcs12 and tls.cert")
	}
	if t.Watch && len(t.CAFiles) == 0 {
		return errors.New("tls.watch requires tls.ca_files")
	}
	if t.Watch && t.DefaultPaths {
		return errors.New("tls.watch replaces the anchor set and cannot be combined with tls.default_paths")
	}
	if t.Ciphers != "" {
		if _, _, err := trust.ParseCipherPolicy(t.Ciphers); err != nil {
			return fmt.Errorf("invalid tls.ciphers: %w", err)
		}
	}
	if t.Verify != "" {
		if _, err := trust.ParseVerifyMode(t.Verify); err != nil {
			return fmt.Errorf("invalid tls.verify: %w", err)
		}
	}
	min, err := trust.ParseVersion(t.MinVersion)
	if err != nil {
		return fmt.Errorf("invalid tls.min_version: %w", err)
	}
	max, err := trust.ParseVersion(t.MaxVersion)
	if err != nil {
		return fmt.Errorf("invalid tls.max_version: %w", err)
	}
	if min != 0 && max != 0 && min > max {
		return errors.New("tls.min_version is above tls.max_version")
	}

	for field, v := range map[string]string{
		"timeouts.connect":       f.Timeouts.Connect,
		"timeouts.send":          f.Timeouts.Send,
		"timeouts.receive":       f.Timeouts.Receive,
		"pool.max_idle_duration": f.Pool.MaxIdleDuration,
		"pool.sweep_interval":    f.Pool.SweepInterval,
		"pool.tcp_keepalive":     f.Pool.TCPKeepAlive,
	} {
		if _, err := duration(field, v); err != nil {
			return err
		}
	}
	if f.Pool.MaxConnsPerKey < 0 {
		return errors.New("pool.max_conns_per_key must not be negative")
	}

	switch f.Resolve.Network {
	case "", "ip", "ip4", "ip6":
	default:
		return fmt.Errorf("invalid resolve.network %q", f.Resolve.Network)
	}

	if f.Proxy.URL != "" {
		u, err := url.Parse(f.Proxy.URL)
		if err != nil {
			return fmt.Errorf("invalid proxy.url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}
	return nil
}
