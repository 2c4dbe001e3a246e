package dialer

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/url"

	"github.com/frankli0324/go-httpssl/internal/deadline"
	herrors "github.com/frankli0324/go-httpssl/internal/errors"
	"github.com/frankli0324/go-httpssl/internal/http"
	"github.com/frankli0324/go-httpssl/internal/transport"
	"github.com/frankli0324/go-httpssl/internal/trust"
)

type ProxyConfig struct {
	// Trust authenticates https proxies. when nil the request's trust
	// configuration is used.
	Trust          *trust.Config
	ResolveLocally bool
	ResolveConfig  *ResolveConfig // overrides the resolver config for dialer for proxy
}

func (c *ProxyConfig) Clone() *ProxyConfig {
	if c == nil {
		return nil
	}
	return &ProxyConfig{
		Trust:          c.Trust,
		ResolveLocally: c.ResolveLocally,
		ResolveConfig:  c.ResolveConfig.Clone(),
	}
}

var (
	h1Transport = transport.HTTP1{}
)

func (d *CoreDialer) tryDialProxy(ctx context.Context, r *http.PreparedRequest, snap *trust.Snapshot, dl *deadline.Deadline) (net.Conn, error) {
	if d.GetProxy != nil {
		proxy, perr := d.GetProxy(ctx, r.Request)
		if perr != nil {
			return nil, perr
		}
		if proxy != "" {
			proxyU, perr := url.Parse(proxy)
			if perr != nil {
				return nil, perr
			}
			if d.ProxyConfig != nil && d.ProxyConfig.Trust != nil {
				snap = d.ProxyConfig.Trust.Snapshot()
			}
			return d.DialContextOverProxy(ctx, r.U, proxyU, snap, dl)
		}
	}
	return nil, nil
}

// DialContextOverProxy opens a tunnel to remote through an http(s) proxy
// with CONNECT. an https proxy is authenticated under snap.
// This part of logic may be reused when wrapping *[CoreDialer] into
// a new custom [Dialer]
func (d *CoreDialer) DialContextOverProxy(ctx context.Context, remote, proxy *url.URL, snap *trust.Snapshot, dl *deadline.Deadline) (net.Conn, error) {
	if proxy.Scheme != "http" && proxy.Scheme != "https" { // TODO: socks
		return nil, errors.New("unsupported proxy scheme:" + proxy.Scheme)
	}
	proxyHost, proxyPort := hostPort(proxy)
	cfg := d.ResolveConfig
	if d.ProxyConfig != nil && d.ProxyConfig.ResolveConfig != nil {
		cfg = d.ProxyConfig.ResolveConfig.Merge(d.ResolveConfig)
	}
	conn, err := d.dialTCP(ctx, cfg, proxyHost, proxyPort)
	if err != nil {
		return nil, err
	}

	if proxy.Scheme == "https" {
		c, err := d.handshake(ctx, conn, proxyHost, snap, dl, 0)
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = c
	}

	addr, port := hostPort(remote)
	if d.ProxyConfig != nil && d.ProxyConfig.ResolveLocally {
		ips, err := d.lookup(ctx, cfg, addr)
		if err != nil {
			conn.Close()
			return nil, &herrors.TransportError{Op: "resolve", Addr: addr, Err: err}
		}
		addr = ips[rand.Intn(len(ips))].String()
	}

	target := net.JoinHostPort(addr, port)
	connReq := &http.PreparedRequest{
		Request:       &http.Request{Method: "CONNECT"},
		HeaderHost:    target,
		U:             &url.URL{Opaque: target},
		GetBody:       func() (io.ReadCloser, error) { return http.NoBody, nil },
		ContentLength: -1,
	}
	if proxy.User != nil {
		auth := proxy.User.Username()
		if pass, ok := proxy.User.Password(); ok {
			auth += ":" + pass
		}
		connReq.Header = http.Header{
			"Proxy-Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte(auth))},
		}
	}
	if err := h1Transport.Write(conn, connReq); err != nil {
		conn.Close()
		return nil, &herrors.TransportError{Op: "proxy connect", Addr: proxy.Host, Err: err}
	}
	// the origin stays silent until the client hello, nothing past the
	// proxy response can be buffered here
	br := bufio.NewReader(conn)
	resp := &http.Response{}
	if err := h1Transport.Read(br, connReq, resp); err != nil {
		conn.Close()
		return nil, &herrors.TransportError{Op: "proxy connect", Addr: proxy.Host, Err: err}
	}
	if resp.StatusCode != 200 {
		conn.Close()
		return nil, &herrors.TransportError{
			Op: "proxy connect", Addr: proxy.Host,
			Err: fmt.Errorf("proxy server returned error. status:%d", resp.StatusCode),
		}
	}
	return conn, nil
}
