package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/frankli0324/go-httpssl/internal/deadline"
	herrors "github.com/frankli0324/go-httpssl/internal/errors"
	"github.com/frankli0324/go-httpssl/internal/hostname"
	"github.com/frankli0324/go-httpssl/internal/http"
	"github.com/frankli0324/go-httpssl/internal/trust"
	"github.com/frankli0324/go-httpssl/utils/netpool"
)

var defaultPool = &netpool.PoolGroup{}

var schemes = map[string]string{
	"http": "80", "https": "443", "socks": "1080",
}

var zeroDialer net.Dialer

func hostPort(u *url.URL) (host, port string) {
	host, port = u.Hostname(), u.Port()
	if port == "" {
		port = schemes[u.Scheme]
	}
	return
}

// KeyFor returns the cache key of sessions able to carry r under snap.
func KeyFor(r *http.PreparedRequest, snap *trust.Snapshot) netpool.Key {
	host, port := hostPort(r.U)
	fp := netpool.PlainFingerprint
	if r.U.Scheme == "https" {
		fp = snap.Fingerprint()
	}
	return netpool.Key{Host: host, Port: port, Fingerprint: fp}
}

func (d *CoreDialer) Acquire(ctx context.Context, r *http.PreparedRequest, snap *trust.Snapshot, dl *deadline.Deadline, fresh bool) (*netpool.Session, error) {
	key := KeyFor(r, snap)
	ctx, span := d.tracer().Start(ctx, "httpssl.acquire", trace.WithAttributes(
		attribute.String("server.address", key.Host),
		attribute.String("server.port", key.Port),
		attribute.Bool("httpssl.fresh", fresh),
	))
	defer span.End()

	var s *netpool.Session
	// waiting for a free slot counts against the connect phase
	err := deadline.RunContext(ctx, dl, deadline.PhaseConnect, 0, func(ctx context.Context) (err error) {
		s, err = d.pool().Acquire(ctx, key, fresh, func(ctx context.Context) (*netpool.Session, error) {
			return d.dial(ctx, r, key, snap, dl)
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("httpssl.reused", s.Reused()), attribute.String("httpssl.session", s.ID))
	return s, nil
}

func (d *CoreDialer) Release(s *netpool.Session, reusable bool) {
	d.pool().Release(s, reusable)
}

func (d *CoreDialer) dial(ctx context.Context, r *http.PreparedRequest, key netpool.Key, snap *trust.Snapshot, dl *deadline.Deadline) (*netpool.Session, error) {
	var conn net.Conn
	err := deadline.RunContext(ctx, dl, deadline.PhaseConnect, r.ConnectTimeout, func(ctx context.Context) (err error) {
		conn, err = d.dialRaw(ctx, r, key, snap, dl)
		return err
	})
	if err != nil {
		return nil, err
	}
	if r.U.Scheme != "https" {
		return netpool.NewSession(key, conn), nil
	}

	tc, err := d.handshake(ctx, conn, key.Host, snap, dl, r.ConnectTimeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return netpool.NewSession(key, tc), nil
}

// handshake authenticates conn as host under snap: the engine validates the
// chain, then the certificate must be issued for host unless verification
// is off.
func (d *CoreDialer) handshake(ctx context.Context, conn net.Conn, host string, snap *trust.Snapshot, dl *deadline.Deadline, limit time.Duration) (*tls.Conn, error) {
	ctx, span := d.tracer().Start(ctx, "httpssl.handshake", trace.WithAttributes(
		attribute.String("server.address", host),
	))
	defer span.End()

	start := time.Now()
	var tc *tls.Conn
	err := deadline.RunContext(ctx, dl, deadline.PhaseHandshake, limit, func(ctx context.Context) (err error) {
		tc, err = d.engine().Handshake(ctx, conn, host, snap)
		return err
	})
	if err == nil && snap.VerifyMode() != trust.VerifyNone {
		if certs := tc.ConnectionState().PeerCertificates; len(certs) > 0 {
			err = hostname.Verify(certs[0], host)
		}
	}
	d.Metrics.Handshake(err, time.Since(start))

	log := d.logger()
	if err != nil {
		if tc != nil {
			tc.Close()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("host", host).Str("fingerprint", snap.Fingerprint()).Msg("dialer: handshake failed")
		return nil, err
	}
	st := tc.ConnectionState()
	span.SetAttributes(
		attribute.String("tls.version", tls.VersionName(st.Version)),
		attribute.String("tls.cipher", tls.CipherSuiteName(st.CipherSuite)),
	)
	log.Debug().Str("host", host).
		Str("version", tls.VersionName(st.Version)).
		Str("cipher", tls.CipherSuiteName(st.CipherSuite)).
		Dur("took", time.Since(start)).
		Msg("dialer: handshake complete")
	return tc, nil
}

func (d *CoreDialer) dialRaw(ctx context.Context, r *http.PreparedRequest, key netpool.Key, snap *trust.Snapshot, dl *deadline.Deadline) (net.Conn, error) {
	conn, err := d.tryDialProxy(ctx, r, snap, dl)
	if err != nil || conn != nil {
		return conn, err
	}
	return d.dialTCP(ctx, d.ResolveConfig, key.Host, key.Port)
}

// dialTCP connects to host:port honouring cfg and the keep-alive setting.
func (d *CoreDialer) dialTCP(ctx context.Context, cfg *ResolveConfig, host, port string) (net.Conn, error) {
	dialer := zeroDialer
	dialer.Resolver = cfg.resolver()
	dialer.KeepAlive = d.TCPKeepAlive
	dst := net.JoinHostPort(host, port)
	if static, ok := cfg.lookupStatic(host); ok {
		dst = net.JoinHostPort(static, port)
	}

	conn, err := dialer.DialContext(ctx, cfg.tcpNetwork(), dst)
	if err != nil {
		return nil, &herrors.TransportError{Op: "connect", Addr: dst, Err: err}
	}
	return conn, nil
}
