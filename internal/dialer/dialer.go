package dialer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/frankli0324/go-httpssl/internal/deadline"
	"github.com/frankli0324/go-httpssl/internal/engine"
	"github.com/frankli0324/go-httpssl/internal/http"
	"github.com/frankli0324/go-httpssl/internal/metrics"
	"github.com/frankli0324/go-httpssl/internal/trust"
	"github.com/frankli0324/go-httpssl/utils/netpool"
)

// Dialers handle pretty much everything related to the actual connection,
// including setting a proxy for each request, setting resolvers, etc.
type Dialer interface {
	// Acquire returns a session ready to carry r: connected, and for https
	// authenticated under snap. fresh bypasses cached sessions.
	Acquire(ctx context.Context, r *http.PreparedRequest, snap *trust.Snapshot, d *deadline.Deadline, fresh bool) (*netpool.Session, error)
	// Release hands a session back once the exchange is over.
	Release(s *netpool.Session, reusable bool)
	Unwrap() Dialer
}

type CoreDialer struct {
	ResolveConfig *ResolveConfig

	ConnPool    *netpool.PoolGroup
	GetProxy    func(ctx context.Context, r *http.Request) (string, error)
	ProxyConfig *ProxyConfig

	// Engine performs handshakes, [engine.Std] when nil.
	Engine engine.Engine
	// TCPKeepAlive is the keep-alive probe period of new connections. 0
	// uses the system default, negative disables probes.
	TCPKeepAlive time.Duration

	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
	Tracer  trace.Tracer
}

func (d *CoreDialer) Clone() *CoreDialer {
	pool := defaultPool.NewEmpty()
	if d.ConnPool != nil {
		pool = d.ConnPool.NewEmpty()
	}
	return &CoreDialer{
		ResolveConfig: d.ResolveConfig.Clone(),
		ConnPool:      pool,
		GetProxy:      d.GetProxy,
		ProxyConfig:   d.ProxyConfig.Clone(),
		Engine:        d.Engine,
		TCPKeepAlive:  d.TCPKeepAlive,
		Metrics:       d.Metrics,
		Logger:        d.Logger,
		Tracer:        d.Tracer,
	}
}

func (d *CoreDialer) Unwrap() Dialer {
	return nil
}

func (d *CoreDialer) pool() *netpool.PoolGroup {
	if d.ConnPool != nil {
		return d.ConnPool
	}
	return defaultPool
}

func (d *CoreDialer) engine() engine.Engine {
	if d.Engine != nil {
		return d.Engine
	}
	return engine.Std{}
}

func (d *CoreDialer) logger() *zerolog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return &log.Logger
}

func (d *CoreDialer) tracer() trace.Tracer {
	if d.Tracer != nil {
		return d.Tracer
	}
	return otel.Tracer("github.com/frankli0324/go-httpssl/internal/dialer")
}

func (d *CoreDialer) EvictFingerprint(fp string) int { return d.pool().EvictFingerprint(fp) }

func (d *CoreDialer) Invalidate(host, port string) int { return d.pool().Invalidate(host, port) }

func (d *CoreDialer) Clear() int { return d.pool().Clear() }
