package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frankli0324/go-httpssl/internal/deadline"
	"github.com/frankli0324/go-httpssl/internal/dialer"
	herrors "github.com/frankli0324/go-httpssl/internal/errors"
	"github.com/frankli0324/go-httpssl/internal/http"
	"github.com/frankli0324/go-httpssl/internal/metrics"
	"github.com/frankli0324/go-httpssl/internal/transport"
	"github.com/frankli0324/go-httpssl/internal/trust"
	"github.com/frankli0324/go-httpssl/utils/netpool"
)

type PreparedRequest = http.PreparedRequest

type Handler = func(ctx context.Context, req *PreparedRequest) (*http.Response, error)
type Middleware func(next Handler) Handler

type Dialer = dialer.Dialer

const (
	DefaultConnectTimeout = 60 * time.Second
	DefaultSendTimeout    = 120 * time.Second
	DefaultReceiveTimeout = 60 * time.Second
)

type timeouts struct {
	connect, send, receive time.Duration
}

var defaultTimeouts = timeouts{DefaultConnectTimeout, DefaultSendTimeout, DefaultReceiveTimeout}

var h1 transport.Transport = transport.HTTP1{}

// Client owns a trust configuration, the timeouts and the sessions cached
// for them. The zero value is ready to use. Logger and Metrics only affect
// the default dialer and must be set before the first request.
type Client struct {
	Logger  *zerolog.Logger
	Metrics *metrics.Metrics

	trust       trust.Config
	once        sync.Once
	tmo         atomic.Pointer[timeouts]
	noKeepAlive atomic.Bool

	mu          sync.RWMutex
	middlewares []Middleware
	dialer      Dialer
}

func (c *Client) init() {
	c.once.Do(func() {
		if c.dialer == nil {
			logger := log.Logger
			if c.Logger != nil {
				logger = *c.Logger
			}
			c.dialer = &dialer.CoreDialer{
				ConnPool: netpool.NewGroup(netpool.DefaultOptions, c.Metrics, logger),
				Metrics:  c.Metrics,
				Logger:   c.Logger,
			}
		}
		// sessions established under a replaced configuration are never
		// served again, drop them right away
		c.trust.OnChange(func(old, _ *trust.Snapshot) {
			if n := c.evict(func(e evicter) int { return e.EvictFingerprint(old.Fingerprint()) }); n > 0 {
				c.logger().Debug().Int("sessions", n).Str("fingerprint", old.Fingerprint()).
					Msg("client: trust configuration changed, evicted sessions")
			}
		})
	})
}

func (c *Client) logger() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return &log.Logger
}

// TLS returns the trust configuration used by every https request of c.
func (c *Client) TLS() *trust.Config {
	c.init()
	return &c.trust
}

func (c *Client) timeouts() timeouts {
	if t := c.tmo.Load(); t != nil {
		return *t
	}
	return defaultTimeouts
}

func (c *Client) updateTimeouts(fn func(t *timeouts)) {
	for {
		old := c.tmo.Load()
		t := defaultTimeouts
		if old != nil {
			t = *old
		}
		fn(&t)
		if c.tmo.CompareAndSwap(old, &t) {
			return
		}
	}
}

// SetConnectTimeout bounds connecting and the handshake, 0 means no limit.
// Like the other timeouts it applies from the next request on.
func (c *Client) SetConnectTimeout(d time.Duration) {
	c.updateTimeouts(func(t *timeouts) { t.connect = d })
}

// SetSendTimeout bounds writing a request, 0 means no limit.
func (c *Client) SetSendTimeout(d time.Duration) {
	c.updateTimeouts(func(t *timeouts) { t.send = d })
}

// SetReceiveTimeout is the budget of a whole request, from connecting to
// the last byte of the response body. 0 means no limit.
func (c *Client) SetReceiveTimeout(d time.Duration) {
	c.updateTimeouts(func(t *timeouts) { t.receive = d })
}

func (c *Client) ConnectTimeout() time.Duration { return c.timeouts().connect }
func (c *Client) SendTimeout() time.Duration    { return c.timeouts().send }
func (c *Client) ReceiveTimeout() time.Duration { return c.timeouts().receive }

// SetKeepAlive controls whether sessions are cached after a request.
func (c *Client) SetKeepAlive(on bool) { c.noKeepAlive.Store(!on) }

func (c *Client) KeepAlive() bool { return !c.noKeepAlive.Load() }

// Use appends mw to the end of the chain. The last "Use"d mw executes first
func (c *Client) Use(mws ...Middleware) {
	c.mu.Lock()
	c.middlewares = append(c.middlewares, mws...)
	c.mu.Unlock()
}

// UseDialer replaces the dialer with the one returned by fn, which receives
// the current one so it can be wrapped.
func (c *Client) UseDialer(fn func(Dialer) Dialer) {
	c.init()
	c.mu.Lock()
	c.dialer = fn(c.dialer)
	c.mu.Unlock()
}

func (c *Client) getDialer() Dialer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dialer
}

func (c *Client) CtxDo(ctx context.Context, req *http.Request) (*http.Response, error) {
	c.init()
	pr, err := req.Prepare()
	if err != nil {
		return nil, err
	}
	tmo := c.timeouts()
	if req.ConnectTimeout > 0 {
		tmo.connect = req.ConnectTimeout
	}
	if req.ReceiveTimeout > 0 {
		tmo.receive = req.ReceiveTimeout
	}
	pr.ConnectTimeout = tmo.connect

	next := func(ctx context.Context, pr *PreparedRequest) (*http.Response, error) {
		return c.roundTrip(ctx, pr, tmo)
	}
	c.mu.RLock()
	for _, mw := range c.middlewares {
		next = mw(next)
	}
	c.mu.RUnlock()
	return next(ctx, pr)
}

func (c *Client) roundTrip(ctx context.Context, pr *PreparedRequest, tmo timeouts) (*http.Response, error) {
	snap := c.trust.Snapshot()
	dl := deadline.New(tmo.receive)
	d := c.getDialer()

	resp, retry, err := c.exchange(ctx, d, pr, snap, dl, tmo.send, false)
	if retry {
		c.logger().Info().Err(err).Str("host", pr.U.Host).
			Msg("client: cached session failed before responding, retrying on a new connection")
		resp, _, err = c.exchange(ctx, d, pr, snap, dl, tmo.send, true)
	}
	if err != nil {
		dl.Expire()
		return nil, err
	}
	return resp, nil
}

// exchange writes pr and reads the response head on one session. retry
// reports whether the failure happened on a cached session before the peer
// sent anything, so the request may be repeated.
func (c *Client) exchange(ctx context.Context, d Dialer, pr *PreparedRequest, snap *trust.Snapshot, dl *deadline.Deadline, send time.Duration, fresh bool) (_ *http.Response, retry bool, err error) {
	s, err := d.Acquire(ctx, pr, snap, dl, fresh)
	if err != nil {
		return nil, false, err
	}
	received := s.Received()

	resp := &http.Response{}
	err = deadline.Run(ctx, dl, deadline.PhaseSend, s, func() error {
		return writeRequest(s, pr, send)
	})
	if err == nil {
		err = deadline.Run(ctx, dl, deadline.PhaseReceive, s, func() error {
			return ioError("receive", s, h1.Read(s.Reader(), pr, resp))
		})
	}
	if err != nil {
		d.Release(s, false)
		retry = s.Reused() && s.Received() == received && herrors.IsRetryable(err) && pr.Rewindable()
		return nil, retry, err
	}

	resp.TLS = s.State
	resp.Reused = s.Reused()
	reusable := !resp.Close && !pr.Close && c.KeepAlive()
	if resp.Body == http.NoBody {
		d.Release(s, reusable)
		dl.Expire()
		return resp, false, nil
	}
	resp.Body = &body{ctx: ctx, d: d, s: s, dl: dl, r: resp.Body, reusable: reusable}
	return resp, false, nil
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.CtxDo(context.Background(), req)
}
