package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/frankli0324/go-httpssl/internal/engine"
	herrors "github.com/frankli0324/go-httpssl/internal/errors"
	"github.com/frankli0324/go-httpssl/internal/http"
	"github.com/frankli0324/go-httpssl/utils/netpool"
)

// evicter is implemented by dialers owning cached sessions.
type evicter interface {
	EvictFingerprint(fp string) int
	Invalidate(host, port string) int
	Clear() int
}

// evict calls fn on every dialer of the chain that caches sessions.
func (c *Client) evict(fn func(evicter) int) (n int) {
	d := c.getDialer()
	for d != nil {
		if e, ok := d.(evicter); ok {
			n += fn(e)
		}
		d = d.Unwrap()
	}
	return
}

// Reset discards the cached sessions to host:port.
func (c *Client) Reset(host, port string) int {
	c.init()
	return c.evict(func(e evicter) int { return e.Invalidate(host, port) })
}

// ResetAll discards every cached session.
func (c *Client) ResetAll() int {
	c.init()
	return c.evict(func(e evicter) int { return e.Clear() })
}

func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.CtxDo(ctx, &http.Request{Method: "GET", URL: url})
}

// StatusError is returned by GetContent for responses other than 2xx.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %q", e.URL, e.Status)
}

// GetContent returns the body of url, failing unless the status is 2xx.
func (c *Client) GetContent(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return io.ReadAll(resp.Body)
}

func writeRequest(s *netpool.Session, pr *PreparedRequest, limit time.Duration) error {
	if limit > 0 {
		s.Raw().SetWriteDeadline(time.Now().Add(limit))
		defer s.Raw().SetWriteDeadline(time.Time{})
	}
	err := h1.Write(s, pr)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return herrors.NewSendTimeout("send", limit, err)
	}
	return ioError("send", s, err)
}

// ioError classifies a failed read or write on an established session.
// TLS alerts keep their policy meaning: with TLS 1.3 a rejected client
// certificate only surfaces on the first read.
func ioError(op string, s *netpool.Session, err error) error {
	if err == nil {
		return nil
	}
	if aerr := engine.FromAlert(err); aerr != nil {
		return aerr
	}
	var te *herrors.TransportError
	if errors.As(err, &te) || herrors.IsTimeout(err) {
		return err
	}
	return &herrors.TransportError{Op: op, Addr: s.Key.Addr(), Err: err}
}
