package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/http/httpguts"
)

type PreparedRequest struct {
	*Request

	U          *url.URL
	GetBody    func() (io.ReadCloser, error)
	Header     http.Header
	HeaderHost string

	ContentLength int64

	// ConnectTimeout caps connect and handshake, resolved from the
	// request and its client.
	ConnectTimeout time.Duration

	rewindable bool
}

// Rewindable reports whether GetBody can produce the body again, so the
// request may be sent a second time.
func (r *PreparedRequest) Rewindable() bool { return r.rewindable }

func validMethod(m string) bool {
	return m != "" && strings.IndexFunc(m, func(r rune) bool { return !httpguts.IsTokenRune(r) }) == -1
}

func (r *Request) Prepare() (*PreparedRequest, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if r.Method == "" {
		cp := *r
		cp.Method = "GET"
		r = &cp
	}
	if !validMethod(r.Method) {
		return nil, fmt.Errorf("invalid method %q", r.Method)
	}

	headers := make(http.Header, len(r.Header))
	host := u.Host
	cl := int64(-1)
	// user defined headers has higher priority
	for k, v := range r.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return nil, fmt.Errorf("invalid header name %q", k)
		}
		for _, vv := range v {
			if !httpguts.ValidHeaderFieldValue(vv) {
				return nil, fmt.Errorf("invalid value for header %q", k)
			}
		}
		switch strings.ToLower(k) {
		case "host":
			if len(v) != 0 {
				host = v[0]
			}
		case "content-length":
			if len(v) != 0 {
				n, err := strconv.ParseInt(v[0], 10, 64)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("invalid content-length %q", v[0])
				}
				cl = n
			}
		default:
			headers[k] = append([]string(nil), v...)
		}
	}
	if host == "" {
		return nil, url.InvalidHostError("empty host")
	}
	if !httpguts.ValidHostHeader(host) {
		return nil, url.InvalidHostError(host)
	}

	pr := &PreparedRequest{
		Request: r, U: u,
		Header: headers, HeaderHost: host,
		ContentLength: -1,
	}
	if err := pr.setBody(r.Body); err != nil {
		return nil, err
	}
	if cl != -1 {
		// a stream of unknown size takes the length it was announced with
		if pr.ContentLength == -1 && r.Body != nil {
			pr.ContentLength = cl
		} else if pr.ContentLength != cl {
			return nil, errors.New("conflicting value between body size and content-length request header")
		}
	}
	return pr, nil
}

func replay(b []byte) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
}

// setBody derives GetBody and the content length from the body value. only
// in-memory bodies can be replayed.
func (r *PreparedRequest) setBody(body interface{}) error {
	r.rewindable = true
	switch b := body.(type) {
	case nil:
		r.GetBody = func() (io.ReadCloser, error) { return NoBody, nil }
	case string:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(b)), nil
		}
	case []byte:
		r.ContentLength = int64(len(b))
		r.GetBody = replay(b)
	case *bytes.Buffer:
		r.ContentLength = int64(b.Len())
		r.GetBody = replay(b.Bytes())
	case *bytes.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			r := snapshot
			return io.NopCloser(&r), nil
		}
	case *strings.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			r := snapshot
			return io.NopCloser(&r), nil
		}
	case io.Reader:
		r.rewindable = false
		if sizer, ok := b.(interface{ Size() int64 }); ok {
			r.ContentLength = sizer.Size()
		}
		cb, ok := b.(io.ReadCloser)
		if !ok {
			cb = io.NopCloser(b)
		}
		var taken atomic.Bool
		r.GetBody = func() (io.ReadCloser, error) {
			if taken.CompareAndSwap(false, true) {
				return cb, nil
			}
			return nil, http.ErrBodyReadAfterClose
		}
	default:
		return fmt.Errorf("unsupported body type: %T", body)
	}
	return nil
}
