package netpool

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PlainFingerprint keys sessions that carry no TLS.
const PlainFingerprint = "plain"

// Key identifies sessions that are interchangeable: same destination,
// authenticated under the same trust configuration.
type Key struct {
	Host        string
	Port        string
	Fingerprint string
}

func (k Key) Addr() string { return net.JoinHostPort(k.Host, k.Port) }

func (k Key) String() string {
	fp := k.Fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}
	return k.Addr() + "#" + fp
}

// Session is an established, validated connection. It is owned by exactly
// one caller between Acquire and Release.
type Session struct {
	ID  string
	Key Key

	State            *tls.ConnectionState // nil for plain sessions
	PeerCertificates []*x509.Certificate
	KeepAlive        bool
	CreatedAt        time.Time

	conn     net.Conn
	br       *bufio.Reader
	received int64
	reused   bool
	lastUsed time.Time
	closed   atomic.Bool
	released atomic.Bool
	gen      uint64
	pool     *Pool
	logger   zerolog.Logger
}

func NewSession(key Key, c net.Conn) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Key:       key,
		KeepAlive: true,
		CreatedAt: time.Now(),
		conn:      c,
		lastUsed:  time.Now(),
		logger:    zerolog.Nop(),
	}
	if tc, ok := c.(*tls.Conn); ok {
		st := tc.ConnectionState()
		s.State = &st
		s.PeerCertificates = st.PeerCertificates
	}
	return s
}

// Reused reports whether the session came out of the idle list.
func (s *Session) Reused() bool { return s.reused }

func (s *Session) LastUsed() time.Time { return s.lastUsed }

// Received returns the number of bytes read from the session so far.
func (s *Session) Received() int64 { return s.received }

func (s *Session) Available() bool { return !s.closed.Load() }

// Raw returns the underlying connection.
func (s *Session) Raw() net.Conn { return s.conn }

// Reader returns the buffered reader bound to this session. data it has
// buffered belongs to the next response read from the session.
func (s *Session) Reader() *bufio.Reader {
	if s.br == nil {
		s.br = bufio.NewReader(s)
	}
	return s.br
}

// Buffered reports whether bytes are waiting in the session reader.
func (s *Session) Buffered() bool { return s.br != nil && s.br.Buffered() > 0 }

func (s *Session) Write(p []byte) (n int, err error) {
	n, err = s.conn.Write(p)
	if err != nil {
		s.fail("write", err)
	}
	return
}

func (s *Session) Read(p []byte) (n int, err error) {
	n, err = s.conn.Read(p)
	s.received += int64(n)
	if err != nil {
		s.fail("read", err)
	}
	return
}

func (s *Session) fail(op string, err error) {
	if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug().Err(err).Str("session", s.ID).Str("op", op).Msg("netpool: session error")
	}
	s.Close()
}

func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}

const probeWindow = time.Millisecond

// alive is asked about idle sessions whose socket is readable. a TLS
// session may only have post-handshake messages pending, which a short
// read consumes. anything else means the session can't be reused.
func (s *Session) alive() bool {
	tc, ok := s.conn.(*tls.Conn)
	if !ok {
		return false
	}
	tc.SetReadDeadline(time.Now().Add(probeWindow))
	var b [1]byte
	n, err := tc.Read(b[:])
	tc.SetReadDeadline(time.Time{})
	var ne net.Error
	return n == 0 && errors.As(err, &ne) && ne.Timeout()
}

func (s *Session) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *Session) logEvent(e *zerolog.Event) *zerolog.Event {
	return e.Str("session", s.ID).Str("addr", s.Key.Addr()).Bool("reused", s.reused)
}
