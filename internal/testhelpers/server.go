package testhelpers

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

// Server wraps an httptest TLS server and counts the connections it accepted.
type Server struct {
	*httptest.Server
	conns atomic.Int64
}

// Conns returns the number of TCP connections accepted so far.
func (s *Server) Conns() int64 { return s.conns.Load() }

// URL returns the server URL with its host replaced by host, keeping the port.
func (s *Server) URLFor(host, path string) string {
	u, _ := url.Parse(s.Server.URL)
	u.Host = net.JoinHostPort(host, u.Port())
	u.Path = path
	return u.String()
}

func (s *Server) Port() string {
	u, _ := url.Parse(s.Server.URL)
	return u.Port()
}

// NewTLSServer starts a server presenting only cert. opts may tweak the TLS
// config before the listener starts.
func NewTLSServer(t testing.TB, cert *Cert, h http.Handler, opts ...func(*tls.Config)) *Server {
	t.Helper()
	s := &Server{Server: httptest.NewUnstartedServer(h)}
	s.Config.ConnState = func(_ net.Conn, st http.ConnState) {
		if st == http.StateNew {
			s.conns.Add(1)
		}
	}
	s.TLS = &tls.Config{Certificates: []tls.Certificate{cert.TLS()}}
	for _, o := range opts {
		o(s.TLS)
	}
	s.StartTLS()
	t.Cleanup(s.Close)
	return s
}

// NewServer starts a plain http server counting its connections.
func NewServer(t testing.TB, h http.Handler) *Server {
	t.Helper()
	s := &Server{Server: httptest.NewUnstartedServer(h)}
	s.Config.ConnState = func(_ net.Conn, st http.ConnState) {
		if st == http.StateNew {
			s.conns.Add(1)
		}
	}
	s.Start()
	t.Cleanup(s.Close)
	return s
}

// RequireClientCert makes the server demand a certificate issued by p.
func RequireClientCert(p *PKI) func(*tls.Config) {
	return func(c *tls.Config) {
		c.ClientAuth = tls.RequireAndVerifyClientCert
		c.ClientCAs = p.ClientCAs()
	}
}

// Hello answers every request with "hello".
var Hello = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("hello"))
})
