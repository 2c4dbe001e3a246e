package http

import (
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

type Request struct {
	Method string
	URL    string
	Body   interface{}
	Header http.Header

	// Close asks for the session to be discarded after this exchange.
	Close bool

	// per request overrides of the client timeouts, 0 keeps the client's
	ConnectTimeout time.Duration
	ReceiveTimeout time.Duration
}

type Response struct {
	Proto      string
	Status     string
	StatusCode int
	Header     http.Header

	ContentLength int64
	Body          io.ReadCloser

	// Close is set when the server will not accept another request on
	// this connection.
	Close bool
	// TLS is nil for plain http.
	TLS *tls.ConnectionState
	// Reused reports whether the request went out on a cached session.
	Reused bool
}
