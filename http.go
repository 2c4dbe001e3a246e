// Package httpssl is an HTTPS client whose trust decisions are explicit:
// trust anchors, client identity, cipher policy and verification policy are
// configured per client through [Client.TLS], and cached sessions are only
// reused under the exact configuration they were authenticated with.
package httpssl

import (
	"net/http"

	"github.com/frankli0324/go-httpssl/internal"
	ihttp "github.com/frankli0324/go-httpssl/internal/http"
)

type Client = internal.Client
type Header = http.Header
type Request = ihttp.Request
type PreparedRequest = ihttp.PreparedRequest
type Response = ihttp.Response

type Handler = internal.Handler
type Middleware = internal.Middleware

type StatusError = internal.StatusError

const (
	DefaultConnectTimeout = internal.DefaultConnectTimeout
	DefaultSendTimeout    = internal.DefaultSendTimeout
	DefaultReceiveTimeout = internal.DefaultReceiveTimeout
)
