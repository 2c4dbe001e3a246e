// package errors contains the failure taxonomy surfaced by the connection layer.
//
// configuration errors (InvalidCertificateError, InvalidKeyError, KeyMismatchError)
// are returned by trust setters and never retried. timeout errors are returned when
// a request budget runs out. security policy failures (CertificateVerifyError,
// HostnameMismatchError, CipherNegotiationError) are never downgraded. TransportError
// is the only retryable class.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type InvalidCertificateError struct {
	Source string
	Err    error
}

func (e *InvalidCertificateError) Error() string {
	msg := "invalid certificate"
	if e.Source != "" {
		msg += " from " + e.Source
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidCertificateError) Unwrap() error { return e.Err }

// InvalidKeyError is returned when a private key cannot be parsed or decrypted.
type InvalidKeyError struct {
	Source string
	Err    error
}

func (e *InvalidKeyError) Error() string {
	msg := "invalid private key"
	if e.Source != "" {
		msg += " from " + e.Source
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidKeyError) Unwrap() error { return e.Err }

// KeyMismatchError is returned when a private key does not belong to the
// public key of the certificate it is paired with.
type KeyMismatchError struct {
	Subject string
}

func (e *KeyMismatchError) Error() string {
	return "private key does not match certificate public key (subject: " + e.Subject + ")"
}

type timeoutError struct {
	phase  string
	budget time.Duration
	err    error
}

func (e timeoutError) message(kind string) string {
	msg := kind + " during " + e.phase
	if e.budget > 0 {
		msg += " (budget " + e.budget.String() + ")"
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

type ConnectTimeoutError struct{ timeoutError }

func NewConnectTimeout(phase string, budget time.Duration, err error) *ConnectTimeoutError {
	return &ConnectTimeoutError{timeoutError{phase, budget, err}}
}

func (e *ConnectTimeoutError) Error() string   { return e.message("connect timeout") }
func (e *ConnectTimeoutError) Unwrap() error   { return e.err }
func (e *ConnectTimeoutError) Timeout() bool   { return true }
func (e *ConnectTimeoutError) Temporary() bool { return true }

type SendTimeoutError struct{ timeoutError }

func NewSendTimeout(phase string, budget time.Duration, err error) *SendTimeoutError {
	return &SendTimeoutError{timeoutError{phase, budget, err}}
}

func (e *SendTimeoutError) Error() string   { return e.message("send timeout") }
func (e *SendTimeoutError) Unwrap() error   { return e.err }
func (e *SendTimeoutError) Timeout() bool   { return true }
func (e *SendTimeoutError) Temporary() bool { return true }

type ReceiveTimeoutError struct{ timeoutError }

func NewReceiveTimeout(phase string, budget time.Duration, err error) *ReceiveTimeoutError {
	return &ReceiveTimeoutError{timeoutError{phase, budget, err}}
}

func (e *ReceiveTimeoutError) Error() string   { return e.message("receive timeout") }
func (e *ReceiveTimeoutError) Unwrap() error   { return e.err }
func (e *ReceiveTimeoutError) Timeout() bool   { return true }
func (e *ReceiveTimeoutError) Temporary() bool { return true }

// diagnostic classes carried by CertificateVerifyError
const (
	ReasonUnknownIssuer    = "unable to get local issuer certificate"
	ReasonExpired          = "certificate has expired"
	ReasonNotYetValid      = "certificate is not yet valid"
	ReasonPathLength       = "path length exceeded"
	ReasonNotAuthorized    = "certificate not authorized for this usage"
	ReasonCallbackRejected = "rejected by verify callback"
	ReasonNoPeerCert       = "no peer certificate"
	ReasonPeerRejected     = "peer rejected certificate"
	ReasonInvalid          = "invalid certificate"
)

// CertificateVerifyError reports a chain or trust failure. Reason is the
// engine diagnostic and is always part of the message.
type CertificateVerifyError struct {
	Reason  string
	Depth   int
	Subject string
	Err     error
}

func (e *CertificateVerifyError) Error() string {
	msg := "certificate verify failed: " + e.Reason
	if e.Subject != "" {
		msg += fmt.Sprintf(" (depth %d, subject %s)", e.Depth, e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CertificateVerifyError) Unwrap() error { return e.Err }

type HostnameMismatchError struct {
	Host       string
	Candidates []string
}

func (e *HostnameMismatchError) Error() string {
	if len(e.Candidates) == 0 {
		return "hostname mismatch: certificate has no names valid for " + e.Host
	}
	return "hostname mismatch: " + e.Host + " does not match certificate names [" + strings.Join(e.Candidates, ", ") + "]"
}

const ReasonNoCipherMatch = "no cipher match"

type CipherNegotiationError struct {
	Reason string
	Err    error
}

func (e *CipherNegotiationError) Error() string {
	msg := "cipher negotiation failed: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CipherNegotiationError) Unwrap() error { return e.Err }

type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	msg := "transport error"
	if e.Op != "" {
		msg += " on " + e.Op
	}
	if e.Addr != "" {
		msg += " " + e.Addr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is one of the budget exhaustion errors.
func IsTimeout(err error) bool {
	var t interface{ Timeout() bool }
	if !stderrors.As(err, &t) {
		return false
	}
	var (
		c *ConnectTimeoutError
		s *SendTimeoutError
		r *ReceiveTimeoutError
	)
	return stderrors.As(err, &c) || stderrors.As(err, &s) || stderrors.As(err, &r)
}

// IsRetryable reports whether err may be masked by retrying on a fresh connection.
func IsRetryable(err error) bool {
	var t *TransportError
	return stderrors.As(err, &t) && !IsTimeout(err)
}
