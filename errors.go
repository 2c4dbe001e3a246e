package httpssl

import herrors "github.com/frankli0324/go-httpssl/internal/errors"

// Every failure of a request is one of these, use errors.As to tell them
// apart. Only TransportError is ever worth retrying.
type (
	InvalidCertificateError = herrors.InvalidCertificateError
	InvalidKeyError         = herrors.InvalidKeyError
	KeyMismatchError        = herrors.KeyMismatchError
	ConnectTimeoutError     = herrors.ConnectTimeoutError
	SendTimeoutError        = herrors.SendTimeoutError
	ReceiveTimeoutError     = herrors.ReceiveTimeoutError
	CertificateVerifyError  = herrors.CertificateVerifyError
	HostnameMismatchError   = herrors.HostnameMismatchError
	CipherNegotiationError  = herrors.CipherNegotiationError
	TransportError          = herrors.TransportError
)

func IsTimeout(err error) bool   { return herrors.IsTimeout(err) }
func IsRetryable(err error) bool { return herrors.IsRetryable(err) }
