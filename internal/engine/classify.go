package engine

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"time"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
)

// alerts sent by the peer as crypto/tls spells them
var (
	negotiationAlerts = []string{
		"handshake failure",
		"protocol version not supported",
		"insufficient security level",
		"illegal parameter",
	}
	rejectionAlerts = []string{
		"bad certificate",
		"certificate required",
		"unknown certificate authority",
		"unsupported certificate",
		"certificate revoked",
		"expired certificate",
		"unknown certificate",
		"access denied",
	}
	// local failures to agree on parameters
	negotiationErrors = []string{
		"no cipher suite supported",
		"unconfigured cipher suite",
		"unsupported protocol version",
		"no supported versions",
		"protocol version not supported",
	}
)

// Classify maps a handshake error to the error taxonomy. Errors already in
// the taxonomy pass through.
func Classify(err error, addr string) error {
	if err == nil {
		return nil
	}
	var (
		cve *herrors.CertificateVerifyError
		cne *herrors.CipherNegotiationError
		hme *herrors.HostnameMismatchError
	)
	if errors.As(err, &cve) || errors.As(err, &cne) || errors.As(err, &hme) {
		return err
	}

	var verr *tls.CertificateVerificationError
	if errors.As(err, &verr) {
		return &herrors.CertificateVerifyError{Reason: reasonOf(verr.Err, time.Now()), Err: err}
	}
	var unknown x509.UnknownAuthorityError
	var invalid x509.CertificateInvalidError
	if errors.As(err, &unknown) || errors.As(err, &invalid) {
		return &herrors.CertificateVerifyError{Reason: reasonOf(err, time.Now()), Err: err}
	}

	if aerr := FromAlert(err); aerr != nil {
		return aerr
	}

	msg := err.Error()
	for _, s := range negotiationErrors {
		if strings.Contains(msg, s) {
			return &herrors.CipherNegotiationError{Reason: s, Err: err}
		}
	}
	return &herrors.TransportError{Op: "handshake", Addr: addr, Err: err}
}

func classifyAlert(text string, err error) error {
	text = strings.TrimPrefix(text, "tls: ")
	for _, s := range negotiationAlerts {
		if text == s {
			return &herrors.CipherNegotiationError{Reason: s, Err: err}
		}
	}
	for _, s := range rejectionAlerts {
		if text == s {
			return &herrors.CertificateVerifyError{Reason: herrors.ReasonPeerRejected, Err: err}
		}
	}
	return &herrors.TransportError{Op: "handshake", Err: err}
}

// FromAlert classifies err when it carries an alert from the peer and
// returns nil otherwise. With TLS 1.3 the server judges the client
// certificate after the client considers the handshake done, so its verdict
// shows up on the first read.
func FromAlert(err error) error {
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return classifyAlert(alert.Error(), err)
	}
	var op *net.OpError
	if errors.As(err, &op) && op.Op == "remote error" {
		return classifyAlert(op.Err.Error(), err)
	}
	return nil
}
