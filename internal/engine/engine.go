// package engine adapts crypto/tls to a trust snapshot.
//
// chain validation is done here rather than by crypto/tls so the verify
// callback can observe and override every verdict. hostname binding is left
// to the caller.
package engine

import (
	"context"
	"crypto/tls"
	"net"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
	"github.com/frankli0324/go-httpssl/internal/trust"
)

// Engine turns a raw connection into an authenticated one. The returned error
// is already mapped to the errors in package errors.
type Engine interface {
	Handshake(ctx context.Context, raw net.Conn, serverName string, snap *trust.Snapshot) (*tls.Conn, error)
}

// Std is the crypto/tls engine.
type Std struct {
	// NextProtos advertised through ALPN, "http/1.1" when empty.
	NextProtos []string
}

var _ Engine = Std{}

// NewConfig builds the client tls.Config enforcing snap.
func NewConfig(snap *trust.Snapshot, serverName string, nextProtos []string) *tls.Config {
	if len(nextProtos) == 0 {
		nextProtos = []string{"http/1.1"}
	}
	min, max := snap.Versions()
	cfg := &tls.Config{
		ServerName:         serverName,
		NextProtos:         nextProtos,
		CipherSuites:       snap.CipherSuites(),
		MinVersion:         min,
		MaxVersion:         max,
		InsecureSkipVerify: true, // replaced by VerifyConnection
		VerifyConnection:   newVerifier(snap).verify,
	}
	if id := snap.Identity(); id != nil {
		cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return id, nil
		}
	}
	return cfg
}

func (e Std) Handshake(ctx context.Context, raw net.Conn, serverName string, snap *trust.Snapshot) (*tls.Conn, error) {
	if snap.NoCipherMatch() {
		return nil, &herrors.CipherNegotiationError{Reason: herrors.ReasonNoCipherMatch}
	}
	c := tls.Client(raw, NewConfig(snap, serverName, e.NextProtos))
	if err := c.HandshakeContext(ctx); err != nil {
		return nil, Classify(err, raw.RemoteAddr().String())
	}
	return c, nil
}
