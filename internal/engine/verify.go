package engine

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
	"github.com/frankli0324/go-httpssl/internal/trust"
)

type verifier struct {
	snap *trust.Snapshot
	now  func() time.Time
}

func newVerifier(snap *trust.Snapshot) *verifier {
	return &verifier{snap: snap, now: time.Now}
}

func (v *verifier) verify(cs tls.ConnectionState) error {
	return v.verifyChain(cs.PeerCertificates)
}

// verifyChain validates the certificates presented by the peer, leaf first.
//
// The callback sees every certificate of the chain from the leaf towards the
// anchor together with the verdict of the chain, and its answers replace
// that verdict.
func (v *verifier) verifyChain(presented []*x509.Certificate) error {
	mode := v.snap.VerifyMode()
	if mode == trust.VerifyNone {
		return nil
	}
	if len(presented) == 0 {
		if mode == trust.VerifyPeer {
			return nil
		}
		return &herrors.CertificateVerifyError{Reason: herrors.ReasonNoPeerCert}
	}

	chain, verr := v.buildChain(presented)
	reason := ""
	if verr != nil {
		// crypto/x509 does not tell which element failed, blame the leaf
		reason, chain = reasonOf(verr, v.now()), presented
	}

	cb := v.snap.VerifyCallback()
	if cb == nil {
		if verr != nil {
			return v.failure(reason, 0, chain, verr)
		}
		return nil
	}

	// the chain passes only when the callback accepts every element
	ok := verr == nil
	rejected := -1
	for depth, cert := range chain {
		if !cb(ok, cert) && rejected < 0 {
			rejected = depth
		}
	}
	switch {
	case rejected < 0:
		return nil
	case verr != nil:
		return v.failure(reason, 0, chain, verr)
	}
	return v.failure(herrors.ReasonCallbackRejected, rejected, chain, nil)
}

// buildChain returns the shortest chain that satisfies the depth limit.
func (v *verifier) buildChain(presented []*x509.Certificate) ([]*x509.Certificate, error) {
	opts := x509.VerifyOptions{
		Roots:         v.snap.Roots(),
		Intermediates: x509.NewCertPool(),
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, c := range presented[1:] {
		opts.Intermediates.AddCert(c)
	}
	chains, err := presented[0].Verify(opts)
	if err != nil {
		return nil, err
	}
	best := chains[0]
	for _, c := range chains[1:] {
		if len(c) < len(best) {
			best = c
		}
	}
	if limit, ok := v.snap.VerifyDepth(); ok && len(best)-1 > limit {
		return nil, errPathLength
	}
	return best, nil
}

var errPathLength = errors.New("certificate chain too long")

func (v *verifier) failure(reason string, depth int, chain []*x509.Certificate, err error) error {
	e := &herrors.CertificateVerifyError{Reason: reason, Depth: depth, Err: err}
	if depth < len(chain) {
		e.Subject = chain[depth].Subject.String()
	}
	return e
}

// reasonOf maps an x509 verification error to a reason string.
func reasonOf(err error, now time.Time) string {
	if errors.Is(err, errPathLength) {
		return herrors.ReasonPathLength
	}
	var unknown x509.UnknownAuthorityError
	if errors.As(err, &unknown) {
		return herrors.ReasonUnknownIssuer
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		switch invalid.Reason {
		case x509.Expired:
			if c := invalid.Cert; c != nil && now.Before(c.NotBefore) {
				return herrors.ReasonNotYetValid
			}
			return herrors.ReasonExpired
		case x509.TooManyIntermediates:
			return herrors.ReasonPathLength
		case x509.NotAuthorizedToSign, x509.IncompatibleUsage, x509.CANotAuthorizedForThisName:
			return herrors.ReasonNotAuthorized
		}
	}
	return herrors.ReasonInvalid
}
