// package hostname binds a peer certificate to the host a request targets.
//
// DNS names come from the subject alternative name extension. The subject
// common name is consulted only when that extension carries no DNS name and
// no IP address. IP literal hosts only ever match IP entries.
package hostname

import (
	"crypto/x509"
	"net"
	"strings"

	"golang.org/x/net/idna"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
)

// Normalize lowers host, strips IPv6 brackets and zones and a trailing dot,
// and converts internationalized names to their ASCII form.
func Normalize(host string) string {
	h := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if i := strings.IndexByte(h, '%'); i >= 0 && strings.Contains(h, ":") {
		h = h[:i]
	}
	h = strings.TrimSuffix(h, ".")
	if net.ParseIP(h) != nil {
		return h
	}
	if a, err := idna.Lookup.ToASCII(h); err == nil {
		h = a
	}
	return strings.ToLower(h)
}

// Candidates returns the names cert may be matched against.
func Candidates(cert *x509.Certificate) []string {
	if cert == nil {
		return nil
	}
	out := make([]string, 0, len(cert.DNSNames)+len(cert.IPAddresses))
	out = append(out, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		out = append(out, ip.String())
	}
	if len(out) == 0 && validHostname(cert.Subject.CommonName) {
		out = append(out, cert.Subject.CommonName)
	}
	return out
}

// Check reports whether cert is valid for host.
func Check(cert *x509.Certificate, host string) bool {
	if cert == nil {
		return false
	}
	host = Normalize(host)
	if host == "" {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, c := range cert.IPAddresses {
			if ip.Equal(c) {
				return true
			}
		}
		return false
	}

	names := cert.DNSNames
	if len(names) == 0 && len(cert.IPAddresses) == 0 && validHostname(cert.Subject.CommonName) {
		names = []string{cert.Subject.CommonName}
	}
	for _, n := range names {
		if Match(n, host) {
			return true
		}
	}
	return false
}

// Verify is Check returning a [herrors.HostnameMismatchError] on failure.
func Verify(cert *x509.Certificate, host string) error {
	if Check(cert, host) {
		return nil
	}
	return &herrors.HostnameMismatchError{Host: host, Candidates: Candidates(cert)}
}

// Match matches a normalized host against one certificate name. a
// wildcard is only honoured as the whole left-most label, stands for exactly
// one non-empty label, and needs at least two labels after it.
func Match(pattern, host string) bool {
	pattern = Normalize(pattern)
	if pattern == "" || host == "" {
		return false
	}
	if !strings.HasPrefix(pattern, "*.") {
		return !strings.Contains(pattern, "*") && pattern == host
	}
	suffix := pattern[1:] // ".foo.com"
	if strings.Contains(suffix, "*") || strings.Count(suffix, ".") < 2 {
		return false
	}
	label, ok := strings.CutSuffix(host, suffix)
	return ok && label != "" && !strings.Contains(label, ".")
}

func validHostname(h string) bool {
	h = strings.TrimSuffix(h, ".")
	if h == "" || len(h) > 253 {
		return false
	}
	for i, label := range strings.Split(h, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if i == 0 && label == "*" {
			continue
		}
		for j := 0; j < len(label); j++ {
			c := label[j]
			switch {
			case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
			case c == '-' && j != 0 && j != len(label)-1:
			case c == '_':
			default:
				return false
			}
		}
	}
	return true
}
