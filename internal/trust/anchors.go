package trust

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
)

// ParseCertificates reads every certificate from PEM or DER input. Non
// certificate PEM blocks are skipped. It fails when nothing could be parsed.
func ParseCertificates(data []byte, source string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	if bytes.Contains(data, []byte("-----BEGIN")) {
		rest := data
		for {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if block.Type != "CERTIFICATE" && block.Type != "TRUSTED CERTIFICATE" {
				continue
			}
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, &herrors.InvalidCertificateError{Source: source, Err: err}
			}
			certs = append(certs, c)
		}
	} else if len(data) > 0 {
		cs, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, &herrors.InvalidCertificateError{Source: source, Err: err}
		}
		certs = cs
	}
	if len(certs) == 0 {
		return nil, &herrors.InvalidCertificateError{Source: source, Err: errors.New("no certificate found")}
	}
	return certs, nil
}

func appendAnchors(dst []*x509.Certificate, certs ...*x509.Certificate) []*x509.Certificate {
	seen := make(map[[32]byte]bool, len(dst))
	for _, c := range dst {
		seen[sha256.Sum256(c.Raw)] = true
	}
	for _, c := range certs {
		if c == nil {
			continue
		}
		d := sha256.Sum256(c.Raw)
		if !seen[d] {
			seen[d] = true
			dst = append(dst, c)
		}
	}
	return dst
}

// AddTrustAnchor adds every certificate in the PEM or DER file at path.
func (c *Config) AddTrustAnchor(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &herrors.InvalidCertificateError{Source: path, Err: err}
	}
	return c.addAnchors(data, path)
}

func (c *Config) AddTrustAnchorPEM(data []byte) error {
	return c.addAnchors(data, "")
}

func (c *Config) addAnchors(data []byte, source string) error {
	certs, err := ParseCertificates(data, source)
	if err != nil {
		return err
	}
	c.AddTrustAnchorCert(certs...)
	return nil
}

func (c *Config) AddTrustAnchorCert(certs ...*x509.Certificate) {
	c.set(func(s *Snapshot) { s.anchors = appendAnchors(s.anchors, certs...) })
}

// SetTrustAnchors replaces the whole anchor set.
func (c *Config) SetTrustAnchors(certs ...*x509.Certificate) {
	c.set(func(s *Snapshot) { s.anchors = appendAnchors(nil, certs...) })
}

func (c *Config) ClearTrustAnchors() {
	c.set(func(s *Snapshot) { s.anchors = nil })
}

// well known bundle locations, first match wins
var systemCertFiles = []string{
	"/etc/ssl/certs/ca-certificates.crt",
	"/etc/pki/tls/certs/ca-bundle.crt",
	"/etc/ssl/ca-bundle.pem",
	"/etc/pki/tls/cacert.pem",
	"/etc/pki/ca-trust/extracted/pem/tls-ca-bundle.pem",
	"/etc/ssl/cert.pem",
	"/usr/local/etc/ssl/cert.pem",
	"/usr/local/share/certs/ca-root-nss.crt",
}

var systemCertDirs = []string{
	"/etc/ssl/certs",
	"/etc/pki/tls/certs",
}

// SetDefaultPaths adds the platform trust store to the anchors. SSL_CERT_FILE
// and SSL_CERT_DIR override the built in locations.
func (c *Config) SetDefaultPaths() error {
	files, dirs := systemCertFiles, systemCertDirs
	if f := os.Getenv("SSL_CERT_FILE"); f != "" {
		files = []string{f}
	}
	if d := os.Getenv("SSL_CERT_DIR"); d != "" {
		dirs = strings.Split(d, string(os.PathListSeparator))
	}

	var certs []*x509.Certificate
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		if cs, err := ParseCertificates(data, f); err == nil {
			certs = append(certs, cs...)
			break
		}
	}
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(d, e.Name()))
			if err != nil {
				continue
			}
			if cs, err := ParseCertificates(data, e.Name()); err == nil {
				certs = append(certs, cs...)
			}
		}
	}
	if len(certs) == 0 {
		return &herrors.InvalidCertificateError{Source: "default paths", Err: errors.New("no system trust store found")}
	}
	c.AddTrustAnchorCert(certs...)
	return nil
}
