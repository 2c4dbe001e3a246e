package trust

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
)

// SetClientIdentity loads the certificate chain at certPath and the private
// key at keyPath. passphrase decrypts a legacy encrypted PEM key and is
// ignored for plain keys.
func (c *Config) SetClientIdentity(certPath, keyPath, passphrase string) error {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return &herrors.InvalidCertificateError{Source: certPath, Err: err}
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return &herrors.InvalidKeyError{Source: keyPath, Err: err}
	}
	id, err := buildIdentity(certPEM, keyPEM, []byte(passphrase), certPath, keyPath)
	if err != nil {
		return err
	}
	c.set(func(s *Snapshot) { s.identity = id })
	return nil
}

func (c *Config) SetClientIdentityPEM(certPEM, keyPEM, passphrase []byte) error {
	id, err := buildIdentity(certPEM, keyPEM, passphrase, "", "")
	if err != nil {
		return err
	}
	c.set(func(s *Snapshot) { s.identity = id })
	return nil
}

// SetClientIdentityPKCS12 loads a PKCS#12 bundle holding one certificate
// and its key.
func (c *Config) SetClientIdentityPKCS12(path, passphrase string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &herrors.InvalidCertificateError{Source: path, Err: err}
	}
	key, cert, err := pkcs12.Decode(data, passphrase)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return &herrors.InvalidKeyError{Source: path, Err: err}
		}
		return &herrors.InvalidCertificateError{Source: path, Err: err}
	}
	if err := matchKey(cert, key); err != nil {
		return err
	}
	id := &tls.Certificate{Certificate: [][]byte{cert.Raw}, PrivateKey: key, Leaf: cert}
	c.set(func(s *Snapshot) { s.identity = id })
	return nil
}

func (c *Config) ClearClientIdentity() {
	c.set(func(s *Snapshot) { s.identity = nil })
}

func buildIdentity(certPEM, keyPEM, passphrase []byte, certSrc, keySrc string) (*tls.Certificate, error) {
	chain, err := ParseCertificates(certPEM, certSrc)
	if err != nil {
		return nil, err
	}
	key, err := parseKey(keyPEM, passphrase, keySrc)
	if err != nil {
		return nil, err
	}
	if err := matchKey(chain[0], key); err != nil {
		return nil, err
	}
	id := &tls.Certificate{PrivateKey: key, Leaf: chain[0]}
	for _, c := range chain {
		id.Certificate = append(id.Certificate, c.Raw)
	}
	return id, nil
}

func parseKey(data, passphrase []byte, source string) (crypto.PrivateKey, error) {
	var block *pem.Block
	for rest := data; ; {
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, &herrors.InvalidKeyError{Source: source, Err: errors.New("no PEM private key found")}
		}
		if strings.HasSuffix(block.Type, "PRIVATE KEY") {
			break
		}
	}
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		return nil, &herrors.InvalidKeyError{Source: source, Err: errors.New("PKCS#8 encrypted keys are not supported, use a PKCS#12 bundle")}
	}

	der := block.Bytes
	//nolint:staticcheck
	if x509.IsEncryptedPEMBlock(block) {
		if len(passphrase) == 0 {
			return nil, &herrors.InvalidKeyError{Source: source, Err: errors.New("key is encrypted and no passphrase was given")}
		}
		//nolint:staticcheck
		d, err := x509.DecryptPEMBlock(block, passphrase)
		if err != nil {
			return nil, &herrors.InvalidKeyError{Source: source, Err: err}
		}
		der = d
	}

	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch k.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
			return k, nil
		}
		return nil, &herrors.InvalidKeyError{Source: source, Err: errors.New("unsupported private key type")}
	}
	k, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, &herrors.InvalidKeyError{Source: source, Err: errors.New("failed to parse private key")}
	}
	return k, nil
}

func matchKey(cert *x509.Certificate, key crypto.PrivateKey) error {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return &herrors.InvalidKeyError{Err: errors.New("private key cannot sign")}
	}
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(cert.PublicKey) {
		return &herrors.KeyMismatchError{Subject: cert.Subject.String()}
	}
	return nil
}
