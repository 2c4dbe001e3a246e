// package testhelpers builds an in-memory PKI and TLS test servers.
//
// the hierarchy mirrors a typical deployment: a root CA signs an
// intermediate (sub) CA and the sub CA signs every leaf. servers present
// only their leaf, so a client needs the sub CA among its anchors.
package testhelpers

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type Cert struct {
	Cert    *x509.Certificate
	Key     *ecdsa.PrivateKey
	CertPEM []byte
	KeyPEM  []byte
}

func (c *Cert) TLS() tls.Certificate {
	return tls.Certificate{Certificate: [][]byte{c.Cert.Raw}, PrivateKey: c.Key, Leaf: c.Cert}
}

// EncryptedKeyPEM returns the key as a legacy encrypted PEM block.
func (c *Cert) EncryptedKeyPEM(passphrase string) []byte {
	der, err := x509.MarshalECPrivateKey(c.Key)
	if err != nil {
		panic(err)
	}
	//nolint:staticcheck
	block, err := x509.EncryptPEMBlock(rand.Reader, "EC PRIVATE KEY", der, []byte(passphrase), x509.PEMCipherAES256)
	if err != nil {
		panic(err)
	}
	return pem.EncodeToMemory(block)
}

// WriteFiles writes the certificate and key PEM to dir and returns their paths.
func (c *Cert) WriteFiles(t testing.TB, dir, name string) (certPath, keyPath string) {
	t.Helper()
	certPath = filepath.Join(dir, name+".crt")
	keyPath = filepath.Join(dir, name+".key")
	if err := os.WriteFile(certPath, c.CertPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, c.KeyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return
}

type PKI struct {
	Root *Cert
	Sub  *Cert

	Server   *Cert // localhost, 127.0.0.1, ::1
	Foo      *Cert // CN=foo.com, no alternative names
	Wildcard *Cert // CN=localhost, SAN *.foo.com
	Expired  *Cert // localhost, expired an hour ago
	Client   *Cert // client auth

	Stranger *Cert // self signed, unrelated to Root
}

var serial atomic.Int64

type template struct {
	cn       string
	dns      []string
	ips      []net.IP
	ca       bool
	client   bool
	notAfter time.Time
}

func issue(tpl template, parent *Cert) *Cert {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	now := time.Now()
	notAfter := tpl.notAfter
	if notAfter.IsZero() {
		notAfter = now.Add(24 * time.Hour)
	}
	x := &x509.Certificate{
		SerialNumber: big.NewInt(serial.Add(1)),
		Subject:      pkix.Name{CommonName: tpl.cn, Organization: []string{"go-httpssl test"}},
		NotBefore:    now.Add(-2 * time.Hour),
		NotAfter:     notAfter,
		DNSNames:     tpl.dns,
		IPAddresses:  tpl.ips,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	if tpl.ca {
		x.IsCA = true
		x.BasicConstraintsValid = true
		x.KeyUsage |= x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	} else if tpl.client {
		x.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	} else {
		x.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	}

	signer, signerKey := x, key
	if parent != nil {
		signer, signerKey = parent.Cert, parent.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, x, signer, &key.PublicKey, signerKey)
	if err != nil {
		panic(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		panic(err)
	}
	return &Cert{
		Cert:    cert,
		Key:     key,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}
}

var shared = sync.OnceValue(func() *PKI {
	p := &PKI{}
	p.Root = issue(template{cn: "Test Root CA", ca: true}, nil)
	p.Sub = issue(template{cn: "Test Sub CA", ca: true}, p.Root)
	p.Server = issue(template{
		cn:  "localhost",
		dns: []string{"localhost"},
		ips: []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
	}, p.Sub)
	p.Foo = issue(template{cn: "foo.com"}, p.Sub)
	p.Wildcard = issue(template{cn: "localhost", dns: []string{"*.foo.com"}}, p.Sub)
	p.Expired = issue(template{
		cn:       "localhost",
		dns:      []string{"localhost"},
		ips:      []net.IP{net.ParseIP("127.0.0.1")},
		notAfter: time.Now().Add(-time.Hour),
	}, p.Sub)
	p.Client = issue(template{cn: "client", client: true}, p.Sub)
	p.Stranger = issue(template{cn: "Stranger CA", ca: true}, nil)
	return p
})

// NewPKI returns the PKI shared by every test in the binary.
func NewPKI(t testing.TB) *PKI {
	t.Helper()
	return shared()
}

// ClientCAs returns a pool a server can use to authenticate p.Client.
func (p *PKI) ClientCAs() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(p.Root.Cert)
	pool.AddCert(p.Sub.Cert)
	return pool
}
