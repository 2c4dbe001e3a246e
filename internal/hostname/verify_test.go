package hostname_test

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
	"github.com/frankli0324/go-httpssl/internal/hostname"
	"github.com/frankli0324/go-httpssl/internal/testhelpers"
)

func cert(cn string, dns []string, ips ...string) *x509.Certificate {
	c := &x509.Certificate{Subject: pkix.Name{CommonName: cn}, DNSNames: dns}
	for _, ip := range ips {
		c.IPAddresses = append(c.IPAddresses, net.ParseIP(ip))
	}
	return c
}

func TestWildcard(t *testing.T) {
	c := cert("", []string{"*.foo.com"})
	assert.True(t, hostname.Check(c, "bar.foo.com"))
	assert.True(t, hostname.Check(c, "BAR.Foo.COM."))
	assert.False(t, hostname.Check(c, "foo.com"))
	assert.False(t, hostname.Check(c, "baz.bar.foo.com"))
	assert.False(t, hostname.Check(c, "localhost"))
}

func TestWildcardRestrictions(t *testing.T) {
	for _, tc := range []struct {
		pattern, host string
		want          bool
	}{
		{"*.com", "foo.com", false},
		{"*", "foo", false},
		{"f*.foo.com", "fa.foo.com", false},
		{"bar.*.com", "bar.foo.com", false},
		{"*.*.foo.com", "a.b.foo.com", false},
		{"*.foo.com", ".foo.com", false},
		{"www.foo.com", "www.foo.com", true},
		{"WWW.FOO.COM", "www.foo.com", true},
	} {
		assert.Equal(t, tc.want, hostname.Match(tc.pattern, tc.host), "%s vs %s", tc.pattern, tc.host)
	}
}

func TestCommonNameFallback(t *testing.T) {
	foo := cert("foo.com", nil)
	assert.True(t, hostname.Check(foo, "foo.com"))
	assert.False(t, hostname.Check(foo, "localhost"))

	// CN ignored once the SAN extension carries names
	withSAN := cert("foo.com", []string{"bar.com"})
	assert.False(t, hostname.Check(withSAN, "foo.com"))
	assert.True(t, hostname.Check(withSAN, "bar.com"))

	// not a hostname
	assert.False(t, hostname.Check(cert("Test Client", nil), "Test Client"))
}

func TestIPLiterals(t *testing.T) {
	c := cert("127.0.0.1", []string{"*.0.0.1", "localhost"}, "10.0.0.1", "::1")
	assert.True(t, hostname.Check(c, "10.0.0.1"))
	assert.True(t, hostname.Check(c, "::1"))
	assert.True(t, hostname.Check(c, "[::1]"))
	assert.False(t, hostname.Check(c, "[fe80::1%eth0]"))
	assert.False(t, hostname.Check(c, "127.0.0.1"), "no CN or wildcard for IPs")

	cnOnly := cert("127.0.0.1", nil)
	assert.False(t, hostname.Check(cnOnly, "127.0.0.1"))
}

func TestIDN(t *testing.T) {
	c := cert("", []string{"xn--bcher-kva.example"})
	assert.True(t, hostname.Check(c, "bücher.example"))
	assert.True(t, hostname.Check(c, "BÜCHER.example"))
}

func TestVerifyError(t *testing.T) {
	p := testhelpers.NewPKI(t)
	err := hostname.Verify(p.Foo.Cert, "localhost")
	var hme *herrors.HostnameMismatchError
	require.ErrorAs(t, err, &hme)
	assert.Equal(t, "localhost", hme.Host)
	assert.Equal(t, []string{"foo.com"}, hme.Candidates)

	assert.NoError(t, hostname.Verify(p.Server.Cert, "localhost"))
	assert.NoError(t, hostname.Verify(p.Server.Cert, "127.0.0.1"))
	assert.Error(t, hostname.Verify(nil, "localhost"))
}

var label = rapid.StringMatching(`[a-z][a-z0-9]{0,10}`)

func TestWildcardProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.SliceOfN(label, 2, 4).Draw(t, "base")
		sub := label.Draw(t, "sub")
		extra := label.Draw(t, "extra")
		domain := strings.Join(base, ".")
		pattern := "*." + domain

		if !hostname.Match(pattern, sub+"."+domain) {
			t.Fatalf("%s should match %s", pattern, sub+"."+domain)
		}
		if hostname.Match(pattern, domain) {
			t.Fatalf("%s should not match its own base %s", pattern, domain)
		}
		if hostname.Match(pattern, extra+"."+sub+"."+domain) {
			t.Fatalf("%s should not match two labels", pattern)
		}
	})
}

func TestExactMatchProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := strings.Join(rapid.SliceOfN(label, 1, 4).Draw(t, "a"), ".")
		b := strings.Join(rapid.SliceOfN(label, 1, 4).Draw(t, "b"), ".")
		if hostname.Match(a, b) != (a == b) {
			t.Fatalf("exact match of %q and %q", a, b)
		}
	})
}
