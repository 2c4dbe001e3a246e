package trust

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"slices"
	"sync"
)

// Snapshot is an immutable view of a [Config] taken at a point in time.
// A handshake holds the Snapshot it started with, so later changes to the
// Config never reach it.
type Snapshot struct {
	anchors  []*x509.Certificate
	pool     *x509.CertPool
	identity *tls.Certificate

	policy   string
	suites   []uint16 // nil means engine defaults
	tls13    bool     // policy allows TLS 1.3 suites
	tls12    bool     // policy allows pre-1.3 suites
	explicit bool

	mode     VerifyMode
	depth    int // -1 when unset
	callback VerifyCallback
	cbGen    uint64

	minVersion, maxVersion uint16

	fingerprint string
}

var defaultSnapshot = sync.OnceValue(func() *Snapshot {
	s := &Snapshot{mode: VerifyPeerRequireCert, depth: -1}
	if err := s.applyPolicy(DefaultCipherPolicy); err != nil {
		panic("trust: default cipher policy: " + err.Error())
	}
	s.seal()
	return s
})

func (s *Snapshot) clone() *Snapshot {
	n := *s
	n.anchors = slices.Clone(s.anchors)
	n.suites = slices.Clone(s.suites)
	n.pool = nil
	n.fingerprint = ""
	return &n
}

// seal recomputes derived state. must be called before publishing.
func (s *Snapshot) seal() {
	s.pool = x509.NewCertPool()
	for _, c := range s.anchors {
		s.pool.AddCert(c)
	}
	s.fingerprint = s.computeFingerprint()
}

func (s *Snapshot) computeFingerprint() string {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	digests := make([]string, 0, len(s.anchors))
	for _, c := range s.anchors {
		d := sha256.Sum256(c.Raw)
		digests = append(digests, string(d[:]))
	}
	slices.Sort(digests)
	h.Write([]byte("anchors"))
	writeInt(uint64(len(digests)))
	for _, d := range digests {
		h.Write([]byte(d))
	}

	h.Write([]byte("identity"))
	if s.identity != nil && len(s.identity.Certificate) > 0 {
		d := sha256.Sum256(s.identity.Certificate[0])
		h.Write(d[:])
	} else {
		writeInt(0)
	}

	h.Write([]byte("suites"))
	writeInt(uint64(len(s.suites)))
	for _, id := range s.suites {
		writeInt(uint64(id))
	}
	flags := uint64(0)
	if s.explicit {
		flags |= 1
	}
	if s.tls12 {
		flags |= 2
	}
	if s.tls13 {
		flags |= 4
	}
	writeInt(flags)

	h.Write([]byte("verify"))
	writeInt(uint64(s.mode))
	writeInt(uint64(int64(s.depth)))
	writeInt(s.cbGen)

	h.Write([]byte("versions"))
	writeInt(uint64(s.minVersion))
	writeInt(uint64(s.maxVersion))

	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint summarises every trust relevant field. Two snapshots with equal
// fingerprints authenticate peers identically.
func (s *Snapshot) Fingerprint() string { return s.fingerprint }

// Anchors returns a copy of the configured trust anchors.
func (s *Snapshot) Anchors() []*x509.Certificate { return slices.Clone(s.anchors) }

// Roots returns the pool built from the anchors. it must not be modified.
func (s *Snapshot) Roots() *x509.CertPool { return s.pool }

func (s *Snapshot) Identity() *tls.Certificate { return s.identity }

func (s *Snapshot) CipherPolicy() string { return s.policy }

// CipherSuites returns the pre-1.3 suites the policy allows, in preference
// order. nil means the engine defaults apply.
func (s *Snapshot) CipherSuites() []uint16 {
	if !s.explicit {
		return nil
	}
	out := make([]uint16, 0, len(s.suites))
	for _, id := range s.suites {
		if !isTLS13Suite(id) {
			out = append(out, id)
		}
	}
	return out
}

// NoCipherMatch reports whether the policy leaves nothing to negotiate,
// either because no suite matched or because the protocol constraint
// excludes every version the matched suites work with.
func (s *Snapshot) NoCipherMatch() bool {
	if s.explicit && !s.tls12 && !s.tls13 {
		return true
	}
	min, max := s.Versions()
	return max != 0 && min > max
}

// Versions returns the effective protocol bounds after combining the
// explicit constraint with what the cipher policy allows. zero means engine
// default.
func (s *Snapshot) Versions() (min, max uint16) {
	min, max = s.minVersion, s.maxVersion
	if !s.explicit {
		return
	}
	if !s.tls13 && (max == 0 || max > tls.VersionTLS12) {
		max = tls.VersionTLS12
	}
	if !s.tls12 && s.tls13 && min < tls.VersionTLS13 {
		min = tls.VersionTLS13
	}
	return
}

func (s *Snapshot) VerifyMode() VerifyMode { return s.mode }

// VerifyDepth returns the maximum number of certificates allowed above the
// leaf, and whether a limit is set at all.
func (s *Snapshot) VerifyDepth() (int, bool) { return s.depth, s.depth >= 0 }

func (s *Snapshot) VerifyCallback() VerifyCallback { return s.callback }
