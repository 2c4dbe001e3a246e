package trust

import (
	"crypto/tls"
	"fmt"
	"slices"
	"strings"
)

// DefaultCipherPolicy leaves the choice to the engine, which never offers
// null, anonymous or RSA key exchange suites by default.
const DefaultCipherPolicy = "DEFAULT"

// classes the engine never offers at all
var emptyClasses = map[string]bool{
	"aNULL": true, "eNULL": true, "NULL": true, "ADH": true, "AECDH": true,
	"SSLv2": true, "SSLv3": true, "EXPORT": true, "EXP": true, "LOW": true,
	"MD5": true, "DES": true, "PSK": true, "SRP": true, "COMPLEMENTOFALL": true,
}

// substring classes matched against IANA names
var nameClasses = map[string]string{
	"ECDHE":    "_ECDHE_",
	"EECDH":    "_ECDHE_",
	"ECDSA":    "_ECDSA_",
	"aECDSA":   "_ECDSA_",
	"aRSA":     "_RSA_WITH",
	"AESGCM":   "_GCM_",
	"CHACHA20": "CHACHA20",
	"AES128":   "AES_128",
	"AES256":   "AES_256",
	"AES":      "_AES_",
	"SHA256":   "_SHA256",
	"SHA384":   "_SHA384",
	"SHA":      "_SHA",
	"RC4":      "_RC4_",
	"3DES":     "_3DES_",
}

func isTLS13Suite(id uint16) bool {
	return id == tls.TLS_AES_128_GCM_SHA256 ||
		id == tls.TLS_AES_256_GCM_SHA384 ||
		id == tls.TLS_CHACHA20_POLY1305_SHA256
}

func allSuites() []*tls.CipherSuite {
	return append(tls.CipherSuites(), tls.InsecureCipherSuites()...)
}

// resolveClass returns the suites named by a single token, which may be a
// class, an IANA suite name, or several of those joined by '+' (intersection).
func resolveClass(tok string) ([]uint16, error) {
	if strings.Contains(tok, "+") {
		var out []uint16
		for i, part := range strings.Split(tok, "+") {
			ids, err := resolveClass(part)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				out = ids
				continue
			}
			out = slices.DeleteFunc(out, func(id uint16) bool { return !slices.Contains(ids, id) })
		}
		return out, nil
	}

	var out []uint16
	pick := func(insecureToo bool, pred func(*tls.CipherSuite) bool) {
		list := tls.CipherSuites()
		if insecureToo {
			list = allSuites()
		}
		for _, cs := range list {
			if pred(cs) {
				out = append(out, cs.ID)
			}
		}
	}
	switch tok {
	case "ALL", "HIGH":
		pick(false, func(*tls.CipherSuite) bool { return true })
	case "DEFAULT":
		pick(false, func(cs *tls.CipherSuite) bool { return !strings.HasPrefix(cs.Name, "TLS_RSA_") })
	case "MEDIUM":
		pick(true, func(cs *tls.CipherSuite) bool { return cs.Insecure && !strings.Contains(cs.Name, "_RC4_") })
	case "TLSv1.3":
		pick(false, func(cs *tls.CipherSuite) bool { return isTLS13Suite(cs.ID) })
	case "TLSv1.2":
		pick(false, func(cs *tls.CipherSuite) bool {
			return !isTLS13Suite(cs.ID) && slices.Contains(cs.SupportedVersions, tls.VersionTLS12)
		})
	case "kRSA", "RSA":
		pick(true, func(cs *tls.CipherSuite) bool { return strings.HasPrefix(cs.Name, "TLS_RSA_") })
	default:
		if emptyClasses[tok] {
			return nil, nil
		}
		if sub, ok := nameClasses[tok]; ok {
			pick(true, func(cs *tls.CipherSuite) bool { return strings.Contains(cs.Name, sub) })
			return out, nil
		}
		for _, cs := range allSuites() {
			if cs.Name == tok {
				return []uint16{cs.ID}, nil
			}
		}
		return nil, fmt.Errorf("unknown cipher %q", tok)
	}
	return out, nil
}

// ParseCipherPolicy resolves an OpenSSL style cipher string into an ordered
// suite list. The grammar is a list of tokens separated by ':', ',' or
// spaces. "!X" removes X for good, "-X" removes X until it is added back,
// "+X" moves the matching suites to the end and a bare X appends.
//
// explicit is false only for the bare "DEFAULT" policy, in which case the
// engine picks the suites.
func ParseCipherPolicy(spec string) (suites []uint16, explicit bool, err error) {
	toks := strings.FieldsFunc(spec, func(r rune) bool {
		return r == ':' || r == ',' || r == ' ' || r == '\t'
	})
	if len(toks) == 0 {
		return nil, false, fmt.Errorf("empty cipher policy")
	}
	if len(toks) == 1 && toks[0] == "DEFAULT" {
		return nil, false, nil
	}

	banned := map[uint16]bool{}
	for _, tok := range toks {
		if strings.HasPrefix(tok, "@") {
			continue // ordering directives, the engine orders by itself
		}
		op := byte(0)
		switch tok[0] {
		case '!', '-', '+':
			op, tok = tok[0], tok[1:]
		}
		if tok == "" {
			return nil, false, fmt.Errorf("dangling cipher operator %q", string(op))
		}
		ids, err := resolveClass(tok)
		if err != nil {
			return nil, false, err
		}
		switch op {
		case '!':
			for _, id := range ids {
				banned[id] = true
			}
			suites = slices.DeleteFunc(suites, func(id uint16) bool { return slices.Contains(ids, id) })
		case '-':
			suites = slices.DeleteFunc(suites, func(id uint16) bool { return slices.Contains(ids, id) })
		case '+':
			var moved []uint16
			suites = slices.DeleteFunc(suites, func(id uint16) bool {
				if slices.Contains(ids, id) {
					moved = append(moved, id)
					return true
				}
				return false
			})
			suites = append(suites, moved...)
		default:
			for _, id := range ids {
				if !banned[id] && !slices.Contains(suites, id) {
					suites = append(suites, id)
				}
			}
		}
	}
	if suites == nil {
		suites = []uint16{}
	}
	return suites, true, nil
}

func (s *Snapshot) applyPolicy(spec string) error {
	suites, explicit, err := ParseCipherPolicy(spec)
	if err != nil {
		return err
	}
	s.policy, s.suites, s.explicit = spec, suites, explicit
	s.tls12, s.tls13 = !explicit, !explicit
	for _, id := range suites {
		if isTLS13Suite(id) {
			s.tls13 = true
		} else {
			s.tls12 = true
		}
	}
	return nil
}

// SuiteName returns the IANA name of a suite id.
func SuiteName(id uint16) string { return tls.CipherSuiteName(id) }
