package httpssl

import "github.com/frankli0324/go-httpssl/internal/trust"

type TrustConfig = trust.Config
type TrustSnapshot = trust.Snapshot
type VerifyMode = trust.VerifyMode
type VerifyCallback = trust.VerifyCallback

const (
	VerifyNone            = trust.VerifyNone
	VerifyPeer            = trust.VerifyPeer
	VerifyPeerRequireCert = trust.VerifyPeerRequireCert
)

const DefaultCipherPolicy = trust.DefaultCipherPolicy
