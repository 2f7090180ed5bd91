package crypto

import (
	"crypto/ed25519"
	"errors"
)

// ErrInvalidSignature is returned whenever a signature fails verification,
// including malformed key/signature lengths (spec error kind InvalidSignature).
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// Sign signs message with priv. Deterministic: two calls with the same key
// and message produce bit-identical signatures, since Ed25519 signing has no
// random component.
func Sign(priv PrivateKey, message []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv), message)
}

// Verify reports whether sig is a valid Ed25519 signature of message under
// pub. It returns ErrInvalidSignature for malformed key/signature sizes as
// well as for a cryptographically rejected pair, matching spec.md §4.1.
func Verify(pub PublicKey, message, sig []byte) error {
	if len(pub) != PublicKeySize || len(sig) != SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return ErrInvalidSignature
	}
	return nil
}
