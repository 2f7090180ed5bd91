// Package types defines the canonical, hashable wire types shared by every
// component of the node: transactions, headers, blocks, votes, proposals,
// receipts and accounts. Every type that is hashed or signed exposes exactly
// one canonical byte encoding (see encode.go) so that two implementations
// hashing the same logical object always agree.
package types

import (
	"encoding/hex"
	"fmt"

	"github.com/quorumchain/quorumchain/crypto"
)

// HashSize, AddressSize, PublicKeySize and SignatureSize are the fixed wire
// widths declared in spec.md §3.
const (
	HashSize      = 32
	AddressSize   = 20
	PublicKeySize = 32
	SignatureSize = 64
)

// Hash is a 32-byte SHA-256 digest.
type Hash [HashSize]byte

// Address is a 20-byte account identifier.
type Address [AddressSize]byte

// PublicKey is a 32-byte Ed25519 public key.
type PublicKey [PublicKeySize]byte

// Signature is a 64-byte Ed25519 signature.
type Signature [SignatureSize]byte

// IsZero reports whether h is the all-zero hash (used as a genesis sentinel).
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string    { return hex.EncodeToString(h[:]) }
func (a Address) String() string { return hex.EncodeToString(a[:]) }
func (p PublicKey) String() string { return hex.EncodeToString(p[:]) }
func (s Signature) String() string { return hex.EncodeToString(s[:]) }

func (h Hash) Bytes() []byte      { return h[:] }
func (a Address) Bytes() []byte   { return a[:] }
func (p PublicKey) Bytes() []byte { return p[:] }
func (s Signature) Bytes() []byte { return s[:] }

// HashFromBytes copies b into a Hash, failing if the length is wrong.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("types: hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// AddressFromBytes copies b into an Address, failing if the length is wrong.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("types: address must be %d bytes, got %d", AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// PublicKeyFromBytes copies b into a PublicKey, failing if the length is wrong.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var p PublicKey
	if len(b) != PublicKeySize {
		return p, fmt.Errorf("types: public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	copy(p[:], b)
	return p, nil
}

// SignatureFromBytes copies b into a Signature, failing if the length is wrong.
func SignatureFromBytes(b []byte) (Signature, error) {
	var s Signature
	if len(b) != SignatureSize {
		return s, fmt.Errorf("types: signature must be %d bytes, got %d", SignatureSize, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// AddressFromPublicKey derives the 20-byte address used as an account key:
// the first 20 bytes of SHA-256(pubkey), following the teacher's
// crypto.PublicKey.Address() convention.
func AddressFromPublicKey(pub PublicKey) Address {
	digest := crypto.Sum256(pub[:])
	var a Address
	copy(a[:], digest[:AddressSize])
	return a
}
