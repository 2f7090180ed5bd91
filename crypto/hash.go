// Package crypto provides the Ed25519 signing and SHA-256 hashing primitives
// shared by every other package. It never imports the types package, so it
// stays usable from both the canonical codec and the wire layer.
package crypto

import "crypto/sha256"

// HashSize is the length in bytes of every hash produced by this package.
const HashSize = sha256.Size

// Sum256 returns the SHA-256 digest of data.
func Sum256(data []byte) [HashSize]byte {
	return sha256.Sum256(data)
}

// SumConcat hashes the concatenation of several byte slices without an
// intermediate allocation-heavy join, mirroring how header/extrinsics roots
// are derived from a list of per-field hashes.
func SumConcat(parts ...[]byte) [HashSize]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
