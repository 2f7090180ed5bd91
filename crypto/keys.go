package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// PrivateKeySize and PublicKeySize match the Ed25519 standard.
const (
	PrivateKeySize = ed25519.PrivateKeySize
	PublicKeySize  = ed25519.PublicKeySize
	SignatureSize  = ed25519.SignatureSize
)

// PrivateKey wraps raw Ed25519 private key bytes.
type PrivateKey []byte

// PublicKey wraps raw Ed25519 public key bytes.
type PublicKey []byte

// GenerateKeyPair generates a new validator/wallet key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// Public derives the Ed25519 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// PrivKeyFromBytes wraps and validates a raw private key.
func PrivKeyFromBytes(b []byte) (PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("crypto: private key must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	return PrivateKey(b), nil
}

// PubKeyFromBytes wraps and validates a raw public key.
func PubKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("crypto: public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	return PublicKey(b), nil
}
