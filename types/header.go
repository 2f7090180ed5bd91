package types

import (
	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/errs"
)

// Header carries everything needed to verify a block without its body
// except the body's own transactions (spec.md §3).
type Header struct {
	ParentHash      Hash
	StateRoot       Hash
	ExtrinsicsRoot  Hash
	Slot            uint64
	Epoch           uint64
	ValidatorSetID  uint64
	Signature       Signature
	GasUsed         uint64
	BaseFee         uint64
}

// MaxBlockGasUsed is the per-block ceiling on gas_used (spec.md §3/§4.4).
const MaxBlockGasUsed = 30_000_000

func (h *Header) Validate() error {
	if h.GasUsed > MaxBlockGasUsed {
		return errs.New(errs.KindBlockGasLimitExceeded, "header gas_used exceeds block gas limit")
	}
	return nil
}

// signingBytes is the canonical encoding of every field except Signature.
func (h *Header) signingBytes() []byte {
	e := newEncoder()
	e.fixed(h.ParentHash[:])
	e.fixed(h.StateRoot[:])
	e.fixed(h.ExtrinsicsRoot[:])
	e.u64(h.Slot)
	e.u64(h.Epoch)
	e.u64(h.ValidatorSetID)
	e.u64(h.GasUsed)
	e.u64(h.BaseFee)
	return e.bytes()
}

// Hash returns SHA-256 of the canonical encoding, excluding the signature
// (spec.md §3 "Header hash excludes the signature").
func (h *Header) Hash() Hash {
	return Hash(crypto.Sum256(h.signingBytes()))
}

// Sign signs the header hash with the proposer's key.
func (h *Header) Sign(priv crypto.PrivateKey) {
	hh := h.Hash()
	sig := crypto.Sign(priv, hh[:])
	copy(h.Signature[:], sig)
}

// VerifySignature checks h.Signature against pub over h.Hash().
func (h *Header) VerifySignature(pub crypto.PublicKey) error {
	hh := h.Hash()
	return crypto.Verify(pub, hh[:], h.Signature[:])
}
