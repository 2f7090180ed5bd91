package types

import "github.com/quorumchain/quorumchain/crypto"

// Step is the BFT voting phase a Vote belongs to.
type Step uint8

const (
	StepPrevote Step = iota
	StepPrecommit
)

// Vote is a signed Prevote or Precommit. BlockHash is absent for a nil vote
// (spec.md §3 "None denotes a nil vote").
type Vote struct {
	Height    uint64
	Round     uint64
	Step      Step
	BlockHash Hash
	HasBlock  bool
	Voter     PublicKey
	Signature Signature
}

// signingBytes covers height, round, step, block_hash, voter — "the first
// five fields" per spec.md §3.
func (v *Vote) signingBytes() []byte {
	e := newEncoder()
	e.u64(v.Height)
	e.u64(v.Round)
	e.byte(byte(v.Step))
	e.optionalFixed(v.HasBlock, v.BlockHash[:])
	e.fixed(v.Voter[:])
	return e.bytes()
}

func (v *Vote) Hash() Hash {
	return Hash(crypto.Sum256(v.signingBytes()))
}

func (v *Vote) Sign(priv crypto.PrivateKey) {
	h := v.Hash()
	sig := crypto.Sign(priv, h[:])
	copy(v.Signature[:], sig)
}

func (v *Vote) VerifySignature() error {
	h := v.Hash()
	return crypto.Verify(crypto.PublicKey(v.Voter[:]), h[:], v.Signature[:])
}

// Target returns the nil-vote sentinel (zero hash, false) or the voted hash.
func (v *Vote) Target() (Hash, bool) { return v.BlockHash, v.HasBlock }

// SameTarget reports whether two votes name the same target, including two
// nil votes comparing equal.
func (v *Vote) SameTarget(other *Vote) bool {
	if v.HasBlock != other.HasBlock {
		return false
	}
	if !v.HasBlock {
		return true
	}
	return v.BlockHash == other.BlockHash
}
