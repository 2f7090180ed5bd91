package types

import "github.com/quorumchain/quorumchain/crypto"

// Proposal carries a candidate block for a given height/round, signed by
// the elected proposer (spec.md §3).
type Proposal struct {
	Height    uint64
	Round     uint64
	Block     Block
	Proposer  PublicKey
	Signature Signature
}

// signingBytes covers height‖round‖block.hash‖proposer, per spec.md §3.
func (p *Proposal) signingBytes() []byte {
	e := newEncoder()
	e.u64(p.Height)
	e.u64(p.Round)
	bh := p.Block.Hash()
	e.fixed(bh[:])
	e.fixed(p.Proposer[:])
	return e.bytes()
}

func (p *Proposal) Hash() Hash {
	return Hash(crypto.Sum256(p.signingBytes()))
}

func (p *Proposal) Sign(priv crypto.PrivateKey) {
	h := p.Hash()
	sig := crypto.Sign(priv, h[:])
	copy(p.Signature[:], sig)
}

func (p *Proposal) VerifySignature() error {
	h := p.Hash()
	return crypto.Verify(crypto.PublicKey(p.Proposer[:]), h[:], p.Signature[:])
}
