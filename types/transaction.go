package types

import (
	"errors"
	"fmt"

	"github.com/quorumchain/quorumchain/crypto"
)

// MaxGasLimit and MaxBlockGas are the per-tx and per-block gas ceilings from
// spec.md §3/§4.4.
const (
	MaxGasLimit = 30_000_000
	MaxBlockGas = 30_000_000
)

// Transaction is the atomic unit of work submitted to the chain.
// Sender is set by the caller (usually from the signing key) and is part of
// the signed payload — what's signed is the canonical encoding of every
// field below except Signature (spec.md §3).
type Transaction struct {
	Sender                Address
	Nonce                 uint64
	Payload               []byte
	Signature             Signature
	GasLimit              uint64
	MaxFeePerGas          uint64
	MaxPriorityFeePerGas  uint64
	ChainID               uint64
	HasChainID            bool
	To                    Address
	HasTo                 bool
	Value                 uint64
}

// Validate checks the structural invariants from spec.md §3 that do not
// require a signature check.
func (tx *Transaction) Validate() error {
	if tx.MaxPriorityFeePerGas > tx.MaxFeePerGas {
		return errors.New("types: max_priority_fee_per_gas exceeds max_fee_per_gas")
	}
	if tx.GasLimit == 0 || tx.GasLimit > MaxGasLimit {
		return fmt.Errorf("types: gas_limit %d out of range (0, %d]", tx.GasLimit, MaxGasLimit)
	}
	if tx.MaxFeePerGas == 0 {
		return errors.New("types: max_fee_per_gas must be positive")
	}
	return nil
}

// signingBytes returns the canonical encoding of every field except
// Signature, in the field order declared in spec.md §3.
func (tx *Transaction) signingBytes() []byte {
	e := newEncoder()
	e.fixed(tx.Sender[:])
	e.u64(tx.Nonce)
	e.bytesField(tx.Payload)
	e.u64(tx.GasLimit)
	e.u64(tx.MaxFeePerGas)
	e.u64(tx.MaxPriorityFeePerGas)
	e.optionalU64(tx.HasChainID, tx.ChainID)
	e.optionalFixed(tx.HasTo, tx.To[:])
	e.u64(tx.Value)
	return e.bytes()
}

// Hash returns the SHA-256 hash of the canonical encoding, excluding the
// signature (spec.md §3 "hash is a SHA-256 of a canonical byte encoding of
// all fields except the signature").
func (tx *Transaction) Hash() Hash {
	sum := crypto.Sum256(tx.signingBytes())
	return Hash(sum)
}

// Sign signs the transaction hash with priv and stores the signature.
// Deterministic: signing twice with the same key yields bit-identical
// signatures (spec.md §4.1).
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	h := tx.Hash()
	sig := crypto.Sign(priv, h[:])
	copy(tx.Signature[:], sig)
}

// VerifySignature checks tx.Signature against pub over tx.Hash().
func (tx *Transaction) VerifySignature(pub crypto.PublicKey) error {
	h := tx.Hash()
	return crypto.Verify(pub, h[:], tx.Signature[:])
}
