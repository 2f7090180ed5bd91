package types

import "math/big"

// Account is the per-address state entry committed into the trie (C3).
// Balance is u128 in spec terms; Go has no native 128-bit integer so it is
// carried as a big.Int kept non-negative by the executor's balance checks;
// no mutation site enforces the 128-bit bound.
type Account struct {
	Nonce   uint64
	Balance *big.Int
}

// NewAccount returns a zeroed account, created implicitly on first credit
// (spec.md §3 "Created on first credit").
func NewAccount() *Account {
	return &Account{Balance: new(big.Int)}
}

// Clone returns a deep copy, used when the executor mutates a working copy
// of the state map without touching the committed trie.
func (a *Account) Clone() *Account {
	return &Account{Nonce: a.Nonce, Balance: new(big.Int).Set(a.Balance)}
}

// Encode returns the canonical byte encoding used as the trie leaf value.
func (a *Account) Encode() []byte {
	e := newEncoder()
	e.u64(a.Nonce)
	bal := a.Balance.Bytes()
	e.bytesField(bal)
	return e.bytes()
}

// DecodeAccount parses the encoding produced by Encode.
func DecodeAccount(b []byte) (*Account, error) {
	d := newDecoder(b)
	nonce, err := d.u64()
	if err != nil {
		return nil, err
	}
	bal, err := d.bytesField()
	if err != nil {
		return nil, err
	}
	return &Account{Nonce: nonce, Balance: new(big.Int).SetBytes(bal)}, nil
}
