package types

import "github.com/quorumchain/quorumchain/crypto"

// Block is a Header plus its ordered transactions. block.hash = header.hash
// (spec.md §3).
type Block struct {
	Header       Header
	Transactions []Transaction
}

// Hash returns the header hash.
func (b *Block) Hash() Hash { return b.Header.Hash() }

// ExtrinsicsRoot computes SHA-256(concat(tx.hash for tx in txs)), the empty
// root (SHA-256 of zero bytes) when there are no transactions.
func ExtrinsicsRoot(txs []Transaction) Hash {
	e := newEncoder()
	for _, tx := range txs {
		h := tx.Hash()
		e.fixed(h[:])
	}
	return Hash(crypto.Sum256(e.bytes()))
}

// BuildExtrinsicsRoot recomputes the root over b.Transactions, used by
// verifiers to check b.Header.ExtrinsicsRoot.
func (b *Block) BuildExtrinsicsRoot() Hash {
	return ExtrinsicsRoot(b.Transactions)
}
