package storage

import (
	"encoding/json"
	"fmt"

	"github.com/quorumchain/quorumchain/types"
)

const (
	prefixReceipt      = "receipt:"
	prefixBlockReceipts = "idx:block:receipts:"
)

// ReceiptStore indexes per-transaction execution receipts by tx hash, with
// a secondary index by block height (the same JSON-encoded list pattern the
// indexer uses for its address lists).
type ReceiptStore struct {
	db DB
}

// NewReceiptStore wraps db as a ReceiptStore.
func NewReceiptStore(db DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// PutReceipts writes every receipt of one block in a single batch and
// records the block's tx-hash list for height-based lookup.
func (s *ReceiptStore) PutReceipts(height uint64, receipts []types.Receipt) error {
	batch := s.db.NewBatch()
	hashes := make([]string, 0, len(receipts))
	for _, r := range receipts {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode receipt: %w", err)
		}
		batch.Set([]byte(prefixReceipt+r.TxHash.String()), data)
		hashes = append(hashes, r.TxHash.String())
	}
	idxData, err := json.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("encode receipt index: %w", err)
	}
	batch.Set([]byte(fmt.Sprintf("%s%d", prefixBlockReceipts, height)), idxData)
	return batch.Write()
}

// GetReceipt returns the receipt for a transaction hash.
func (s *ReceiptStore) GetReceipt(txHash types.Hash) (*types.Receipt, error) {
	data, err := s.db.Get([]byte(prefixReceipt + txHash.String()))
	if err != nil {
		return nil, err
	}
	var r types.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &r, nil
}

// GetReceiptsByHeight returns every receipt recorded for a block height.
func (s *ReceiptStore) GetReceiptsByHeight(height uint64) ([]types.Receipt, error) {
	idxData, err := s.db.Get([]byte(fmt.Sprintf("%s%d", prefixBlockReceipts, height)))
	if err != nil {
		return nil, err
	}
	var hashes []string
	if err := json.Unmarshal(idxData, &hashes); err != nil {
		return nil, fmt.Errorf("decode receipt index: %w", err)
	}
	out := make([]types.Receipt, 0, len(hashes))
	for _, hx := range hashes {
		data, err := s.db.Get([]byte(prefixReceipt + hx))
		if err != nil {
			return nil, err
		}
		var r types.Receipt
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
