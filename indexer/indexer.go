// Package indexer maintains a secondary {address -> tx hashes} index over
// committed blocks, so RPC can answer "transaction history for address"
// without scanning the block store.
package indexer

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/quorumchain/quorumchain/events"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
)

const prefixAddressTxs = "idx:addr:tx:"

// Indexer subscribes to executed-transaction events and updates the
// address-activity lookup table.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to tx-executed events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventTxExecuted, idx.onTxExecuted)
	return idx
}

// GetTxsByAddress returns the hex-encoded hashes of every transaction that
// touched addr, in the order they were committed.
func (idx *Indexer) GetTxsByAddress(addr types.Address) ([]string, error) {
	return idx.getList(prefixAddressTxs + hex.EncodeToString(addr[:]))
}

func (idx *Indexer) onTxExecuted(ev events.Event) {
	txHash, _ := ev.Data["tx_hash"].(string)
	sender, _ := ev.Data["sender"].(string)
	recipient, _ := ev.Data["recipient"].(string)
	if txHash == "" || sender == "" {
		return
	}
	if err := idx.addToList(prefixAddressTxs+sender, txHash); err != nil {
		log.Printf("[indexer] tx index write failed (addr=%s tx=%s): %v", sender, txHash, err)
	}
	if recipient != "" && recipient != sender {
		if err := idx.addToList(prefixAddressTxs+recipient, txHash); err != nil {
			log.Printf("[indexer] tx index write failed (addr=%s tx=%s): %v", recipient, txHash, err)
		}
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil // already present
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
