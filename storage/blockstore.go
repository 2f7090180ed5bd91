package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/quorumchain/quorumchain/types"
)

const (
	prefixBlockByHash   = "block:"
	prefixBlockByHeight = "height:"
	keyLatestHeight     = "chain:latest_height"
	keyLatestFinalized  = "chain:latest_finalized"
)

func heightKey(height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return append([]byte(prefixBlockByHeight), b[:]...)
}

// wireBlock is the JSON wire shape for a persisted block (spec.md §6: gossip
// payloads and on-disk records are JSON-encoded canonical types).
type wireBlock struct {
	Header       types.Header        `json:"header"`
	Transactions []types.Transaction `json:"transactions"`
}

// BlockStore indexes blocks by hash and by height, and tracks the latest
// and latest-finalized heights. A block is written at most once per hash;
// finality marks are monotone (spec.md §3).
type BlockStore struct {
	mu  sync.RWMutex
	db  DB
}

// NewBlockStore wraps db as a BlockStore.
func NewBlockStore(db DB) *BlockStore {
	return &BlockStore{db: db}
}

// PutBlock writes a block keyed by its hash. Re-writing the same hash is a
// no-op success (idempotent, so crash-recovery replays are safe).
func (s *BlockStore) PutBlock(block *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putBlockLocked(block)
}

func (s *BlockStore) putBlockLocked(block *types.Block) error {
	data, err := json.Marshal(wireBlock{Header: block.Header, Transactions: block.Transactions})
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	h := block.Hash()
	return s.db.Set(append([]byte(prefixBlockByHash), h[:]...), data)
}

// GetBlock returns the block stored under hash.
func (s *BlockStore) GetBlock(hash types.Hash) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBlockLocked(hash)
}

func (s *BlockStore) getBlockLocked(hash types.Hash) (*types.Block, error) {
	data, err := s.db.Get(append([]byte(prefixBlockByHash), hash[:]...))
	if err != nil {
		return nil, err
	}
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &types.Block{Header: w.Header, Transactions: w.Transactions}, nil
}

// GetBlockByHeight resolves the height index, then loads the block.
func (s *BlockStore) GetBlockByHeight(height uint64) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := s.db.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	h, err := types.HashFromBytes(raw)
	if err != nil {
		return nil, err
	}
	return s.getBlockLocked(h)
}

// CommitBlock atomically writes the block, its height-index entry, and
// advances latest_height in one batch (spec.md §4.9 crash-safety contract:
// state write, then block write, then latest-height bump — this call is the
// "block write then latest-height bump" half).
func (s *BlockStore) CommitBlock(block *types.Block, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(wireBlock{Header: block.Header, Transactions: block.Transactions})
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	h := block.Hash()

	batch := s.db.NewBatch()
	batch.Set(append([]byte(prefixBlockByHash), h[:]...), data)
	batch.Set(heightKey(height), h[:])
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], height)
	batch.Set([]byte(keyLatestHeight), hb[:])
	return batch.Write()
}

// LatestHeight returns the highest committed height, or (0, false) for a
// fresh chain.
func (s *BlockStore) LatestHeight() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := s.db.Get([]byte(keyLatestHeight))
	if err != nil {
		return 0, false
	}
	return binary.BigEndian.Uint64(raw), true
}

// MarkFinalized advances latest_finalized to height. Monotone: a lower
// height than the current mark is rejected (spec.md §3 finality marks).
func (s *BlockStore) MarkFinalized(height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.latestFinalizedLocked(); ok && height < cur {
		return fmt.Errorf("storage: finality mark regression %d < %d", height, cur)
	}
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], height)
	return s.db.Set([]byte(keyLatestFinalized), hb[:])
}

func (s *BlockStore) latestFinalizedLocked() (uint64, bool) {
	raw, err := s.db.Get([]byte(keyLatestFinalized))
	if err != nil {
		return 0, false
	}
	return binary.BigEndian.Uint64(raw), true
}

// LatestFinalized returns the highest finalized height, or (0, false) if
// nothing has been finalized yet.
func (s *BlockStore) LatestFinalized() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestFinalizedLocked()
}

// IsFinalized reports whether height has been finalized.
func (s *BlockStore) IsFinalized(height uint64) bool {
	h, ok := s.LatestFinalized()
	return ok && height <= h
}
