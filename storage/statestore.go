package storage

import (
	"sync"

	"github.com/quorumchain/quorumchain/trie"
	"github.com/quorumchain/quorumchain/types"
)

// StateStore owns the committed {Address -> Account} trie root. It mirrors
// the teacher's StateDB write-buffer/commit split, but because trie nodes
// are content-addressed and immutable, a "working copy" is simply a fresh
// trie.Trie opened at the same root: writes made against it store new nodes
// without touching the committed root, so an abandoned working copy after a
// failed block leaves only unreferenced nodes behind and the committed state
// unchanged.
type StateStore struct {
	mu   sync.RWMutex
	db   trieDB
	root [32]byte
}

// NewStateStore opens a StateStore at the given committed root (zero for a
// fresh chain).
func NewStateStore(db DB, root types.Hash) *StateStore {
	return &StateStore{db: trieDB{db}, root: [32]byte(root)}
}

// trieDB adapts storage.DB to trie.KVStore. The two interfaces aren't
// directly assignable because DB.NewBatch returns the storage.Batch
// interface rather than trie.KVBatch, even though every concrete Batch
// implementation (LevelDB, MemDB) already satisfies trie.KVBatch's smaller
// method set.
type trieDB struct{ db DB }

func (t trieDB) Get(key []byte) ([]byte, error) { return t.db.Get(key) }
func (t trieDB) NewBatch() trie.KVBatch         { return t.db.NewBatch() }

// Root returns the current committed state root.
func (s *StateStore) Root() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.Hash(s.root)
}

// OpenWorkingCopy returns a trie positioned at the current committed root,
// for the block producer (C10) and re-execution (C11) to mutate without
// affecting GetAccount reads against the committed state.
func (s *StateStore) OpenWorkingCopy() *trie.Trie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return trie.New(s.db, s.root)
}

// Commit advances the committed root. Call this only after the new root has
// been verified (matches the executed block's state_root) and before the
// block is written, preserving the state-then-block-then-height write order
// from spec.md §4.9.
func (s *StateStore) Commit(root types.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = [32]byte(root)
}

// GetAccount reads an account from the committed trie.
func (s *StateStore) GetAccount(addr types.Address) (*types.Account, error) {
	tr := s.OpenWorkingCopy()
	raw, err := tr.Get(addr[:])
	if err == trie.ErrNotFound {
		return types.NewAccount(), nil
	}
	if err != nil {
		return nil, err
	}
	return types.DecodeAccount(raw)
}
