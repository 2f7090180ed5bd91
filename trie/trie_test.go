package trie

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memKV is a minimal in-memory KVStore for trie tests, independent of the
// storage package so this package has no import-cycle risk.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *memKV) NewBatch() KVBatch { return &memKVBatch{db: m} }

type memKVBatch struct {
	db  *memKV
	ops map[string][]byte
}

func (b *memKVBatch) Set(key, value []byte) {
	if b.ops == nil {
		b.ops = make(map[string][]byte)
	}
	b.ops[string(key)] = value
}

func (b *memKVBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for k, v := range b.ops {
		b.db.data[k] = v
	}
	return nil
}

func key(n byte) []byte {
	k := make([]byte, 20)
	for i := range k {
		k[i] = n
	}
	return k
}

func TestTrieEmptyRootIsStable(t *testing.T) {
	tr := New(newMemKV(), [32]byte{})
	require.Equal(t, emptyHash, tr.RootHash())
}

func TestTrieInsertionOrderIndependence(t *testing.T) {
	pairs := map[string][]byte{
		string(key(0x0a)): []byte("v1"),
		string(key(0x0b)): []byte("v2"),
		string(key(0x0c)): []byte("v3"),
	}

	t1 := New(newMemKV(), [32]byte{})
	for _, k := range []string{string(key(0x0a)), string(key(0x0b)), string(key(0x0c))} {
		require.NoError(t, t1.Insert([]byte(k), pairs[k]))
	}

	t2 := New(newMemKV(), [32]byte{})
	for _, k := range []string{string(key(0x0c)), string(key(0x0a)), string(key(0x0b))} {
		require.NoError(t, t2.Insert([]byte(k), pairs[k]))
	}

	require.Equal(t, t1.RootHash(), t2.RootHash())
}

func TestTrieGetAfterInsert(t *testing.T) {
	tr := New(newMemKV(), [32]byte{})
	require.NoError(t, tr.Insert(key(0x0a), []byte("one")))
	require.NoError(t, tr.Insert(key(0x0b), []byte("two")))

	v, err := tr.Get(key(0x0a))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), v)

	_, err = tr.Get(key(0x0f))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTrieProofSoundness(t *testing.T) {
	tr := New(newMemKV(), [32]byte{})
	require.NoError(t, tr.Insert(key(0x0a), []byte("one")))
	require.NoError(t, tr.Insert(key(0x0b), []byte("two")))

	proof, err := tr.Prove(key(0x0a))
	require.NoError(t, err)
	require.True(t, Verify(tr.RootHash(), key(0x0a), []byte("one"), proof))
	require.False(t, Verify(tr.RootHash(), key(0x0a), []byte("wrong"), proof))
}

func TestTrieDeleteThenReinsertMatchesRoot(t *testing.T) {
	base := New(newMemKV(), [32]byte{})
	require.NoError(t, base.Insert(key(0x0a), []byte("one")))
	baseRoot := base.RootHash()

	tr := New(newMemKV(), [32]byte{})
	require.NoError(t, tr.Insert(key(0x0a), []byte("one")))
	require.NoError(t, tr.Insert(key(0x0b), []byte("two")))
	require.NoError(t, tr.Delete(key(0x0b)))

	require.Equal(t, baseRoot, tr.RootHash())
}

func TestTrieDeleteCollapsesBranch(t *testing.T) {
	tr := New(newMemKV(), [32]byte{})
	require.NoError(t, tr.Insert(key(0x0a), []byte("one")))
	require.NoError(t, tr.Insert(key(0x0b), []byte("two")))
	require.NoError(t, tr.Insert(key(0x0c), []byte("three")))

	require.NoError(t, tr.Delete(key(0x0b)))
	require.NoError(t, tr.Delete(key(0x0c)))

	v, err := tr.Get(key(0x0a))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), v)

	solo := New(newMemKV(), [32]byte{})
	require.NoError(t, solo.Insert(key(0x0a), []byte("one")))
	require.Equal(t, solo.RootHash(), tr.RootHash())
}

func TestTrieDeleteUnknownKeyFails(t *testing.T) {
	tr := New(newMemKV(), [32]byte{})
	require.NoError(t, tr.Insert(key(0x0a), []byte("one")))
	require.Error(t, tr.Delete(key(0x0f)))
}
