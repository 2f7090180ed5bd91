package producer

import (
	"math/big"
	"testing"

	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/errs"
	"github.com/quorumchain/quorumchain/internal/testutil"
	"github.com/quorumchain/quorumchain/mempool"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/trie"
	"github.com/quorumchain/quorumchain/types"
	"github.com/stretchr/testify/require"
)

func TestProduceBuildsSignedBlockFromMempool(t *testing.T) {
	db := testutil.NewMemDB()

	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	var pk types.PublicKey
	copy(pk[:], pub)
	sender := types.AddressFromPublicKey(pk)
	recipient := types.Address{9}

	// Seed the committed trie with a funded sender account, then commit it
	// as the state store's starting root.
	seed := trie.New(db.AsTrieStore(), [32]byte{})
	acct := types.NewAccount()
	acct.Balance = big.NewInt(1_000_000_000_000_000)
	require.NoError(t, seed.Insert(sender[:], acct.Encode()))
	startRoot := seed.RootHash()

	state := storage.NewStateStore(db, startRoot)
	pool := mempool.New(mempool.Config{MaxCapacity: 10, MaxPerSender: 10, MinFeePerGas: 0})

	tx := types.Transaction{
		Sender:               sender,
		Nonce:                0,
		Payload:              append([]byte{}, pub...),
		GasLimit:             30000,
		MaxFeePerGas:         1_000_000_000,
		MaxPriorityFeePerGas: 100_000_000,
		To:                   recipient,
		HasTo:                true,
		Value:                42,
	}
	tx.Sign(priv)
	require.NoError(t, pool.Add(tx))

	p := New(state, pool, nil, 1)
	result, err := p.Produce(1, 0, types.Hash{}, 0, types.MaxBlockGasUsed, 1_000_000_000, priv, pk)
	require.NoError(t, err)

	require.Len(t, result.Block.Transactions, 1)
	require.Len(t, result.Receipts, 1)
	require.Equal(t, result.Block.Hash(), result.Receipts[0].BlockHash)
	require.NotEqual(t, types.Hash{}, result.Block.Header.StateRoot)
	require.NoError(t, result.Block.Header.VerifySignature(pub))
}

func TestProduceEmptyMempoolSignalsNoCandidate(t *testing.T) {
	db := testutil.NewMemDB()
	state := storage.NewStateStore(db, types.Hash{})
	pool := mempool.New(mempool.DefaultConfig())
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	p := New(state, pool, nil, 1)
	_, err = p.Produce(1, 0, types.Hash{}, 0, types.MaxBlockGasUsed, 1_000_000_000, priv, types.PublicKey{})
	require.True(t, errs.Is(err, errs.KindNoCandidate), "an empty mempool must signal no candidate so the engine hits TimeoutPropose, not yield an empty-but-present block")
	_ = pub
}
