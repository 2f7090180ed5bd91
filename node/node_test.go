package node

import (
	"math/big"
	"testing"

	"github.com/quorumchain/quorumchain/consensus"
	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/finality"
	"github.com/quorumchain/quorumchain/internal/testutil"
	"github.com/quorumchain/quorumchain/mempool"
	"github.com/quorumchain/quorumchain/producer"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/trie"
	"github.com/quorumchain/quorumchain/types"
	"github.com/stretchr/testify/require"
)

// TestSingleValidatorTickProducesAndFinalizesBlock drives a one-validator
// node through a full round via Tick alone: propose, self-prevote,
// self-precommit, finalize, commit to every store.
func TestSingleValidatorTickProducesAndFinalizesBlock(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	var pk types.PublicKey
	copy(pk[:], pub)
	sender := types.AddressFromPublicKey(pk)

	vs := types.NewValidatorSet(1, []types.Validator{{PublicKey: pk, Stake: 100}})
	engine := consensus.New(pk, priv, vs, 0)

	db := testutil.NewMemDB()
	seed := trie.New(db.AsTrieStore(), [32]byte{})
	acct := types.NewAccount()
	acct.Balance = big.NewInt(1_000_000_000_000_000)
	require.NoError(t, seed.Insert(sender[:], acct.Encode()))

	state := storage.NewStateStore(db, types.Hash(seed.RootHash()))
	blocks := storage.NewBlockStore(db)
	receipts := storage.NewReceiptStore(db)
	final := finality.New(vs, blocks, nil)
	pool := mempool.New(mempool.Config{MaxCapacity: 10, MaxPerSender: 10, MinFeePerGas: 0})
	prod := producer.New(state, pool, nil, 1)

	tx := types.Transaction{
		Sender:               sender,
		Nonce:                0,
		Payload:              append([]byte{}, pub...),
		GasLimit:             30000,
		MaxFeePerGas:         1_000_000_000,
		MaxPriorityFeePerGas: 100_000_000,
		To:                   types.Address{7},
		HasTo:                true,
		Value:                10,
	}
	tx.Sign(priv)
	require.NoError(t, pool.Add(tx))

	n := New(Config{
		Engine:   engine,
		Producer: prod,
		Mempool:  pool,
		State:    state,
		Blocks:   blocks,
		Receipts: receipts,
		Final:    final,
	})

	engine.StartRound(0)
	n.Tick(0)

	h, ok := blocks.LatestHeight()
	require.True(t, ok)
	require.Equal(t, uint64(0), h)
	require.True(t, blocks.IsFinalized(0))
	require.Equal(t, 0, pool.Size(), "included transaction must be pruned from the mempool")

	blk, err := blocks.GetBlockByHeight(0)
	require.NoError(t, err)
	require.Len(t, blk.Transactions, 1)

	got, err := receipts.GetReceiptsByHeight(0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.Equal(t, uint64(1), engine.Height())
}
