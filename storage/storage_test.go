package storage_test

import (
	"testing"

	"github.com/quorumchain/quorumchain/internal/testutil"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
	"github.com/stretchr/testify/require"
)

func TestBlockStoreCommitAndLookup(t *testing.T) {
	bs := storage.NewBlockStore(testutil.NewMemDB())

	blk := &types.Block{Header: types.Header{Slot: 1}}
	require.NoError(t, bs.CommitBlock(blk, 1))

	got, err := bs.GetBlock(blk.Hash())
	require.NoError(t, err)
	require.Equal(t, blk.Hash(), got.Hash())

	byHeight, err := bs.GetBlockByHeight(1)
	require.NoError(t, err)
	require.Equal(t, blk.Hash(), byHeight.Hash())

	h, ok := bs.LatestHeight()
	require.True(t, ok)
	require.Equal(t, uint64(1), h)
}

func TestBlockStoreFinalityMonotone(t *testing.T) {
	bs := storage.NewBlockStore(testutil.NewMemDB())
	require.NoError(t, bs.MarkFinalized(5))
	require.Error(t, bs.MarkFinalized(3))
	require.True(t, bs.IsFinalized(5))
	require.True(t, bs.IsFinalized(2))
	require.False(t, bs.IsFinalized(6))
}

func TestReceiptStoreRoundTrip(t *testing.T) {
	rs := storage.NewReceiptStore(testutil.NewMemDB())
	r := types.Receipt{TxHash: types.Hash{1}, BlockHeight: 1, GasUsed: 21000, Status: types.StatusSuccess}
	require.NoError(t, rs.PutReceipts(1, []types.Receipt{r}))

	got, err := rs.GetReceipt(r.TxHash)
	require.NoError(t, err)
	require.Equal(t, r.GasUsed, got.GasUsed)

	byHeight, err := rs.GetReceiptsByHeight(1)
	require.NoError(t, err)
	require.Len(t, byHeight, 1)
}

func TestStateStoreWorkingCopyIsolation(t *testing.T) {
	ss := storage.NewStateStore(testutil.NewMemDB(), types.Hash{})

	acct, err := ss.GetAccount(types.Address{1})
	require.NoError(t, err)
	require.Equal(t, uint64(0), acct.Nonce)

	work := ss.OpenWorkingCopy()
	acct.Nonce = 5
	require.NoError(t, work.Insert(types.Address{1}.Bytes(), acct.Encode()))

	// Committed view is unaffected until Commit is called.
	stillZero, err := ss.GetAccount(types.Address{1})
	require.NoError(t, err)
	require.Equal(t, uint64(0), stillZero.Nonce)

	ss.Commit(types.Hash(work.RootHash()))
	updated, err := ss.GetAccount(types.Address{1})
	require.NoError(t, err)
	require.Equal(t, uint64(5), updated.Nonce)
}
