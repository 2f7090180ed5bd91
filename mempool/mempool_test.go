package mempool

import (
	"testing"

	"github.com/quorumchain/quorumchain/errs"
	"github.com/quorumchain/quorumchain/types"
	"github.com/stretchr/testify/require"
)

func txWithFee(sender byte, sig byte, fee uint64) types.Transaction {
	return types.Transaction{
		Sender:               types.Address{sender},
		Signature:            types.Signature{sig},
		MaxPriorityFeePerGas: fee,
		MaxFeePerGas:         fee,
		GasLimit:             21000,
	}
}

// TestMempoolEvictionScenario mirrors spec.md's S3: capacity 2, min_fee 0,
// add fees {5, 7, 3}; expect {5, 7} remain and Take(3) returns [7, 5].
func TestMempoolEvictionScenario(t *testing.T) {
	m := New(Config{MaxCapacity: 2, MaxPerSender: 100, MinFeePerGas: 0})

	require.NoError(t, m.Add(txWithFee(1, 1, 5)))
	require.NoError(t, m.Add(txWithFee(1, 2, 7)))
	require.NoError(t, m.Add(txWithFee(1, 3, 3)))

	require.Equal(t, 2, m.Size())

	taken := m.Take(3)
	require.Len(t, taken, 2)
	require.Equal(t, uint64(7), taken[0].MaxPriorityFeePerGas)
	require.Equal(t, uint64(5), taken[1].MaxPriorityFeePerGas)
}

func TestMempoolRejectsDuplicate(t *testing.T) {
	m := New(DefaultConfig())
	tx := txWithFee(1, 1, 2_000_000_000)
	require.NoError(t, m.Add(tx))
	err := m.Add(tx)
	require.True(t, errs.Is(err, errs.KindDuplicate))
}

func TestMempoolRejectsBelowMinFee(t *testing.T) {
	m := New(Config{MaxCapacity: 10, MaxPerSender: 10, MinFeePerGas: 10})
	err := m.Add(txWithFee(1, 1, 1))
	require.True(t, errs.Is(err, errs.KindFeeBelowMinimum))
}

func TestMempoolSenderLimit(t *testing.T) {
	m := New(Config{MaxCapacity: 100, MaxPerSender: 1, MinFeePerGas: 0})
	require.NoError(t, m.Add(txWithFee(1, 1, 5)))
	err := m.Add(txWithFee(1, 2, 5))
	require.True(t, errs.Is(err, errs.KindSenderLimitReached))
}

func TestMempoolRemoveUpdatesCounts(t *testing.T) {
	m := New(DefaultConfig())
	tx := txWithFee(1, 1, 2_000_000_000)
	require.NoError(t, m.Add(tx))
	m.Remove([]types.Transaction{tx})
	require.Equal(t, 0, m.Size())
	require.NoError(t, m.Add(tx))
}

func TestMempoolTakeIsPrefixByPriority(t *testing.T) {
	m := New(Config{MaxCapacity: 100, MaxPerSender: 100, MinFeePerGas: 0})
	require.NoError(t, m.Add(txWithFee(1, 1, 1)))
	require.NoError(t, m.Add(txWithFee(2, 2, 9)))
	require.NoError(t, m.Add(txWithFee(3, 3, 5)))

	all := m.Take(100)
	require.Len(t, all, 3)
	for i := 0; i+1 < len(all); i++ {
		require.GreaterOrEqual(t, all[i].MaxPriorityFeePerGas, all[i+1].MaxPriorityFeePerGas)
	}
}
