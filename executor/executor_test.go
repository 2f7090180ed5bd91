package executor

import (
	"math/big"
	"testing"

	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/errs"
	"github.com/quorumchain/quorumchain/internal/testutil"
	"github.com/quorumchain/quorumchain/trie"
	"github.com/quorumchain/quorumchain/types"
	"github.com/stretchr/testify/require"
)

func newWorkingTrie() *trie.Trie {
	return trie.New(testutil.NewMemDB().AsTrieStore(), [32]byte{})
}

func fundedSender(t *testing.T, tr *trie.Trie, addr types.Address, balance int64) {
	t.Helper()
	acct := types.NewAccount()
	acct.Balance = big.NewInt(balance)
	require.NoError(t, tr.Insert(addr[:], acct.Encode()))
}

// buildTx mirrors spec.md's S1 scenario: payload carries the signer's
// public key; hash/sign happens over everything but the signature.
func buildTx(priv crypto.PrivateKey, pub crypto.PublicKey, sender types.Address, to types.Address, nonce uint64, value uint64) types.Transaction {
	tx := types.Transaction{
		Sender:               sender,
		Nonce:                nonce,
		Payload:              append([]byte{}, pub...),
		GasLimit:             30000,
		MaxFeePerGas:         1_000_000_000,
		MaxPriorityFeePerGas: 100_000_000,
		To:                   to,
		HasTo:                true,
		Value:                value,
	}
	tx.Sign(priv)
	return tx
}

func TestApplyTransactionHappyPath(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	var pk types.PublicKey
	copy(pk[:], pub)
	sender := types.AddressFromPublicKey(pk)
	recipient := types.Address{2}

	tr := newWorkingTrie()
	fundedSender(t, tr, sender, 1_000_000_000_000_000)

	tx := buildTx(priv, pub, sender, recipient, 0, 500)

	ex := New(tr)
	result, err := ex.ApplyTransaction(&tx)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, result.Status)
	require.GreaterOrEqual(t, result.GasUsed, uint64(21_168))
	require.LessOrEqual(t, result.GasUsed, uint64(21_500))

	raw, err := tr.Get(sender[:])
	require.NoError(t, err)
	senderAcct, err := types.DecodeAccount(raw)
	require.NoError(t, err)
	require.Equal(t, uint64(1), senderAcct.Nonce)

	raw, err = tr.Get(recipient[:])
	require.NoError(t, err)
	recipientAcct, err := types.DecodeAccount(raw)
	require.NoError(t, err)
	require.Equal(t, int64(500), recipientAcct.Balance.Int64())
}

func TestApplyTransactionNonceMismatch(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	var pk types.PublicKey
	copy(pk[:], pub)
	sender := types.AddressFromPublicKey(pk)

	tr := newWorkingTrie()
	fundedSender(t, tr, sender, 1_000_000_000_000_000)

	tx := buildTx(priv, pub, sender, types.Address{2}, 5, 500)

	ex := New(tr)
	_, err = ex.ApplyTransaction(&tx)
	require.True(t, errs.Is(err, errs.KindNonceMismatch))
}

func TestExecuteBlockSkipsBadTxButKeepsGood(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	var pk types.PublicKey
	copy(pk[:], pub)
	sender := types.AddressFromPublicKey(pk)

	tr := newWorkingTrie()
	fundedSender(t, tr, sender, 1_000_000_000_000_000)

	good := buildTx(priv, pub, sender, types.Address{2}, 0, 500)
	bad := buildTx(priv, pub, sender, types.Address{2}, 5, 500) // wrong nonce

	ex := New(tr)
	receipts, included, gasUsed := ex.ExecuteBlock([]types.Transaction{bad, good}, types.Hash{9}, 1)

	require.Len(t, receipts, 1)
	require.Equal(t, good.Hash(), receipts[0].TxHash)
	require.Len(t, included, 1)
	require.Equal(t, good.Hash(), included[0].Hash())
	require.Greater(t, gasUsed, uint64(0))
}

func TestNextBaseFeeMonotonicity(t *testing.T) {
	same := NextBaseFee(5_000_000, 10_000_000, 1_000_000_000)
	require.Equal(t, uint64(1_000_000_000), same)

	up := NextBaseFee(8_000_000, 10_000_000, 1_000_000_000)
	require.Greater(t, up, uint64(1_000_000_000))

	down := NextBaseFee(2_000_000, 10_000_000, 1_000_000_000)
	require.Less(t, down, uint64(1_000_000_000))
}

func TestGasMeterRefundCap(t *testing.T) {
	m := NewGasMeter(100)
	require.NoError(t, m.Consume(80))
	m.Refund(50)
	require.Equal(t, uint64(40), m.Finalize())
}
