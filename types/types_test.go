package types

import (
	"testing"

	"github.com/quorumchain/quorumchain/crypto"
	"github.com/stretchr/testify/require"
)

func TestTransactionHashInjective(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	addr := AddressFromPublicKey(mustPubKey(pub))

	a := Transaction{Sender: addr, Nonce: 0, GasLimit: 21000, MaxFeePerGas: 1, MaxPriorityFeePerGas: 1, Value: 1}
	b := a
	b.Value = 2

	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestTransactionHashExcludesSignature(t *testing.T) {
	a := Transaction{Sender: Address{1}, Nonce: 1, GasLimit: 21000, MaxFeePerGas: 1}
	b := a
	b.Signature = Signature{9, 9, 9}

	require.Equal(t, a.Hash(), b.Hash())
}

func TestTransactionSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tx := Transaction{Sender: Address{1}, Nonce: 0, GasLimit: 21000, MaxFeePerGas: 1}
	tx.Sign(priv)

	var pk PublicKey
	copy(pk[:], pub)
	require.NoError(t, tx.VerifySignature(pk[:]))

	tx.Nonce = 99
	require.Error(t, tx.VerifySignature(pk[:]))
}

func TestSignDeterministic(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("height=1 round=0")
	require.Equal(t, crypto.Sign(priv, msg), crypto.Sign(priv, msg))
}

func TestTransactionValidate(t *testing.T) {
	tx := Transaction{MaxFeePerGas: 10, MaxPriorityFeePerGas: 20, GasLimit: 1000}
	require.Error(t, tx.Validate())

	tx = Transaction{MaxFeePerGas: 10, MaxPriorityFeePerGas: 5, GasLimit: 0}
	require.Error(t, tx.Validate())

	tx = Transaction{MaxFeePerGas: 10, MaxPriorityFeePerGas: 5, GasLimit: MaxGasLimit + 1}
	require.Error(t, tx.Validate())

	tx = Transaction{MaxFeePerGas: 10, MaxPriorityFeePerGas: 5, GasLimit: 21000}
	require.NoError(t, tx.Validate())
}

func TestExtrinsicsRootEmpty(t *testing.T) {
	root := ExtrinsicsRoot(nil)
	require.Equal(t, Hash(crypto.Sum256(nil)), root)
}

func TestBlockHashEqualsHeaderHash(t *testing.T) {
	blk := Block{Header: Header{Slot: 1}}
	require.Equal(t, blk.Header.Hash(), blk.Hash())
}

func TestValidatorSetQuorum(t *testing.T) {
	vs := NewValidatorSet(1, []Validator{
		{PublicKey: PublicKey{1}, Stake: 100},
		{PublicKey: PublicKey{2}, Stake: 100},
		{PublicKey: PublicKey{3}, Stake: 100},
	})
	require.Equal(t, uint64(300), vs.TotalStake())
	require.False(t, vs.HasQuorum(200))
	require.True(t, vs.HasQuorum(201))
}

func TestValidatorSetSlashRemovesStake(t *testing.T) {
	vs := NewValidatorSet(1, []Validator{
		{PublicKey: PublicKey{1}, Stake: 100},
		{PublicKey: PublicKey{2}, Stake: 100},
	})
	require.True(t, vs.Slash(PublicKey{1}))
	require.Equal(t, uint64(100), vs.TotalStake())
}

func TestValidatorSetProposerRoundRobin(t *testing.T) {
	vs := NewValidatorSet(1, []Validator{
		{PublicKey: PublicKey{1}, Stake: 1},
		{PublicKey: PublicKey{2}, Stake: 1},
	})
	p0, ok := vs.Proposer(0, 0)
	require.True(t, ok)
	p1, _ := vs.Proposer(1, 0)
	require.NotEqual(t, p0.PublicKey, p1.PublicKey)
}

func TestAccountEncodeDecodeRoundTrip(t *testing.T) {
	a := NewAccount()
	a.Nonce = 7
	a.Balance.SetInt64(12345)

	decoded, err := DecodeAccount(a.Encode())
	require.NoError(t, err)
	require.Equal(t, a.Nonce, decoded.Nonce)
	require.Equal(t, 0, a.Balance.Cmp(decoded.Balance))
}

func TestVoteNilTargetsMatch(t *testing.T) {
	a := Vote{Height: 1, Round: 0, Step: StepPrevote}
	b := Vote{Height: 1, Round: 0, Step: StepPrevote}
	require.True(t, a.SameTarget(&b))

	b.HasBlock = true
	b.BlockHash = Hash{1}
	require.False(t, a.SameTarget(&b))
}

func mustPubKey(pub crypto.PublicKey) PublicKey {
	var pk PublicKey
	copy(pk[:], pub)
	return pk
}
