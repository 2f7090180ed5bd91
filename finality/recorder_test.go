package finality

import (
	"testing"

	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/events"
	"github.com/quorumchain/quorumchain/internal/testutil"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) types.PublicKey {
	t.Helper()
	_, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	var pk types.PublicKey
	copy(pk[:], pub)
	return pk
}

func TestRecorderDetectsEquivocation(t *testing.T) {
	voter := newKey(t)
	vs := types.NewValidatorSet(1, []types.Validator{{PublicKey: voter, Stake: 100}})
	blocks := storage.NewBlockStore(testutil.NewMemDB())
	r := New(vs, blocks, nil)

	voteA := types.Vote{Height: 1, Round: 0, Step: types.StepPrecommit, BlockHash: types.Hash{1}, HasBlock: true, Voter: voter}
	voteB := types.Vote{Height: 1, Round: 0, Step: types.StepPrecommit, BlockHash: types.Hash{2}, HasBlock: true, Voter: voter}

	_, flagged := r.RecordPrecommit(voteA)
	require.False(t, flagged)

	ev, flagged := r.RecordPrecommit(voteB)
	require.True(t, flagged)
	require.Equal(t, voter, ev.Validator)

	v, ok := vs.ByPublicKey(voter)
	require.True(t, ok)
	require.True(t, v.Slashed)
	require.Equal(t, uint64(0), v.Stake)
}

func TestRecorderIgnoresRepeatOfSameVote(t *testing.T) {
	voter := newKey(t)
	vs := types.NewValidatorSet(1, []types.Validator{{PublicKey: voter, Stake: 100}})
	blocks := storage.NewBlockStore(testutil.NewMemDB())
	r := New(vs, blocks, nil)

	vote := types.Vote{Height: 1, Round: 0, Step: types.StepPrecommit, BlockHash: types.Hash{1}, HasBlock: true, Voter: voter}
	r.RecordPrecommit(vote)
	_, flagged := r.RecordPrecommit(vote)
	require.False(t, flagged, "replaying the identical vote must not count as equivocation")
}

func TestRecorderFinalizesOnPrecommitQuorum(t *testing.T) {
	a, b, c := newKey(t), newKey(t), newKey(t)
	vs := types.NewValidatorSet(1, []types.Validator{
		{PublicKey: a, Stake: 100},
		{PublicKey: b, Stake: 100},
		{PublicKey: c, Stake: 100},
	})
	blocks := storage.NewBlockStore(testutil.NewMemDB())
	emitter := events.NewEmitter()
	r := New(vs, blocks, emitter)

	target := types.Hash{7}
	r.RecordPrecommit(types.Vote{Height: 9, Round: 0, Step: types.StepPrecommit, BlockHash: target, HasBlock: true, Voter: a})
	require.False(t, r.IsFinalized(9), "one of three validators precommitting is short of quorum")

	r.RecordPrecommit(types.Vote{Height: 9, Round: 0, Step: types.StepPrecommit, BlockHash: target, HasBlock: true, Voter: b})
	require.False(t, r.IsFinalized(9), "two of three equal stakes is exactly 2/3, short of the strict quorum")

	r.RecordPrecommit(types.Vote{Height: 9, Round: 0, Step: types.StepPrecommit, BlockHash: target, HasBlock: true, Voter: c})
	require.True(t, r.IsFinalized(9), "three of three (>2/3 stake) must finalize independent of any BFT engine commit call")
}

func TestRecorderIgnoresRepeatedVoterInQuorumTally(t *testing.T) {
	a, b := newKey(t), newKey(t)
	vs := types.NewValidatorSet(1, []types.Validator{
		{PublicKey: a, Stake: 100},
		{PublicKey: b, Stake: 100},
	})
	blocks := storage.NewBlockStore(testutil.NewMemDB())
	r := New(vs, blocks, nil)

	target := types.Hash{3}
	r.RecordPrecommit(types.Vote{Height: 4, Round: 0, Step: types.StepPrecommit, BlockHash: target, HasBlock: true, Voter: a})
	r.RecordPrecommit(types.Vote{Height: 4, Round: 1, Step: types.StepPrecommit, BlockHash: target, HasBlock: true, Voter: a})
	require.False(t, r.IsFinalized(4), "the same voter repeating across rounds must not be double-counted toward quorum")
}

func TestRecorderFinalizeIsMonotone(t *testing.T) {
	vs := types.NewValidatorSet(1, nil)
	blocks := storage.NewBlockStore(testutil.NewMemDB())
	emitter := events.NewEmitter()
	r := New(vs, blocks, emitter)

	require.NoError(t, r.Finalize(5))
	require.True(t, r.IsFinalized(5))
	require.True(t, r.IsFinalized(3))
	require.False(t, r.IsFinalized(6))
	require.Error(t, blocks.MarkFinalized(2))
}
