package consensus

import (
	"testing"

	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/types"
	"github.com/stretchr/testify/require"
)

type validatorKey struct {
	priv crypto.PrivateKey
	pub  types.PublicKey
}

func newValidatorKeys(t *testing.T, n int) []validatorKey {
	t.Helper()
	keys := make([]validatorKey, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		var pk types.PublicKey
		copy(pk[:], pub)
		keys[i] = validatorKey{priv: priv, pub: pk}
	}
	return keys
}

func buildValidatorSet(keys []validatorKey, stake uint64) *types.ValidatorSet {
	vs := make([]types.Validator, len(keys))
	for i, k := range keys {
		vs[i] = types.Validator{PublicKey: k.pub, Stake: stake}
	}
	return types.NewValidatorSet(1, vs)
}

func findEvent(events []Event, kind EventKind) (Event, bool) {
	for _, e := range events {
		if e.Kind == kind {
			return e, true
		}
	}
	return Event{}, false
}

// TestBftThreeValidatorHappyPath mirrors spec.md's S5: three validators,
// equal stake, one proposal, unanimous votes, finalize at height 0 and
// advance to height 1.
func TestBftThreeValidatorHappyPath(t *testing.T) {
	keys := newValidatorKeys(t, 3)
	vs := buildValidatorSet(keys, 100)

	engines := make([]*Engine, 3)
	for i, k := range keys {
		engines[i] = New(k.pub, k.priv, vs, 0)
	}

	var proposerIdx int
	for i, e := range engines {
		if e.IsProposer(0, 0) {
			proposerIdx = i
		}
	}

	block := types.Block{Header: types.Header{Slot: 1}}
	proposeEvents := engines[proposerIdx].CreateProposal(block)
	proposalEv, ok := findEvent(proposeEvents, EventBroadcastProposal)
	require.True(t, ok)

	var allVotes []types.Vote
	if voteEv, ok := findEvent(proposeEvents, EventBroadcastVote); ok {
		allVotes = append(allVotes, voteEv.Vote)
	}

	for i, e := range engines {
		if i == proposerIdx {
			continue
		}
		events := e.HandleProposal(proposalEv.Proposal)
		voteEv, ok := findEvent(events, EventBroadcastVote)
		require.True(t, ok, "validator %d should cast prevote", i)
		allVotes = append(allVotes, voteEv.Vote)
	}

	// Deliver every prevote to every engine (including the caster, who
	// already recorded its own vote and must silently ignore the replay).
	var precommits []types.Vote
	for _, e := range engines {
		for _, v := range allVotes {
			events := e.HandleVote(v)
			if pc, ok := findEvent(events, EventBroadcastVote); ok {
				precommits = append(precommits, pc.Vote)
			}
		}
	}
	require.NotEmpty(t, precommits)

	var finalized int
	for _, e := range engines {
		for _, v := range precommits {
			events := e.HandleVote(v)
			if _, ok := findEvent(events, EventFinalizeBlock); ok {
				finalized++
			}
		}
	}
	require.Equal(t, 3, finalized, "all three validators must finalize the same block")

	for _, e := range engines {
		require.Equal(t, uint64(1), e.Height())
		require.Equal(t, uint64(0), e.Round())
		require.Equal(t, StepPropose, e.Step())
	}
}

// TestBftTimeoutProducesNilVotesAndAdvancesRound mirrors spec.md's S6: no
// proposal arrives before the Propose deadline, so the engine casts a nil
// Prevote, then, once the Prevote deadline passes, a nil Precommit, then
// starts the next round.
func TestBftTimeoutProducesNilVotesAndAdvancesRound(t *testing.T) {
	keys := newValidatorKeys(t, 1)
	vs := buildValidatorSet(keys, 100)
	e := New(keys[0].pub, keys[0].priv, vs, 5)

	startEvents := e.StartRound(0)
	_, ok := findEvent(startEvents, EventNewRound)
	require.True(t, ok)

	proposeDeadline := e.timeouts.Duration(StepPropose, 0)
	events := e.CheckTimeout(proposeDeadline)
	voteEv, ok := findEvent(events, EventBroadcastVote)
	require.True(t, ok)
	require.False(t, voteEv.Vote.HasBlock, "timeout prevote must be nil")
	require.Equal(t, StepPrevote, e.Step(), "timeout advances the step directly, not via quorum")

	prevoteDeadline := e.timeouts.Duration(StepPrevote, 0)
	events = e.CheckTimeout(prevoteDeadline)
	voteEv, ok = findEvent(events, EventBroadcastVote)
	require.True(t, ok)
	require.False(t, voteEv.Vote.HasBlock, "timeout precommit must be nil")
	require.Equal(t, StepPrecommit, e.Step())

	precommitDeadline := e.timeouts.Duration(StepPrecommit, 0)
	events = e.CheckTimeout(precommitDeadline)
	_, ok = findEvent(events, EventNewRound)
	require.True(t, ok)
	require.Equal(t, uint64(1), e.Round())
	require.Equal(t, StepPropose, e.Step())
}

// TestBftRejectsWrongProposer checks silent rejection (empty event list, no
// panic) of a proposal signed by a non-elected validator.
func TestBftRejectsWrongProposer(t *testing.T) {
	keys := newValidatorKeys(t, 3)
	vs := buildValidatorSet(keys, 100)
	e := New(keys[0].pub, keys[0].priv, vs, 0)

	proposerKey := mustProposerKey(t, vs, 0, 0)
	var impostorIdx int
	for i := range keys {
		if keys[i].pub != proposerKey {
			impostorIdx = i
			break
		}
	}

	block := types.Block{Header: types.Header{Slot: 1}}
	proposal := types.Proposal{Height: 0, Round: 0, Block: block, Proposer: keys[impostorIdx].pub}
	proposal.Sign(keys[impostorIdx].priv)

	events := e.HandleProposal(proposal)
	require.Empty(t, events)
	require.Equal(t, StepPropose, e.Step())
}

func mustProposerKey(t *testing.T, vs *types.ValidatorSet, height, round uint64) types.PublicKey {
	t.Helper()
	v, ok := vs.Proposer(height, round)
	require.True(t, ok)
	return v.PublicKey
}

// TestBftQuorumMath checks the strict-majority threshold directly: exactly
// two-thirds stake must NOT reach quorum, anything above must.
func TestBftQuorumMath(t *testing.T) {
	keys := newValidatorKeys(t, 3)
	vs := buildValidatorSet(keys, 100) // total 300, threshold: stake*3 > 600
	require.False(t, vs.HasQuorum(200))
	require.True(t, vs.HasQuorum(201))
}
