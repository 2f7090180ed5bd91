// Package finality tracks precommit stake per height and detects double
// signing, grounded on the stake-tally math in consensus.Engine and the
// indexing style of the teacher's secondary-index package.
package finality

import (
	"fmt"
	"log"
	"sync"

	"github.com/quorumchain/quorumchain/events"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
)

// Evidence records two conflicting precommits from the same validator at the
// same height and round (spec.md §4.6 "equivocation").
type Evidence struct {
	Validator types.PublicKey
	Height    uint64
	Round     uint64
	VoteA     types.Vote
	VoteB     types.Vote
}

// Recorder tallies precommit stake per (height, block_hash) and marks a
// height finalized the moment non-slashed stake clears quorum, independent
// of whatever the live BFT engine's own round-advance logic decides — so a
// node replaying persisted precommits after a restart reaches the same
// finality verdict purely from this tally. It also watches for a validator
// precommitting two different targets at the same (height, round) and
// slashes on sight.
type Recorder struct {
	mu sync.Mutex

	validators *types.ValidatorSet
	blocks     *storage.BlockStore
	emitter    *events.Emitter

	// seen[height][round][voter] = the one precommit recorded for that
	// validator; a second, different vote at the same key is equivocation.
	seen map[uint64]map[uint64]map[types.PublicKey]types.Vote

	// tally[height][hash] = set of voters already counted toward that
	// target's stake, so a validator repeating its precommit across rounds
	// (or a replayed vote after restart) is never double-counted.
	tally map[uint64]map[types.Hash]map[types.PublicKey]struct{}
}

// New creates a Recorder bound to a validator set and block store.
func New(validators *types.ValidatorSet, blocks *storage.BlockStore, emitter *events.Emitter) *Recorder {
	return &Recorder{
		validators: validators,
		blocks:     blocks,
		emitter:    emitter,
		seen:       make(map[uint64]map[uint64]map[types.PublicKey]types.Vote),
		tally:      make(map[uint64]map[types.Hash]map[types.PublicKey]struct{}),
	}
}

// RecordPrecommit ingests a precommit vote, checks for equivocation against
// any precommit already seen from the same validator at (height, round),
// and slashes the offending validator on detection (spec.md §4.6 invariant
// 9's companion: two conflicting precommits from one validator cannot both
// stand).
func (r *Recorder) RecordPrecommit(v types.Vote) (*Evidence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byRound, ok := r.seen[v.Height]
	if !ok {
		byRound = make(map[uint64]map[types.PublicKey]types.Vote)
		r.seen[v.Height] = byRound
	}
	byVoter, ok := byRound[v.Round]
	if !ok {
		byVoter = make(map[types.PublicKey]types.Vote)
		byRound[v.Round] = byVoter
	}

	prior, existed := byVoter[v.Voter]
	byVoter[v.Voter] = v
	if !existed || prior.SameTarget(&v) {
		if v.HasBlock {
			r.tallyLocked(v.Height, v.BlockHash, v.Voter)
		}
		return nil, false
	}

	ev := &Evidence{Validator: v.Voter, Height: v.Height, Round: v.Round, VoteA: prior, VoteB: v}
	if r.validators.Slash(v.Voter) {
		log.Printf("[finality] slashed validator %x for equivocation at height=%d round=%d", v.Voter[:8], v.Height, v.Round)
		if r.emitter != nil {
			r.emitter.Emit(events.Event{
				Type:        events.EventValidatorSlashed,
				BlockHeight: int64(v.Height),
				Data: map[string]any{
					"validator": fmt.Sprintf("%x", v.Voter[:]),
					"round":     v.Round,
				},
			})
		}
	}
	return ev, true
}

// tallyLocked records voter's precommit toward (height, hash) and, once the
// accumulated non-slashed stake clears quorum, finalizes height on the spot
// (spec.md §4.6: "finalized for (h, hash) when precommit stake > ⅔ of
// total"). This fires independent of whatever the live BFT engine's own
// height/round state machine is doing, so a node rebuilding this tally from
// persisted votes after a restart reaches the same finality verdict.
// Callers hold r.mu.
func (r *Recorder) tallyLocked(height uint64, hash types.Hash, voter types.PublicKey) {
	if r.blocks.IsFinalized(height) {
		return
	}
	byHash, ok := r.tally[height]
	if !ok {
		byHash = make(map[types.Hash]map[types.PublicKey]struct{})
		r.tally[height] = byHash
	}
	voters, ok := byHash[hash]
	if !ok {
		voters = make(map[types.PublicKey]struct{})
		byHash[hash] = voters
	}
	voters[voter] = struct{}{}

	var stake uint64
	for pub := range voters {
		if val, ok := r.validators.ByPublicKey(pub); ok && !val.Slashed {
			stake += val.Stake
		}
	}
	if !r.validators.HasQuorum(stake) {
		return
	}
	if err := r.finalizeLocked(height); err != nil {
		log.Printf("[finality] finalize height=%d on quorum tally: %v", height, err)
	}
}

// finalizeLocked marks height finalized and emits a notification, a no-op
// if height is already finalized. Callers hold r.mu.
func (r *Recorder) finalizeLocked(height uint64) error {
	if r.blocks.IsFinalized(height) {
		return nil
	}
	if err := r.blocks.MarkFinalized(height); err != nil {
		return err
	}
	if r.emitter != nil {
		r.emitter.Emit(events.Event{Type: events.EventBlockFinalized, BlockHeight: int64(height)})
	}
	return nil
}

// Finalize marks height finalized in the block store and emits a
// notification. Called by the node orchestrator once the live BFT engine's
// FinalizeBlock event fires; idempotent alongside tallyLocked, which may
// already have finalized height from precommit stake on its own.
func (r *Recorder) Finalize(height uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalizeLocked(height)
}

// IsFinalized reports whether height has been finalized.
func (r *Recorder) IsFinalized(height uint64) bool {
	return r.blocks.IsFinalized(height)
}
