// Package consensus implements the round-based BFT replication engine.
// Validators propose and vote in round-robin order under Byzantine fault
// tolerance; each input produces a list of outputs and the engine never
// panics on adversarial input (spec.md §4.5).
package consensus

import (
	"math"

	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/types"
)

// Step is the BFT state machine's current phase.
type Step uint8

const (
	StepPropose Step = iota
	StepPrevote
	StepPrecommit
	StepCommit
)

// TimeoutConfig holds the base per-step durations and the per-round
// exponential backoff factor (spec.md §4.5).
type TimeoutConfig struct {
	ProposeMS    int64
	PrevoteMS    int64
	PrecommitMS  int64
	BackoffBase  float64
}

// DefaultTimeoutConfig matches the reference engine's defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{ProposeMS: 3000, PrevoteMS: 1000, PrecommitMS: 1000, BackoffBase: 1.1}
}

// Duration returns the backed-off timeout in milliseconds for step at round.
func (c TimeoutConfig) Duration(step Step, round uint64) int64 {
	var base int64
	switch step {
	case StepPropose:
		base = c.ProposeMS
	case StepPrevote:
		base = c.PrevoteMS
	case StepPrecommit:
		base = c.PrecommitMS
	default:
		return 0
	}
	multiplier := math.Pow(c.BackoffBase, float64(round))
	return int64(float64(base) * multiplier)
}

// Event is one output of the engine. Kind selects which of the typed fields
// are meaningful (for example Height and Round for EventNewRound; Block,
// Round and Proposer for EventFinalizeBlock).
type EventKind uint8

const (
	EventBroadcastProposal EventKind = iota
	EventBroadcastVote
	EventNewRound
	EventFinalizeBlock
	EventTimeout
)

type Event struct {
	Kind        EventKind
	Proposal    types.Proposal
	Vote        types.Vote
	Height      uint64
	Round       uint64
	Block       types.Block
	Proposer    types.PublicKey
	TimeoutStep Step
}

type voteKey struct {
	round uint64
	step  Step
	voter types.PublicKey
}

// Engine is the single-threaded cooperative BFT state machine. Concurrent
// access is forbidden (spec.md §5); the orchestrator serializes every call.
type Engine struct {
	pubKey  types.PublicKey
	privKey crypto.PrivateKey

	validators *types.ValidatorSet

	height uint64
	round  uint64
	step   Step

	proposal    *types.Proposal
	votes       map[voteKey]types.Vote
	timeouts    TimeoutConfig
	timeoutStep Step
	hasTimeout  bool
	elapsedMS   int64 // time accumulated since the current timeout was armed
}

// New creates an engine for the local validator at the given validator set
// and starting height.
func New(pubKey types.PublicKey, privKey crypto.PrivateKey, validators *types.ValidatorSet, startHeight uint64) *Engine {
	return &Engine{
		pubKey:     pubKey,
		privKey:    privKey,
		validators: validators,
		height:     startHeight,
		step:       StepPropose,
		votes:      make(map[voteKey]types.Vote),
		timeouts:   DefaultTimeoutConfig(),
	}
}

func (e *Engine) Height() uint64 { return e.height }
func (e *Engine) Round() uint64  { return e.round }
func (e *Engine) Step() Step     { return e.step }

// IsProposer reports whether the local validator is the elected proposer
// for (height, round).
func (e *Engine) IsProposer(height, round uint64) bool {
	v, ok := e.validators.Proposer(height, round)
	return ok && v.PublicKey == e.pubKey
}

func (e *Engine) signVote(v *types.Vote) {
	v.Voter = e.pubKey
	v.Sign(e.privKey)
}

// StartRound resets per-round state and starts the Propose timeout.
func (e *Engine) StartRound(round uint64) []Event {
	e.round = round
	e.step = StepPropose
	e.proposal = nil
	e.votes = make(map[voteKey]types.Vote)
	e.startTimeout(StepPropose)
	return []Event{{Kind: EventNewRound, Height: e.height, Round: e.round}}
}

func (e *Engine) startTimeout(step Step) {
	e.timeoutStep = step
	e.hasTimeout = true
	e.elapsedMS = 0
}

// HandleProposal records a valid proposal and casts a Prevote. Invalid or
// out-of-round proposals are dropped silently (spec.md §4.5/§7).
func (e *Engine) HandleProposal(p types.Proposal) []Event {
	if p.Height != e.height || p.Round != e.round || e.step != StepPropose {
		return nil
	}
	expected, ok := e.validators.Proposer(p.Height, p.Round)
	if !ok || expected.PublicKey != p.Proposer {
		return nil
	}
	if p.VerifySignature() != nil {
		return nil
	}

	proposal := p
	e.proposal = &proposal
	e.step = StepPrevote
	e.startTimeout(StepPrevote)

	blockHash := p.Block.Hash()
	vote := types.Vote{Height: e.height, Round: e.round, Step: types.StepPrevote, BlockHash: blockHash, HasBlock: true}
	e.signVote(&vote)
	e.recordVote(vote)

	return []Event{{Kind: EventBroadcastVote, Vote: vote}}
}

// HandleVote records a vote from a known validator with a valid signature
// and checks for quorum. Adversarial or out-of-round votes are dropped
// silently.
func (e *Engine) HandleVote(v types.Vote) []Event {
	if v.Height != e.height || v.Round != e.round {
		return nil
	}
	if _, known := e.validators.ByPublicKey(v.Voter); !known {
		return nil
	}
	if v.VerifySignature() != nil {
		return nil
	}
	k := voteKey{round: v.Round, step: stepFromVoteStep(v.Step), voter: v.Voter}
	if _, dup := e.votes[k]; dup {
		return nil
	}
	e.recordVote(v)
	return e.checkQuorum()
}

func (e *Engine) recordVote(v types.Vote) {
	k := voteKey{round: v.Round, step: stepFromVoteStep(v.Step), voter: v.Voter}
	e.votes[k] = v
}

func stepFromVoteStep(s types.Step) Step {
	if s == types.StepPrecommit {
		return StepPrecommit
	}
	return StepPrevote
}

// tally sums stake per distinct vote target within (round, step) and
// reports the first target whose stake clears quorum.
func (e *Engine) tally(round uint64, step Step) (types.Vote, bool) {
	type target struct {
		hash     types.Hash
		hasBlock bool
	}
	stakes := make(map[target]uint64)
	sample := make(map[target]types.Vote)

	for k, v := range e.votes {
		if k.round != round || k.step != step {
			continue
		}
		val, ok := e.validators.ByPublicKey(k.voter)
		if !ok || val.Slashed {
			continue
		}
		tg := target{hash: v.BlockHash, hasBlock: v.HasBlock}
		stakes[tg] += val.Stake
		sample[tg] = v
	}

	for tg, stake := range stakes {
		if e.validators.HasQuorum(stake) {
			return sample[tg], true
		}
	}
	return types.Vote{}, false
}

func (e *Engine) checkQuorum() []Event {
	var events []Event

	if e.step == StepPrevote {
		if winner, ok := e.tally(e.round, StepPrevote); ok {
			e.step = StepPrecommit
			e.startTimeout(StepPrecommit)

			vote := types.Vote{Height: e.height, Round: e.round, Step: types.StepPrecommit, BlockHash: winner.BlockHash, HasBlock: winner.HasBlock}
			e.signVote(&vote)
			e.recordVote(vote)
			events = append(events, Event{Kind: EventBroadcastVote, Vote: vote})
		}
	}

	if e.step == StepPrecommit {
		if winner, ok := e.tally(e.round, StepPrecommit); ok && winner.HasBlock {
			if e.proposal != nil && e.proposal.Block.Hash() == winner.BlockHash {
				block := e.proposal.Block
				proposer := e.proposal.Proposer
				e.step = StepCommit
				events = append(events, Event{Kind: EventFinalizeBlock, Block: block, Round: e.round, Proposer: proposer})

				e.height++
				e.round = 0
				e.step = StepPropose
				e.proposal = nil
				e.votes = make(map[voteKey]types.Vote)
				events = append(events, Event{Kind: EventNewRound, Height: e.height, Round: 0})
			}
		}
	}

	return events
}

// CreateProposal is invoked by the block producer when the local node is
// proposer for the current (height, round). It signs and broadcasts the
// proposal and casts the proposer's own Prevote.
func (e *Engine) CreateProposal(block types.Block) []Event {
	if !e.IsProposer(e.height, e.round) {
		return nil
	}

	proposal := types.Proposal{Height: e.height, Round: e.round, Block: block, Proposer: e.pubKey}
	proposal.Sign(e.privKey)
	e.proposal = &proposal
	e.step = StepPrevote

	blockHash := block.Hash()
	vote := types.Vote{Height: e.height, Round: e.round, Step: types.StepPrevote, BlockHash: blockHash, HasBlock: true}
	e.signVote(&vote)
	e.recordVote(vote)

	events := []Event{
		{Kind: EventBroadcastProposal, Proposal: proposal},
		{Kind: EventBroadcastVote, Vote: vote},
	}
	events = append(events, e.checkQuorum()...)
	return events
}

// CheckTimeout adds elapsedMS (the time since the previous call) to the time
// accumulated since the current timeout was armed and, once the current
// step's deadline is reached, returns the events of the matching
// HandleTimeout* call. The orchestrator drives the clock externally
// (spec.md §4.9); this method itself performs no I/O or wall-clock reads.
func (e *Engine) CheckTimeout(elapsedMS int64) []Event {
	if !e.hasTimeout {
		return nil
	}
	e.elapsedMS += elapsedMS
	deadline := e.timeouts.Duration(e.timeoutStep, e.round)
	if e.elapsedMS < deadline {
		return nil
	}
	e.hasTimeout = false
	switch e.timeoutStep {
	case StepPropose:
		return e.HandleTimeoutPropose()
	case StepPrevote:
		return e.HandleTimeoutPrevote()
	case StepPrecommit:
		return e.HandleTimeoutPrecommit()
	}
	return nil
}

// HandleTimeoutPropose advances to Prevote and broadcasts a nil Prevote.
func (e *Engine) HandleTimeoutPropose() []Event {
	e.step = StepPrevote
	e.startTimeout(StepPrevote)

	vote := types.Vote{Height: e.height, Round: e.round, Step: types.StepPrevote}
	e.signVote(&vote)
	e.recordVote(vote)
	return []Event{{Kind: EventBroadcastVote, Vote: vote}}
}

// HandleTimeoutPrevote advances to Precommit and broadcasts a nil Precommit.
func (e *Engine) HandleTimeoutPrevote() []Event {
	e.step = StepPrecommit
	e.startTimeout(StepPrecommit)

	vote := types.Vote{Height: e.height, Round: e.round, Step: types.StepPrecommit}
	e.signVote(&vote)
	e.recordVote(vote)
	return []Event{{Kind: EventBroadcastVote, Vote: vote}}
}

// HandleTimeoutPrecommit starts the next round.
func (e *Engine) HandleTimeoutPrecommit() []Event {
	return e.StartRound(e.round + 1)
}
