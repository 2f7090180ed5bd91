// Package node orchestrates a single validator: it drives the BFT engine's
// tick, turns FinalizeBlock events into durable state/block/receipt writes,
// and answers/issues network sync requests. Grounded on the teacher's
// PoA.Run ticker loop and ProduceBlock ordering (compute root, sign, then
// commit state, block, receipts and finality mark in that order), generalized from a
// single-producer loop into an event-driven orchestrator over BFT events.
package node

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/quorumchain/quorumchain/consensus"
	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/errs"
	"github.com/quorumchain/quorumchain/events"
	"github.com/quorumchain/quorumchain/executor"
	"github.com/quorumchain/quorumchain/finality"
	"github.com/quorumchain/quorumchain/mempool"
	"github.com/quorumchain/quorumchain/network"
	"github.com/quorumchain/quorumchain/producer"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
)

// Node wires together consensus, execution, storage and networking for one
// validator. Tick, ImportBlock and the proposal/vote message handlers (which
// run on the network's read goroutines) all serialize on mu, so the engine
// and stores see one call at a time, matching spec.md §4.9's single-threaded
// orchestrator model.
type Node struct {
	mu sync.Mutex

	engine   *consensus.Engine
	producer *producer.Producer
	mempool  *mempool.Mempool
	state    *storage.StateStore
	blocks   *storage.BlockStore
	receipts *storage.ReceiptStore
	final    *finality.Recorder
	net      *network.Node
	emitter  *events.Emitter

	privKey crypto.PrivateKey
	pubKey  types.PublicKey

	// lastHeader tracks the most recently committed header, the basis for
	// the next block's base-fee adjustment and parent hash.
	lastHeader types.Header

	// pending holds the block this node most recently proposed, keyed by
	// its hash, until either FinalizeBlock commits it or a new round
	// discards it.
	pending map[types.Hash]producer.Result
}

// Config bundles the components a Node is built from.
type Config struct {
	Engine   *consensus.Engine
	Producer *producer.Producer
	Mempool  *mempool.Mempool
	State    *storage.StateStore
	Blocks   *storage.BlockStore
	Receipts *storage.ReceiptStore
	Final    *finality.Recorder
	Net      *network.Node
	Emitter  *events.Emitter
	PrivKey  crypto.PrivateKey
	PubKey   types.PublicKey
}

// New assembles a Node from its components.
func New(cfg Config) *Node {
	n := &Node{
		engine:   cfg.Engine,
		producer: cfg.Producer,
		mempool:  cfg.Mempool,
		state:    cfg.State,
		blocks:   cfg.Blocks,
		receipts: cfg.Receipts,
		final:    cfg.Final,
		net:      cfg.Net,
		emitter:  cfg.Emitter,
		privKey:  cfg.PrivKey,
		pubKey:   cfg.PubKey,
		pending:  make(map[types.Hash]producer.Result),
	}
	if n.net != nil {
		n.net.Handle(network.MsgProposal, n.onProposalMessage)
		n.net.Handle(network.MsgVote, n.onVoteMessage)
	}
	return n
}

// Tick advances the engine's clock by elapsedMS, dispatching any resulting
// events, then proposes a block if this node is the proposer for the
// current height/round and has not already done so (spec.md §4.9: "a
// 1-second tick drives timeout checks and, for the proposer, block
// production").
func (n *Node) Tick(elapsedMS int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.net != nil {
		n.net.DecayPeerScores()
	}

	n.dispatch(n.engine.CheckTimeout(elapsedMS))

	height, round := n.engine.Height(), n.engine.Round()
	if n.engine.Step() != consensus.StepPropose {
		return
	}
	if !n.engine.IsProposer(height, round) {
		return
	}

	result, err := n.producer.Produce(height, 0, n.lastHeader.Hash(),
		n.lastHeader.GasUsed, types.MaxBlockGasUsed, n.lastHeader.BaseFee,
		n.privKey, n.pubKey)
	if err != nil {
		if errs.Is(err, errs.KindNoCandidate) {
			// Mempool is empty: propose nothing and let CheckTimeout's
			// TimeoutPropose fire on a later tick (spec.md §4.8).
			return
		}
		log.Printf("[node] produce block failed at height=%d round=%d: %v", height, round, err)
		return
	}
	n.pending[result.Block.Hash()] = result
	n.dispatch(n.engine.CreateProposal(result.Block))
}

func (n *Node) onProposalMessage(_ *network.Peer, msg network.Message) {
	var p types.Proposal
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dispatch(n.engine.HandleProposal(p))
}

func (n *Node) onVoteMessage(_ *network.Peer, msg network.Message) {
	var v types.Vote
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if v.Step == types.StepPrecommit && n.final != nil {
		n.final.RecordPrecommit(v)
	}
	n.dispatch(n.engine.HandleVote(v))
}

// dispatch translates consensus events into network broadcasts and durable
// writes. Caller holds n.mu.
func (n *Node) dispatch(evs []consensus.Event) {
	for _, ev := range evs {
		switch ev.Kind {
		case consensus.EventBroadcastProposal:
			if n.net != nil {
				n.net.BroadcastProposal(&ev.Proposal)
			}
		case consensus.EventBroadcastVote:
			if n.net != nil {
				n.net.BroadcastVote(&ev.Vote)
			}
			if ev.Vote.Step == types.StepPrecommit && n.final != nil {
				n.final.RecordPrecommit(ev.Vote)
			}
		case consensus.EventFinalizeBlock:
			if err := n.commit(ev.Block, ev.Proposer, true); err != nil {
				log.Printf("[node] FATAL: commit of finalized block at slot %d failed: %v", ev.Block.Header.Slot, err)
			}
		case consensus.EventNewRound:
			// A new round drops any block proposed earlier that was not
			// committed; Tick/CreateProposal handles the next proposal when
			// this node is the proposer.
			n.pending = make(map[types.Hash]producer.Result)
		}
	}
}

// commit applies the crash-consistency order from spec.md §4.9: state is
// committed first (in memory here; durability comes from the block write
// below being the recovery anchor), then the block, then receipts, then the
// finality mark.
func (n *Node) commit(block types.Block, proposer types.PublicKey, verifyRoot bool) error {
	result, ok := n.pending[block.Hash()]
	var receipts []types.Receipt
	if ok {
		// Produced locally: producer.Produce already credited the block
		// reward before computing state_root, so nothing further to apply.
		receipts = result.Receipts
		delete(n.pending, block.Hash())
	} else if verifyRoot {
		// Block reached consensus live (this node saw the Proposal and
		// voted on it) but was proposed by a remote validator: re-execute
		// to obtain receipts, credit the same reward the proposer did, and
		// verify the claimed state root before committing.
		working := n.state.OpenWorkingCopy()
		ex := executor.New(working)
		var gasUsed uint64
		receipts, _, gasUsed = ex.ExecuteBlock(block.Transactions, block.Hash(), block.Header.Slot)
		proposerAddr := types.AddressFromPublicKey(proposer)
		if err := ex.CreditReward(proposerAddr, executor.BlockReward); err != nil {
			return fmt.Errorf("node: credit block reward: %w", err)
		}
		if working.RootHash() != [32]byte(block.Header.StateRoot) {
			return fmt.Errorf("node: state root mismatch at slot %d", block.Header.Slot)
		}
		_ = gasUsed
	} else {
		// Historical block obtained via sync rather than live consensus:
		// the original proposer's identity is not carried on the wire, so
		// the reward cannot be independently recredited here. The header
		// chain's signatures and the live-consensus path (which did apply
		// and verify the reward when the block was first finalized) are
		// the trust basis for this path; re-execute only to recover
		// receipts, and trust the embedded state_root.
		working := n.state.OpenWorkingCopy()
		ex := executor.New(working)
		receipts, _, _ = ex.ExecuteBlock(block.Transactions, block.Hash(), block.Header.Slot)
	}

	n.state.Commit(block.Header.StateRoot)
	if err := n.blocks.CommitBlock(&block, block.Header.Slot); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	if len(receipts) > 0 {
		if err := n.receipts.PutReceipts(block.Header.Slot, receipts); err != nil {
			return fmt.Errorf("commit receipts: %w", err)
		}
	}
	if n.final != nil {
		if err := n.final.Finalize(block.Header.Slot); err != nil {
			return fmt.Errorf("mark finalized: %w", err)
		}
	}
	n.lastHeader = block.Header
	n.mempool.Remove(block.Transactions)
	if n.net != nil {
		n.net.BroadcastBlock(&block)
	}
	return nil
}

// ImportBlock implements network.BlockImporter for blocks obtained via sync
// rather than live consensus: it re-executes to recover receipts and trusts
// the embedded state_root (see commit's verifyRoot=false branch), then
// writes the block through.
func (n *Node) ImportBlock(block types.Block) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.blocks.IsFinalized(block.Header.Slot) {
		return nil
	}
	return n.commit(block, types.PublicKey{}, false)
}

// Shutdown flushes the peer list to path and closes the network listener.
func (n *Node) Shutdown(peerListPath string) error {
	if n.net == nil {
		return nil
	}
	if peerListPath != "" {
		if err := n.net.SavePeerList(peerListPath); err != nil {
			return err
		}
	}
	n.net.Stop()
	return nil
}
