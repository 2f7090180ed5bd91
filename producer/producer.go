// Package producer builds candidate blocks: drain the mempool, execute
// against a state working copy, and assemble a signed header, grounded on
// the teacher's ProduceBlock (compute state root before flush, sign after
// execution, emit only once the block is fully formed) but adapted to the
// trie/executor/BFT pipeline instead of a flat KV store and PoA proposer
// check.
package producer

import (
	"encoding/hex"
	"fmt"

	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/errs"
	"github.com/quorumchain/quorumchain/events"
	"github.com/quorumchain/quorumchain/executor"
	"github.com/quorumchain/quorumchain/mempool"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
)

// MaxTxsPerBlock bounds how many pending transactions one block draws from
// the mempool (spec.md §4.8).
const MaxTxsPerBlock = 100

// Producer assembles candidate blocks for the BFT engine to propose.
type Producer struct {
	state          *storage.StateStore
	pool           *mempool.Mempool
	emitter        *events.Emitter
	validatorSetID uint64
}

// New creates a Producer over the given state store and mempool.
func New(state *storage.StateStore, pool *mempool.Mempool, emitter *events.Emitter, validatorSetID uint64) *Producer {
	return &Producer{state: state, pool: pool, emitter: emitter, validatorSetID: validatorSetID}
}

// Result is a candidate block plus its receipts, returned before the block
// has been accepted by the BFT engine or committed to storage.
type Result struct {
	Block    types.Block
	Receipts []types.Receipt
}

// Produce drains up to MaxTxsPerBlock mempool transactions, executes them
// against a fresh working copy of state, and returns a signed candidate
// block at the given height/parent. The working copy is discarded; nothing
// is committed to the StateStore here (spec.md §4.9: commit happens only
// after the block is finalized). If the mempool has nothing to offer,
// Produce returns an errs.KindNoCandidate error instead of an empty block,
// so the caller lets the BFT engine hit TimeoutPropose rather than
// proposing a vacuous block (spec.md §4.8).
func (p *Producer) Produce(height, epoch uint64, parentHash types.Hash, parentGasUsed, parentGasLimit, parentBaseFee uint64, priv crypto.PrivateKey, pub types.PublicKey) (Result, error) {
	txs := p.pool.Take(MaxTxsPerBlock)
	if len(txs) == 0 {
		return Result{}, errs.New(errs.KindNoCandidate, "producer: mempool empty, no candidate block")
	}

	working := p.state.OpenWorkingCopy()
	ex := executor.New(working)
	receipts, included, gasUsed := ex.ExecuteBlock(txs, types.Hash{}, height)

	proposer := types.AddressFromPublicKey(pub)
	if err := ex.CreditReward(proposer, executor.BlockReward); err != nil {
		return Result{}, fmt.Errorf("producer: credit block reward: %w", err)
	}

	stateRoot := working.RootHash()
	extrinsicsRoot := types.ExtrinsicsRoot(included)
	baseFee := executor.NextBaseFee(parentGasUsed, parentGasLimit, parentBaseFee)

	header := types.Header{
		ParentHash:     parentHash,
		StateRoot:      stateRoot,
		ExtrinsicsRoot: extrinsicsRoot,
		Slot:           height,
		Epoch:          epoch,
		ValidatorSetID: p.validatorSetID,
		GasUsed:        gasUsed,
		BaseFee:        baseFee,
	}
	if err := header.Validate(); err != nil {
		return Result{}, fmt.Errorf("producer: %w", err)
	}
	header.Sign(priv)

	block := types.Block{Header: header, Transactions: included}
	blockHash := block.Hash()
	for i := range receipts {
		receipts[i].BlockHash = blockHash
	}

	if p.emitter != nil {
		p.emitter.Emit(events.Event{
			Type:        events.EventBlockCommitted,
			BlockHeight: int64(height),
			Data:        map[string]any{"tx_count": len(included)},
		})
		for i, r := range receipts {
			data := map[string]any{
				"tx_hash": hex.EncodeToString(r.TxHash[:]),
				"sender":  hex.EncodeToString(included[i].Sender[:]),
			}
			if r.HasTo {
				data["recipient"] = hex.EncodeToString(r.To[:])
			}
			p.emitter.Emit(events.Event{Type: events.EventTxExecuted, BlockHeight: int64(height), Data: data})
		}
	}

	return Result{Block: block, Receipts: receipts}, nil
}
