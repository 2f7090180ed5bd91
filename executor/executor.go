package executor

import (
	"math/big"

	"github.com/quorumchain/quorumchain/crypto"
	"github.com/quorumchain/quorumchain/errs"
	"github.com/quorumchain/quorumchain/trie"
	"github.com/quorumchain/quorumchain/types"
)

// Result is the outcome of executing one transaction.
type Result struct {
	GasUsed uint64
	Status  types.ReceiptStatus
	Reason  string
}

// Executor runs transactions against a trie working copy. It is pure with
// respect to its inputs: no I/O, no clocks, no randomness (spec.md §4.4).
type Executor struct {
	state *trie.Trie
}

// New wraps a working-copy trie for one block's execution.
func New(state *trie.Trie) *Executor {
	return &Executor{state: state}
}

func (e *Executor) loadAccount(addr types.Address) (*types.Account, error) {
	raw, err := e.state.Get(addr[:])
	if err == trie.ErrNotFound {
		return nil, errs.New(errs.KindUnknownAccount, "executor: unknown account")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageIO, err)
	}
	return types.DecodeAccount(raw)
}

func (e *Executor) getOrCreateAccount(addr types.Address) (*types.Account, error) {
	raw, err := e.state.Get(addr[:])
	if err == trie.ErrNotFound {
		return types.NewAccount(), nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageIO, err)
	}
	return types.DecodeAccount(raw)
}

func (e *Executor) putAccount(addr types.Address, acct *types.Account) error {
	if err := e.state.Insert(addr[:], acct.Encode()); err != nil {
		return errs.Wrap(errs.KindStorageIO, err)
	}
	return nil
}

// ApplyTransaction executes one transaction per the ordered steps in
// spec.md §4.4. A failure does not mutate state (callers decide whether to
// skip the tx, per §4.8/§7 "transaction-execution failures do not abort the
// block").
func (e *Executor) ApplyTransaction(tx *types.Transaction) (Result, error) {
	meter := NewGasMeter(tx.GasLimit)
	baseGas := uint64(BaseTxGas) + uint64(len(tx.Payload))*PerPayloadByte
	if err := meter.Consume(baseGas); err != nil {
		return Result{}, err
	}

	if len(tx.Payload) < crypto.PublicKeySize {
		return Result{}, errs.New(errs.KindInvalidSignature, "executor: payload too short for public key")
	}
	pub := crypto.PublicKey(tx.Payload[:crypto.PublicKeySize])
	txHash := tx.Hash()
	if err := crypto.Verify(pub, txHash[:], tx.Signature[:]); err != nil {
		return Result{}, errs.Wrap(errs.KindInvalidSignature, err)
	}

	sender, err := e.loadAccount(tx.Sender)
	if err != nil {
		return Result{}, err
	}
	if sender.Nonce != tx.Nonce {
		return Result{}, errs.New(errs.KindNonceMismatch, "executor: nonce mismatch")
	}

	maxCost := new(big.Int).Mul(big.NewInt(int64(tx.GasLimit)), new(big.Int).SetUint64(tx.MaxFeePerGas))
	maxCost.Add(maxCost, new(big.Int).SetUint64(tx.Value))
	if sender.Balance.Cmp(maxCost) < 0 {
		return Result{}, errs.New(errs.KindInsufficientBalance, "executor: insufficient balance")
	}

	gasUsed := meter.Finalize()

	sender = sender.Clone()
	sender.Balance.Sub(sender.Balance, new(big.Int).SetUint64(tx.Value))
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), new(big.Int).SetUint64(tx.MaxFeePerGas))
	sender.Balance.Sub(sender.Balance, gasCost)
	sender.Nonce++

	if err := e.putAccount(tx.Sender, sender); err != nil {
		return Result{}, err
	}

	if tx.HasTo {
		recipient, err := e.getOrCreateAccount(tx.To)
		if err != nil {
			return Result{}, err
		}
		recipient = recipient.Clone()
		recipient.Balance.Add(recipient.Balance, new(big.Int).SetUint64(tx.Value))
		if err := e.putAccount(tx.To, recipient); err != nil {
			return Result{}, err
		}
	}

	return Result{GasUsed: gasUsed, Status: types.StatusSuccess}, nil
}

// ExecuteBlock runs every transaction in order, stopping before one that
// would exceed the block gas limit, and skipping (not aborting on) any
// transaction that fails execution. It returns the receipts and the
// transactions actually applied (in the same order), since the block
// producer needs the included set to build extrinsics_root — the two
// slices are always the same length, in the same order, skipped entries
// simply absent from both.
func (e *Executor) ExecuteBlock(txs []types.Transaction, blockHash types.Hash, height uint64) ([]types.Receipt, []types.Transaction, uint64) {
	var receipts []types.Receipt
	var included []types.Transaction
	var totalGas uint64

	for _, tx := range txs {
		baseGas := uint64(BaseTxGas) + uint64(len(tx.Payload))*PerPayloadByte
		if totalGas+baseGas > types.MaxBlockGasUsed {
			break
		}

		txCopy := tx
		result, err := e.ApplyTransaction(&txCopy)
		if err != nil {
			continue
		}
		if totalGas+result.GasUsed > types.MaxBlockGasUsed {
			continue
		}

		totalGas += result.GasUsed
		receipts = append(receipts, types.Receipt{
			TxHash:            tx.Hash(),
			BlockHash:         blockHash,
			BlockHeight:       height,
			Index:             uint32(len(receipts)),
			GasUsed:           result.GasUsed,
			CumulativeGasUsed: totalGas,
			Status:            result.Status,
			From:              tx.Sender,
			To:                tx.To,
			HasTo:             tx.HasTo,
		})
		included = append(included, tx)
	}

	return receipts, included, totalGas
}

// BlockReward is the fixed per-block issuance credited to the proposer
// (spec.md §9 "the core consumes a reward function only"; spec.md §9 open
// question 4 — reward is a post-execution credit applied by the
// orchestrator, never mixed into transaction execution).
const BlockReward = 2_000_000_000_000

// CreditReward adds amount to proposer's balance. Called by the orchestrator
// after ExecuteBlock returns and before the resulting root is read, so the
// reward is baked into state_root exactly like any other state mutation —
// never inside ApplyTransaction/ExecuteBlock itself.
func (e *Executor) CreditReward(proposer types.Address, amount uint64) error {
	acct, err := e.getOrCreateAccount(proposer)
	if err != nil {
		return err
	}
	acct = acct.Clone()
	acct.Balance.Add(acct.Balance, new(big.Int).SetUint64(amount))
	return e.putAccount(proposer, acct)
}
