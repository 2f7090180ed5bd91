package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/quorumchain/quorumchain/indexer"
	"github.com/quorumchain/quorumchain/mempool"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
)

// Handler holds all dependencies needed to serve RPC methods. It is a
// collaborator per spec.md §6: a read-mostly view over the core stores plus
// the single write path (submitting a transaction to the mempool).
type Handler struct {
	blocks   *storage.BlockStore
	receipts *storage.ReceiptStore
	state    *storage.StateStore
	pool     *mempool.Mempool
	indexer  *indexer.Indexer
	chainID  uint64 // expected chain_id; rejects cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(blocks *storage.BlockStore, receipts *storage.ReceiptStore, state *storage.StateStore, pool *mempool.Mempool, idx *indexer.Indexer, chainID uint64) *Handler {
	return &Handler{blocks: blocks, receipts: receipts, state: state, pool: pool, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		height, ok := h.blocks.LatestHeight()
		if !ok {
			return okResponse(req.ID, 0)
		}
		return okResponse(req.ID, height)

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getReceipt":
		return h.getReceipt(req)

	case "getTxsByAddress":
		return h.getTxsByAddress(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.pool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string  `json:"hash"`
		Height *uint64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *types.Block
	var err error
	switch {
	case params.Hash != "":
		raw, decErr := hex.DecodeString(params.Hash)
		if decErr != nil || len(raw) != types.HashSize {
			return errResponse(req.ID, CodeInvalidParams, "hash must be 64-char hex")
		}
		var h32 types.Hash
		copy(h32[:], raw)
		block, err = h.blocks.GetBlock(h32)
	case params.Height != nil:
		block, err = h.blocks.GetBlockByHeight(*params.Height)
	default:
		height, ok := h.blocks.LatestHeight()
		if !ok {
			return errResponse(req.ID, CodeInternalError, "no block found")
		}
		block, err = h.blocks.GetBlockByHeight(height)
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	acc, err := h.state.GetAccount(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance.String(), "nonce": acc.Nonce})
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	raw, err := hex.DecodeString(params.TxHash)
	if err != nil || len(raw) != types.HashSize {
		return errResponse(req.ID, CodeInvalidParams, "tx_hash must be 64-char hex")
	}
	var txHash types.Hash
	copy(txHash[:], raw)
	receipt, err := h.receipts.GetReceipt(txHash)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, receipt)
}

func (h *Handler) getTxsByAddress(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	ids, err := h.indexer.GetTxsByAddress(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) sendTx(req Request) Response {
	var tx types.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.HasChainID && tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %d want %d", tx.ChainID, h.chainID))
	}
	if err := tx.Validate(); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.pool.Add(tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	txHash := tx.Hash()
	return okResponse(req.ID, map[string]string{"tx_hash": hex.EncodeToString(txHash[:])})
}

func parseAddress(s string) (types.Address, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != types.AddressSize {
		return types.Address{}, fmt.Errorf("address must be %d-byte hex", types.AddressSize)
	}
	var addr types.Address
	copy(addr[:], raw)
	return addr, nil
}
