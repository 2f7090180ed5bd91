package network

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/quorumchain/quorumchain/errs"
	"github.com/quorumchain/quorumchain/storage"
	"github.com/quorumchain/quorumchain/types"
)

// BlockRequest asks a peer for blocks starting at FromHeight, the
// request/response half of the sync protocol (spec.md §6 "/blockchain/sync").
type BlockRequest struct {
	FromHeight uint64 `json:"from_height"`
	Limit      int    `json:"limit"`
}

// BlockResponse carries a batch of blocks, each with its header signature
// and extrinsics root already embedded for the requester to verify.
type BlockResponse struct {
	Blocks []types.Block `json:"blocks"`
}

const maxBlocksPerResponse = 200

// BlockImporter validates and applies a synced block; the node orchestrator
// (C11) implements this, since importing a block touches consensus,
// execution and storage together.
type BlockImporter interface {
	ImportBlock(block types.Block) error
}

// Syncer answers block-range requests from the local store and feeds
// received blocks to an importer.
type Syncer struct {
	node     *Node
	blocks   *storage.BlockStore
	importer BlockImporter
}

// NewSyncer wires a Syncer to node's message handlers.
func NewSyncer(node *Node, blocks *storage.BlockStore, importer BlockImporter) *Syncer {
	s := &Syncer{node: node, blocks: blocks, importer: importer}
	node.Handle(MsgBlockRequest, s.handleBlockRequest)
	node.Handle(MsgBlockResponse, s.handleBlockResponse)
	node.Handle(MsgBlock, s.handleBlock)
	return s
}

// RequestBlocks asks peer for up to 200 blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight uint64) error {
	req, err := json.Marshal(BlockRequest{FromHeight: fromHeight, Limit: maxBlocksPerResponse})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgBlockRequest, Payload: req})
}

func (s *Syncer) handleBlockRequest(peer *Peer, msg Message) {
	var req BlockRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		peer.AdjustScore(-5)
		return
	}
	if req.Limit <= 0 || req.Limit > maxBlocksPerResponse {
		req.Limit = maxBlocksPerResponse
	}

	blocks := make([]types.Block, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+uint64(req.Limit); h++ {
		b, err := s.blocks.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, *b)
	}

	data, err := json.Marshal(BlockResponse{Blocks: blocks})
	if err != nil {
		return
	}
	_ = peer.Send(Message{Type: MsgBlockResponse, Payload: data})
}

// handleBlock processes a gossiped full block (MsgBlock). If its parent is
// not in the local block store, the block is an orphan: request the
// missing range starting right after the local tip rather than importing
// it out of order (spec.md §4.9 item 4, scenario S7).
func (s *Syncer) handleBlock(peer *Peer, msg Message) {
	var block types.Block
	if err := json.Unmarshal(msg.Payload, &block); err != nil {
		peer.AdjustScore(-5)
		return
	}

	if _, err := s.blocks.GetBlock(block.Header.ParentHash); err != nil {
		local, _ := s.blocks.LatestHeight()
		orphanErr := errs.New(errs.KindUnknownParent,
			fmt.Sprintf("block at slot %d: parent unknown", block.Header.Slot))
		log.Printf("[sync] %v; requesting blocks from %d", orphanErr, local+1)
		if reqErr := s.RequestBlocks(peer, local+1); reqErr != nil {
			log.Printf("[sync] request blocks after orphan at slot %d: %v", block.Header.Slot, reqErr)
		}
		return
	}

	if err := s.importer.ImportBlock(block); err != nil {
		log.Printf("[sync] import gossiped block at slot %d failed: %v", block.Header.Slot, err)
		peer.AdjustScore(-2)
	}
}

func (s *Syncer) handleBlockResponse(peer *Peer, msg Message) {
	var resp BlockResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		peer.AdjustScore(-5)
		return
	}
	for _, b := range resp.Blocks {
		if err := s.importer.ImportBlock(b); err != nil {
			log.Printf("[sync] import block at slot %d failed: %v", b.Header.Slot, err)
			peer.AdjustScore(-2)
			continue
		}
	}
}
