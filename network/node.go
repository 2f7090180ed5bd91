package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quorumchain/quorumchain/mempool"
	"github.com/quorumchain/quorumchain/types"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// Rate limit defaults (spec.md §6): per-peer token buckets, burst = 2x rate.
const (
	txRatePerSecond        = 10
	consensusRatePerSecond = 20
	blockReqRatePerSecond  = 5

	DefaultMaxPeers        = 50
	DefaultMaxConnsPerPeer = 5
)

type peerLimits struct {
	tx        *rate.Limiter
	consensus *rate.Limiter
	blockReq  *rate.Limiter
}

func newPeerLimits() *peerLimits {
	return &peerLimits{
		tx:        rate.NewLimiter(rate.Limit(txRatePerSecond), txRatePerSecond*2),
		consensus: rate.NewLimiter(rate.Limit(consensusRatePerSecond), consensusRatePerSecond*2),
		blockReq:  rate.NewLimiter(rate.Limit(blockReqRatePerSecond), blockReqRatePerSecond*2),
	}
}

func (pl *peerLimits) allow(typ MsgType) bool {
	switch typ {
	case MsgTx:
		return pl.tx.Allow()
	case MsgProposal, MsgVote:
		return pl.consensus.Allow()
	case MsgBlockRequest:
		return pl.blockReq.Allow()
	default:
		return true
	}
}

// Node listens for incoming peers and manages outgoing connections.
type Node struct {
	nodeID     string
	listenAddr string
	mempool    *mempool.Mempool
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int
	connsPerIP int

	mu       sync.RWMutex
	peers    map[string]*Peer
	limits   map[string]*peerLimits
	ipConns  map[string]int
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr.
func NewNode(nodeID, listenAddr string, pool *mempool.Mempool, tlsCfg *tls.Config) *Node {
	n := &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		mempool:    pool,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		connsPerIP: DefaultMaxConnsPerPeer,
		peers:      make(map[string]*Peer),
		limits:     make(map[string]*peerLimits),
		ipConns:    make(map[string]int),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
	n.Handle(MsgTx, n.handleTx)
	return n
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// DecayPeerScores pulls every connected peer's reputation score one step
// toward zero. The orchestrator calls this once per tick so a peer that has
// stopped misbehaving is not left banned by a score that never recovers.
func (n *Node) DecayPeerScores() {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, p := range n.peers {
		p.DecayScore()
	}
}

// AddPeer dials addr and registers the peer.
func (n *Node) AddPeer(id, addr string) error {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.limits[id] = newPeerLimits()
	n.mu.Unlock()
	go n.readLoop(peer)

	hello, err := json.Marshal(map[string]string{"node_id": n.nodeID})
	if err != nil {
		log.Printf("[network] marshal hello: %v", err)
		return nil
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		log.Printf("[network] send hello to %s: %v", id, err)
	}
	return nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// Broadcast sends msg to all connected peers.
func (n *Node) Broadcast(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[network] broadcast to %s: %v", p.ID, err)
		}
	}
}

// BroadcastTx serialises tx and sends it to all peers.
func (n *Node) BroadcastTx(tx *types.Transaction) {
	data, err := json.Marshal(tx)
	if err != nil {
		log.Printf("[network] marshal tx: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgTx, Payload: data})
}

// BroadcastBlock serialises block and sends it to all peers.
func (n *Node) BroadcastBlock(block *types.Block) {
	data, err := json.Marshal(block)
	if err != nil {
		log.Printf("[network] marshal block: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgBlock, Payload: data})
}

// BroadcastProposal serialises p and sends it to all peers.
func (n *Node) BroadcastProposal(p *types.Proposal) {
	data, err := json.Marshal(p)
	if err != nil {
		log.Printf("[network] marshal proposal: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgProposal, Payload: data})
}

// BroadcastVote serialises v and sends it to all peers.
func (n *Node) BroadcastVote(v *types.Vote) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[network] marshal vote: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgVote, Payload: data})
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[network] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}

		remote := conn.RemoteAddr().String()
		host, _, _ := net.SplitHostPort(remote)

		n.mu.Lock()
		if len(n.peers) >= n.maxPeers {
			n.mu.Unlock()
			log.Printf("[network] max peers (%d) reached, rejecting %s", n.maxPeers, remote)
			conn.Close()
			continue
		}
		if n.ipConns[host] >= n.connsPerIP {
			n.mu.Unlock()
			log.Printf("[network] per-IP connection limit reached for %s", host)
			conn.Close()
			continue
		}
		n.ipConns[host]++
		peer := NewPeer(remote, remote, conn)
		n.peers[peer.ID] = peer
		n.limits[peer.ID] = newPeerLimits()
		n.mu.Unlock()

		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	host, _, _ := net.SplitHostPort(peer.Addr)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		delete(n.limits, peer.ID)
		if n.ipConns[host] > 0 {
			n.ipConns[host]--
		}
		n.mu.Unlock()
	}()
	for {
		if peer.IsBanned() {
			return
		}
		msg, err := peer.Receive()
		if err != nil {
			return
		}

		n.mu.RLock()
		limits := n.limits[peer.ID]
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()

		if limits != nil && !limits.allow(msg.Type) {
			peer.AdjustScore(-10)
			continue
		}
		if ok {
			h(peer, msg)
		}
	}
}

func (n *Node) handleTx(peer *Peer, msg Message) {
	var tx types.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		log.Printf("[network] unmarshal tx: %v", err)
		peer.AdjustScore(-5)
		return
	}
	if err := n.mempool.Add(tx); err != nil {
		peer.AdjustScore(-1)
	}
}

// PersistedPeer is one entry in the on-disk peer list.
type PersistedPeer struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// SavePeerList writes the currently connected peers to path as JSON, for
// reconnection on the next startup (spec.md §6).
func (n *Node) SavePeerList(path string) error {
	n.mu.RLock()
	list := make([]PersistedPeer, 0, len(n.peers))
	for _, p := range n.peers {
		list = append(list, PersistedPeer{ID: p.ID, Addr: p.Addr})
	}
	n.mu.RUnlock()

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal peer list: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadPeerList reads a previously saved peer list and dials each entry,
// logging but not failing on individual connection errors.
func (n *Node) LoadPeerList(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read peer list: %w", err)
	}
	var list []PersistedPeer
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("unmarshal peer list: %w", err)
	}
	for _, p := range list {
		if err := n.AddPeer(p.ID, p.Addr); err != nil {
			log.Printf("[network] reconnect to %s (%s) failed: %v", p.ID, p.Addr, err)
		}
	}
	return nil
}
