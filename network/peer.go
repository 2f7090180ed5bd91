// Package network handles peer-to-peer communication over TCP using
// length-prefixed JSON messages: gossip for transactions/blocks/consensus
// messages and a request/response protocol for block sync (spec.md §6).
package network

import (
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// MsgType labels a network message.
type MsgType string

const (
	MsgHello         MsgType = "hello"
	MsgTx            MsgType = "tx"
	MsgBlock         MsgType = "block"
	MsgProposal      MsgType = "proposal"
	MsgVote          MsgType = "vote"
	MsgBlockRequest  MsgType = "block_request"
	MsgBlockResponse MsgType = "block_response"
)

// Message is the envelope for all P2P communication.
type Message struct {
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ReputationMax/Min bound a peer's running score, ReputationBanThreshold
// and BanDuration set when and for how long it is banned (spec.md §6: score in [-100, 100], <= -50 bans for
// one hour).
const (
	ReputationMax          = 100
	ReputationMin          = -100
	ReputationBanThreshold = -50
	BanDuration            = time.Hour
)

// Peer represents a connected remote node.
type Peer struct {
	ID   string
	Addr string

	conn   net.Conn
	mu     sync.Mutex
	closed bool

	score   int
	bannedAt time.Time
	isBanned bool
}

// NewPeer wraps an established TCP connection as a Peer.
func NewPeer(id, addr string, conn net.Conn) *Peer {
	return &Peer{ID: id, Addr: addr, conn: conn}
}

// Connect dials the remote address and returns a connected Peer.
// If tlsCfg is non-nil the connection is established over TLS.
func Connect(id, addr string, tlsCfg *tls.Config) (*Peer, error) {
	var conn net.Conn
	var err error
	if tlsCfg != nil {
		conn, err = tls.Dial("tcp", addr, tlsCfg)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewPeer(id, addr, conn), nil
}

// AdjustScore moves the peer's reputation score by delta, clamped to
// [ReputationMin, ReputationMax], and bans the peer once the score falls to
// or below ReputationBanThreshold.
func (p *Peer) AdjustScore(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.score += delta
	if p.score > ReputationMax {
		p.score = ReputationMax
	}
	if p.score < ReputationMin {
		p.score = ReputationMin
	}
	if p.score <= ReputationBanThreshold && !p.isBanned {
		p.isBanned = true
		p.bannedAt = time.Now()
	}
}

// IsBanned reports whether the peer is currently serving a ban, clearing an
// expired ban as a side effect.
func (p *Peer) IsBanned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isBanned {
		return false
	}
	if time.Since(p.bannedAt) > BanDuration {
		p.isBanned = false
		p.score = 0
		return false
	}
	return true
}

// Score returns the current reputation score.
func (p *Peer) Score() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score
}

// DecayScore pulls the score one step toward zero. Supplements the static
// increment/decrement reputation rule with a slow pull back to neutral, so a
// peer that stops misbehaving is not banned forever by a stale low score.
func (p *Peer) DecayScore() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.score > 0:
		p.score--
	case p.score < 0:
		p.score++
	}
}

// Send writes a length-prefixed JSON message to the peer.
func (p *Peer) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %s closed", p.ID)
	}
	// 4-byte big-endian length prefix
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := p.conn.Write(header[:]); err != nil {
		return err
	}
	_, err = p.conn.Write(data)
	return err
}

// Receive reads the next length-prefixed JSON message.
// A 30-second read deadline prevents a stalled peer from blocking indefinitely.
func (p *Peer) Receive() (Message, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var header [4]byte
	if _, err := io.ReadFull(p.conn, header[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > 32*1024*1024 { // 32 MB safety limit
		return Message{}, fmt.Errorf("message too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(p.conn, buf); err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(buf, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Close terminates the peer connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}
