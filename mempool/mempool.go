// Package mempool holds validated pending transactions with fee-priority
// ordering and capacity eviction (spec.md §4.3), grounded on the reference
// pool's add/get/remove contract but replacing its FIFO queue with a
// structure that keeps priority order and per-sender counts atomic across
// add, take and remove.
package mempool

import (
	"bytes"
	"sort"
	"sync"

	"github.com/quorumchain/quorumchain/errs"
	"github.com/quorumchain/quorumchain/types"
)

// Config bounds mempool admission.
type Config struct {
	MaxCapacity  int
	MaxPerSender int
	MinFeePerGas uint64
}

// DefaultConfig mirrors the reference pool's defaults.
func DefaultConfig() Config {
	return Config{
		MaxCapacity:  10000,
		MaxPerSender: 100,
		MinFeePerGas: 1_000_000_000,
	}
}

// Mempool is a validated pending-transaction pool. add, take and remove are
// each atomic with respect to the others, enforced by one coarse lock over
// three coordinated structures (spec.md §4.3).
type Mempool struct {
	mu      sync.Mutex
	cfg     Config
	pool    []types.Transaction          // unordered backing slice
	seen    map[types.Signature]int      // signature -> index into pool
	perSend map[types.Address]int        // sender -> count
}

// New creates an empty Mempool.
func New(cfg Config) *Mempool {
	return &Mempool{
		cfg:     cfg,
		seen:    make(map[types.Signature]int),
		perSend: make(map[types.Address]int),
	}
}

var zeroSignature types.Signature

// Add validates and inserts tx, evicting the lowest-priority-fee entry if
// the pool is at capacity (spec.md §4.3).
func (m *Mempool) Add(tx types.Transaction) error {
	if tx.Signature == zeroSignature {
		return errs.New(errs.KindMalformedMessage, "mempool: empty signature")
	}
	if tx.MaxPriorityFeePerGas < m.cfg.MinFeePerGas {
		return errs.New(errs.KindFeeBelowMinimum, "mempool: priority fee below minimum")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.seen[tx.Signature]; dup {
		return errs.New(errs.KindDuplicate, "mempool: duplicate transaction")
	}
	if m.perSend[tx.Sender] >= m.cfg.MaxPerSender {
		return errs.New(errs.KindSenderLimitReached, "mempool: sender limit reached")
	}

	if len(m.pool) >= m.cfg.MaxCapacity {
		admitted, err := m.evictForLocked(tx)
		if err != nil {
			return err
		}
		if !admitted {
			// tx itself is the lowest-fee candidate among the full pool plus
			// tx: it is the one evicted, so the pool is left unchanged.
			return nil
		}
	}

	m.pool = append(m.pool, tx)
	m.seen[tx.Signature] = len(m.pool) - 1
	m.perSend[tx.Sender]++
	return nil
}

// evictForLocked makes room for tx in a full pool by treating tx itself as
// an eviction candidate alongside every transaction already present:
// whichever has the lowest max_priority_fee_per_gas is evicted (spec.md
// §4.3/§8 invariant 6 — the evicted fee must be <= every remaining fee,
// including the incoming one). Ties break on pool position (stable, so
// repeat runs against the same contents are deterministic). Returns
// whether tx was admitted (false means tx itself was the lowest and was
// dropped instead of displacing an existing entry).
func (m *Mempool) evictForLocked(tx types.Transaction) (bool, error) {
	if len(m.pool) == 0 {
		return false, errs.New(errs.KindMempoolFull, "mempool: full and nothing to evict")
	}
	worst := 0
	for i := 1; i < len(m.pool); i++ {
		if m.pool[i].MaxPriorityFeePerGas < m.pool[worst].MaxPriorityFeePerGas {
			worst = i
		}
	}
	if tx.MaxPriorityFeePerGas < m.pool[worst].MaxPriorityFeePerGas {
		return false, nil
	}
	m.removeAtLocked(worst)
	return true, nil
}

// removeAtLocked deletes pool[idx] via swap-remove-with-index-maintenance:
// it moves the last element into idx's slot and fixes up seen[] for the
// moved element, keeping every index in seen valid.
func (m *Mempool) removeAtLocked(idx int) {
	removed := m.pool[idx]
	delete(m.seen, removed.Signature)
	if c := m.perSend[removed.Sender]; c <= 1 {
		delete(m.perSend, removed.Sender)
	} else {
		m.perSend[removed.Sender] = c - 1
	}

	last := len(m.pool) - 1
	if idx != last {
		m.pool[idx] = m.pool[last]
		m.seen[m.pool[idx].Signature] = idx
	}
	m.pool = m.pool[:last]
}

// Take returns up to n transactions sorted by max_priority_fee_per_gas
// descending, ties broken by ascending signature bytes, without removing
// them (spec.md §4.3).
func (m *Mempool) Take(n int) []types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Transaction, len(m.pool))
	copy(out, m.pool)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MaxPriorityFeePerGas != out[j].MaxPriorityFeePerGas {
			return out[i].MaxPriorityFeePerGas > out[j].MaxPriorityFeePerGas
		}
		return bytes.Compare(out[i].Signature[:], out[j].Signature[:]) < 0
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// Remove deletes txs by signature, updating per-sender counts and the
// duplicate set atomically (spec.md §4.3).
func (m *Mempool) Remove(txs []types.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		if idx, ok := m.seen[tx.Signature]; ok {
			m.removeAtLocked(idx)
		}
	}
}

// Size returns the current pool length.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pool)
}
