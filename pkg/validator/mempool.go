package validator

import (
	"sync"

	"github.com/fermi-network/fermi/pkg/types"
)

// Mempool is a FIFO queue of signed transactions that have already passed
// HandlePreConsensusTransaction and are waiting to be proposed into a
// block. It is the typed equivalent of the teacher's raw-byte
// core.Mempool; this port has no HL-style order/cancel/non-order
// buckets, so a single FIFO queue is the whole story.
type Mempool struct {
	mu  sync.Mutex
	txs []types.SignedTransaction
}

func NewMempool() *Mempool {
	return &Mempool{}
}

// Push enqueues a signed transaction for the next proposal.
func (m *Mempool) Push(stx types.SignedTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, stx)
}

// SelectForProposal dequeues up to maxBytes worth of transactions, FIFO,
// mirroring core.Mempool.SelectForProposal's draining semantics. A
// maxBytes <= 0 means unbounded.
func (m *Mempool) SelectForProposal(maxBytes int64) []types.SignedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.SignedTransaction
	var used int64
	i := 0
	for ; i < len(m.txs); i++ {
		n := int64(len(m.txs[i].RequestBytes)) + 64
		if maxBytes > 0 && used+n > maxBytes {
			break
		}
		out = append(out, m.txs[i])
		used += n
	}
	m.txs = m.txs[i:]
	return out
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}
