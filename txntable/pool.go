package txntable

import (
	"github.com/bftcore/bftcore/internal/bftmetrics"
	"github.com/bftcore/bftcore/log"
)

// Pool is a fixed-capacity free list of *TxnManager values. Allocating a
// TxnManager on every new txn_id and discarding it at GC would otherwise
// churn the allocator on the hottest path in the replica (§5); Pool instead
// recycles manager structs released by checkpoint GC (§4.10).
//
// When the free list is empty, Get falls back to a heap allocation rather
// than blocking the caller — §7(f)'s "Pool exhaustion: falls back to heap
// allocation; logged as a warning" and §13's restored pool-exhaustion
// fallback feature.
type Pool struct {
	free      chan *TxnManager
	overflow  metrics.Counter
	log       log.Logger
}

// NewPool constructs a Pool with room for capacity free TxnManagers.
func NewPool(capacity int, l log.Logger) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		free:     make(chan *TxnManager, capacity),
		overflow: metrics.GetOrRegisterCounter("txntable/pool_overflow", nil),
		log:      l,
	}
}

// Get returns a manager for txnID, reused from the free list when
// available or heap-allocated otherwise.
func (p *Pool) Get(txnID uint64) *TxnManager {
	select {
	case m := <-p.free:
		m.reset(txnID)
		return m
	default:
		p.overflow.Inc(1)
		if p.log != nil {
			p.log.Warn("txntable pool exhausted, falling back to heap allocation", "txn_id", txnID)
		}
		m := &TxnManager{}
		m.reset(txnID)
		return m
	}
}

// Put returns m to the free list, dropping it (for the GC to reclaim) if
// the list is already full.
func (p *Pool) Put(m *TxnManager) {
	select {
	case p.free <- m:
	default:
	}
}
