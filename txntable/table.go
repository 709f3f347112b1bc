package txntable

import (
	"sync"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/log"
)

// Table is the sparse mapping txn_id → TxnManager, sharded by txn_id mod T
// (§3 TxnManager, §9). Each shard owns its own mutex, ShrinkingMap, and
// TxnManager Pool so contention on one shard never blocks another.
type Table struct {
	shards []*shard
	replay *ReplayWindow
}

type shard struct {
	mu   sync.Mutex
	m    *common.ShrinkingMap[uint64, *TxnManager]
	pool *Pool
}

// Config tunes a Table (§6 MAX_TXN_IN_FLIGHT-adjacent sizing knobs).
type Config struct {
	// Shards is T, the number of shards (§3: "sharded by txn_id mod T").
	Shards int
	// PoolCapacity bounds each shard's free-list size (§9, §13 pool
	// exhaustion fallback).
	PoolCapacity int
	// ReplayWindowSize bounds the recently-GC'd-id cache (§4.10, §13).
	ReplayWindowSize int
	// ShrinkAfter triggers the per-shard map's backing-array reallocation
	// after this many deletions (mirrors common.ShrinkingMap's own
	// threshold semantics).
	ShrinkAfter int
}

// DefaultConfig matches the spec's typical batch size and a modest shard
// count suited to the fixed worker-pool thread count (§5).
func DefaultConfig() Config {
	return Config{
		Shards:           16,
		PoolCapacity:     4096,
		ReplayWindowSize: 8192,
		ShrinkAfter:      1024,
	}
}

// NewTable constructs a Table.
func NewTable(cfg Config, l log.Logger) *Table {
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	t := &Table{
		shards: make([]*shard, cfg.Shards),
		replay: NewReplayWindow(cfg.ReplayWindowSize),
	}
	for i := range t.shards {
		t.shards[i] = &shard{
			m:    common.NewShrinkingMap[uint64, *TxnManager](cfg.ShrinkAfter),
			pool: NewPool(cfg.PoolCapacity, l),
		}
	}
	return t
}

func (t *Table) shardFor(txnID uint64) *shard {
	return t.shards[txnID%uint64(len(t.shards))]
}

// GetOrCreate returns the TxnManager for txnID, lazily allocating one from
// the owning shard's pool on first reference (§3 TxnManager lifecycle:
// "allocated lazily on first reference to its txn_id").
func (t *Table) GetOrCreate(txnID uint64) *TxnManager {
	s := t.shardFor(txnID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.m.Get(txnID); ok {
		return m
	}
	m := s.pool.Get(txnID)
	s.m.Set(txnID, m)
	return m
}

// Get returns the TxnManager for txnID without creating one.
func (t *Table) Get(txnID uint64) (*TxnManager, bool) {
	s := t.shardFor(txnID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Get(txnID)
}

// WasGarbageCollected reports whether txnID was released by a prior
// checkpoint GC pass (§4.10), letting a caller distinguish "never seen"
// from "already GC'd and correctly dropped" without resurrecting state.
func (t *Table) WasGarbageCollected(txnID uint64) bool {
	return t.replay.WasCollected(txnID)
}

// Release returns txnID's manager to its shard's pool, marks it in the
// replay window, and removes it from the live map. Called only once the
// enclosing stable checkpoint has advanced past txnID (§3 TxnManager
// lifecycle, §4.10).
func (t *Table) Release(txnID uint64) {
	s := t.shardFor(txnID)
	s.mu.Lock()
	m, ok := s.m.Get(txnID)
	if ok {
		s.m.Delete(txnID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	t.replay.Mark(txnID)
	s.pool.Put(m)
}

// ReleaseBelow releases every live manager with id strictly less than
// watermark, the bulk operation the checkpoint thread performs on stable
// checkpoint advance (§4.10: "TxnManagers with ids < low_watermark − B are
// returned to their pool").
func (t *Table) ReleaseBelow(watermark uint64) {
	for _, s := range t.shards {
		s.mu.Lock()
		var stale []uint64
		s.m.ForEach(func(id uint64, _ *TxnManager) bool {
			if id < watermark {
				stale = append(stale, id)
			}
			return true
		})
		var toPool []*TxnManager
		for _, id := range stale {
			if m, ok := s.m.Get(id); ok {
				toPool = append(toPool, m)
				s.m.Delete(id)
			}
		}
		s.mu.Unlock()
		for i, id := range stale {
			t.replay.Mark(id)
			s.pool.Put(toPool[i])
		}
	}
}
