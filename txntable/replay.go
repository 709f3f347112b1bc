package txntable

import (
	lru "github.com/hashicorp/golang-lru"
)

// ReplayWindow remembers the most recently garbage-collected txn_ids
// (§4.10, §13) so a message that arrives late — after its TxnManager has
// already been returned to the pool — can be recognized as "known,
// already-GC'd" and dropped cheaply (§7(b) out-of-window) instead of
// silently allocating a fresh, wrong-generation manager for an id below
// low_watermark.
type ReplayWindow struct {
	cache *lru.Cache
}

// NewReplayWindow builds a ReplayWindow holding up to size recently-GC'd
// ids.
func NewReplayWindow(size int) *ReplayWindow {
	if size < 1 {
		size = 1
	}
	c, _ := lru.New(size)
	return &ReplayWindow{cache: c}
}

// Mark records txnID as garbage-collected.
func (r *ReplayWindow) Mark(txnID uint64) {
	r.cache.Add(txnID, struct{}{})
}

// WasCollected reports whether txnID was recently garbage-collected.
func (r *ReplayWindow) WasCollected(txnID uint64) bool {
	return r.cache.Contains(txnID)
}
