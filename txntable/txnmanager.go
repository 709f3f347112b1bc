// Package txntable implements the sparse, sharded, pool-backed mapping
// txn_id → TxnManager (§3 TxnManager, §9).
package txntable

import (
	"sync"
	"sync/atomic"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/wire"
)

// TxnManager is the per-transaction mutable state described in §3: client
// identity, the batch hash once its pre-prepare arrives, prepare/commit
// counters, the prepared/committed/chkpt_ready flags, buffered
// out-of-order senders, and the retained pre-prepare for view-change
// replay (§4.11).
//
// It is exclusively owned by whichever thread holds its ready token,
// acquired via TryAcquire's CAS (§5 "Ordering-state mutations on a single
// TxnManager are serialized by a per-manager exclusive ready token").
type TxnManager struct {
	TxnID   uint64
	ready   uint32 // atomic CAS flag

	mu sync.Mutex

	ClientID  uint32
	BatchHash common.Hash
	PrePrepare *wire.BatchReq

	prepareSenders map[uint32]struct{}
	commitSenders  map[uint32]struct{}
	prepareSigs    map[uint32][]byte // §4.11: retained for VIEW_CHANGE prepare evidence
	commitSigs     map[uint32][]byte // §6 persisted state: retained for blockchainlog's commit list

	// Senders that arrived before the pre-prepare landed (§3 invariant:
	// "prepares that arrive before the pre-prepare are buffered").
	bufferedPrepares map[uint32]struct{}
	bufferedCommits  map[uint32]struct{}

	ChkptCount int32

	prepared   bool
	committed  bool
	chkptReady bool
}

// reset clears a TxnManager for reuse by the pool (§9 "Model each
// long-lived message as owned by the manager... drop on checkpoint GC").
func (m *TxnManager) reset(txnID uint64) {
	m.TxnID = txnID
	atomic.StoreUint32(&m.ready, 0)
	m.ClientID = 0
	m.BatchHash = common.Hash{}
	m.PrePrepare = nil
	m.prepareSenders = nil
	m.commitSenders = nil
	m.prepareSigs = nil
	m.commitSigs = nil
	m.bufferedPrepares = nil
	m.bufferedCommits = nil
	m.ChkptCount = 0
	m.prepared = false
	m.committed = false
	m.chkptReady = false
}

// TryAcquire attempts to take the exclusive ready token via CAS. A thread
// that fails returns the message to its work queue per §5's bounded-retry
// discipline; it must never busy-loop here.
func (m *TxnManager) TryAcquire() bool {
	return atomic.CompareAndSwapUint32(&m.ready, 0, 1)
}

// Release gives up the ready token.
func (m *TxnManager) Release() {
	atomic.StoreUint32(&m.ready, 0)
}

// SetPrePrepare stores the pre-prepare's hash and retained message, and
// returns the set of senders previously buffered in info_prepare so the
// caller can replay their prepare votes (§4.6 "Any prepare for the same
// (view, index) buffered earlier is replayed").
func (m *TxnManager) SetPrePrepare(hash common.Hash, bp *wire.BatchReq) (replayPrepares, replayCommits []uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchHash = hash
	m.PrePrepare = bp
	for s := range m.bufferedPrepares {
		replayPrepares = append(replayPrepares, s)
	}
	for s := range m.bufferedCommits {
		replayCommits = append(replayCommits, s)
	}
	m.bufferedPrepares = nil
	m.bufferedCommits = nil
	return replayPrepares, replayCommits
}

// HasPrePrepare reports whether a pre-prepare has landed, i.e. BatchHash is
// non-empty (§3 invariant).
func (m *TxnManager) HasPrePrepare() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.BatchHash.IsZero()
}

// BufferPrepare records sender in info_prepare when a Prepare arrives
// before the pre-prepare (§4.6).
func (m *TxnManager) BufferPrepare(sender uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bufferedPrepares == nil {
		m.bufferedPrepares = make(map[uint32]struct{})
	}
	m.bufferedPrepares[sender] = struct{}{}
}

// BufferCommit records sender in info_commit when a Commit arrives before
// the batch is prepared (§4.6).
func (m *TxnManager) BufferCommit(sender uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bufferedCommits == nil {
		m.bufferedCommits = make(map[uint32]struct{})
	}
	m.bufferedCommits[sender] = struct{}{}
}

// AddPrepare records a distinct sender's prepare vote, returning the
// updated count (duplicate senders are idempotent, §4.6 tie-break iv).
func (m *TxnManager) AddPrepare(sender uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prepareSenders == nil {
		m.prepareSenders = make(map[uint32]struct{})
	}
	m.prepareSenders[sender] = struct{}{}
	return len(m.prepareSenders)
}

// RecordPrepareSig retains sender's PREPARE signature alongside the vote
// counted by AddPrepare, so that a later VIEW_CHANGE can attach it as
// evidence that this batch reached prepared here (§4.11 Integrity).
func (m *TxnManager) RecordPrepareSig(sender uint32, sig []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prepareSigs == nil {
		m.prepareSigs = make(map[uint32][]byte)
	}
	m.prepareSigs[sender] = sig
}

// PrepareSigs returns a copy of the sender->signature map retained by
// RecordPrepareSig.
func (m *TxnManager) PrepareSigs() map[uint32][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint32][]byte, len(m.prepareSigs))
	for s, sig := range m.prepareSigs {
		out[s] = sig
	}
	return out
}

// AddCommit records a distinct sender's commit vote, returning the updated
// count.
func (m *TxnManager) AddCommit(sender uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitSenders == nil {
		m.commitSenders = make(map[uint32]struct{})
	}
	m.commitSenders[sender] = struct{}{}
	return len(m.commitSenders)
}

// RecordCommitSig retains sender's COMMIT signature alongside the vote
// counted by AddCommit, so blockchainlog can persist the full signature
// list for a committed batch (§6 "Persisted state").
func (m *TxnManager) RecordCommitSig(sender uint32, sig []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitSigs == nil {
		m.commitSigs = make(map[uint32][]byte)
	}
	m.commitSigs[sender] = sig
}

// CommitSigs returns a copy of the sender->signature map retained by
// RecordCommitSig.
func (m *TxnManager) CommitSigs() map[uint32][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint32][]byte, len(m.commitSigs))
	for s, sig := range m.commitSigs {
		out[s] = sig
	}
	return out
}

// SetPrepared/SetCommitted/Prepared/Committed manage the §3 state flags.
func (m *TxnManager) SetPrepared()    { m.mu.Lock(); m.prepared = true; m.mu.Unlock() }
func (m *TxnManager) SetCommitted()   { m.mu.Lock(); m.committed = true; m.mu.Unlock() }
func (m *TxnManager) Prepared() bool  { m.mu.Lock(); defer m.mu.Unlock(); return m.prepared }
func (m *TxnManager) Committed() bool { m.mu.Lock(); defer m.mu.Unlock(); return m.committed }

// SetChkptReady/ChkptReady manage the §3 chkpt_ready flag.
func (m *TxnManager) SetChkptReady() { m.mu.Lock(); m.chkptReady = true; m.mu.Unlock() }
func (m *TxnManager) ChkptReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chkptReady
}
