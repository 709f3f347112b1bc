// Package checkpoint implements quorum checkpoint collection, watermark
// advancement, and the associated TxnManager garbage collection (§4.10).
package checkpoint

import (
	"sort"
	"sync"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

// Quorum returns Q = 2f+1 for an N = 3f+1 replica set (§3), identical to
// every other component's.
func Quorum(n uint32) uint32 {
	f := (n - 1) / 3
	return 2*f + 1
}

// Config fixes the replica set size and the batch size B used to derive how
// far behind low_watermark a TxnManager must be before it is released
// (§4.10: "all TxnManagers with ids < low_watermark - B are returned to
// their pool").
type Config struct {
	N          uint32
	WindowSize uint64 // B
}

// Manager collects CHECKPOINT votes per transaction id and advances
// low_watermark once a quorum of distinct replicas agree (§4.10).
type Manager struct {
	cfg    Config
	quorum uint32
	table  *txntable.Table
	log    log.Logger

	mu           sync.Mutex
	sigs         map[uint64]map[uint32][]byte // txn_id -> sender -> signature
	stable       map[uint64]struct{}
	lowWatermark uint64
}

// New constructs a Manager around table, the shared TxnManager table whose
// entries it releases on watermark advance.
func New(cfg Config, table *txntable.Table, l log.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		quorum: Quorum(cfg.N),
		table:  table,
		log:    l,
		sigs:   make(map[uint64]map[uint32][]byte),
		stable: make(map[uint64]struct{}),
	}
}

// LowWatermark returns the id of the last transaction covered by the
// latest stable checkpoint.
func (m *Manager) LowWatermark() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lowWatermark
}

// OnCheckpoint records sender's vote for chkpt.TxnID (§4.10 "a checkpoint
// becomes stable when Q matching checkpoints for the same id from distinct
// replicas have been collected"). Once the quorum is first reached,
// low_watermark advances to chkpt.TxnID, every TxnManager below
// low_watermark-B is released back to its pool (§3, §4.10), and a
// CommitCertificate assembled from the collected signatures is returned
// for callers that relay it to remote shards (§13 supplemented feature).
// justStable is false on every call before or after the threshold is first
// crossed for this id.
func (m *Manager) OnCheckpoint(env wire.Envelope, chkpt wire.Checkpoint) (justStable bool, cert CommitCertificate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if chkpt.TxnID <= m.lowWatermark {
		return false, CommitCertificate{}
	}
	if _, done := m.stable[chkpt.TxnID]; done {
		return false, CommitCertificate{}
	}
	votes, ok := m.sigs[chkpt.TxnID]
	if !ok {
		votes = make(map[uint32][]byte)
		m.sigs[chkpt.TxnID] = votes
	}
	votes[chkpt.Sender] = env.Sig

	if uint32(len(votes)) < m.quorum {
		return false, CommitCertificate{}
	}
	m.stable[chkpt.TxnID] = struct{}{}
	m.lowWatermark = chkpt.TxnID
	delete(m.sigs, chkpt.TxnID)

	if m.cfg.WindowSize > 0 && chkpt.TxnID > m.cfg.WindowSize {
		m.table.ReleaseBelow(chkpt.TxnID - m.cfg.WindowSize)
	}
	for id := range m.stable {
		if id < m.lowWatermark {
			delete(m.stable, id)
		}
	}

	hash := common.Hash{}
	if rep, ok := m.table.Get(chkpt.TxnID); ok {
		hash = rep.BatchHash
	}
	return true, buildCommitCertificate(chkpt.TxnID, hash, votes)
}

// CommitCertificate is a signed quorum certificate over a stable
// checkpoint's batch hash that a remote shard can verify without replaying
// the full protocol (§13 "geo-replicated commit certificate", the minimal
// piece of ResilientDB's geo-PBFT variant spec.md's Non-goals carve back
// in).
type CommitCertificate struct {
	TxnID      uint64
	Hash       common.Hash
	Signers    []uint32
	Signatures [][]byte
}

func buildCommitCertificate(txnID uint64, hash common.Hash, sigs map[uint32][]byte) CommitCertificate {
	signers := make([]uint32, 0, len(sigs))
	for s := range sigs {
		signers = append(signers, s)
	}
	sort.Slice(signers, func(i, j int) bool { return signers[i] < signers[j] })
	out := make([][]byte, len(signers))
	for i, s := range signers {
		out[i] = sigs[s]
	}
	return CommitCertificate{TxnID: txnID, Hash: hash, Signers: signers, Signatures: out}
}
