// Package classical implements the classical three-phase ordering state
// machine (§4.6): pre-prepare/prepare/commit, keyed by the representative
// TxnManager for each batch's (view, index) position.
package classical

import (
	"fmt"
	"sync"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/queue"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

// Sender is the narrow outbound dependency, satisfied by transport.Transport.
type Sender interface {
	Send(dst uint32, msg wire.Envelope, force bool) error
}

// Config fixes the replica set size and this replica's identity; N and f
// determine the quorum size Q = 2f+1 (§3).
type Config struct {
	SelfID       uint32
	Peers        []uint32 // every other replica id
	N            uint32
	CryptoMethod wire.CryptoMethod
}

// Quorum returns Q = 2f+1 for an N = 3f+1 replica set.
func Quorum(n uint32) uint32 {
	f := (n - 1) / 3
	return 2*f + 1
}

// Machine runs the classical ordering state machine for one replica.
type Machine struct {
	cfg     Config
	quorum  uint32
	table   *txntable.Table
	verify  bftcrypto.Verifier
	sign    bftcrypto.Signer
	sender  Sender
	queues  *queue.WorkQueues
	log     log.Logger

	mu            sync.Mutex
	view          uint64
	lowWatermark  uint64
	highWatermark uint64
	// committedLocal remembers positions already driven to committed-local
	// so a duplicate BATCH_REQ for the same index is dropped, not re-run
	// (§4.6 tie-break iii).
	committedLocal map[uint64]struct{}

	// onCommitLocal, if set, fires once per index immediately after this
	// replica drives it to committed-local, for every replica (not only the
	// leader's own-batch fast path) — the hook an optional audit log
	// attaches through rather than this package importing one directly.
	onCommitLocal func(rep *txntable.TxnManager, view, index uint64, hash common.Hash)
}

// SetCommitHook installs fn to be called synchronously from commitLocal,
// after SetCommitted but before the EXECUTE is queued. fn must not block.
func (m *Machine) SetCommitHook(fn func(rep *txntable.TxnManager, view, index uint64, hash common.Hash)) {
	m.mu.Lock()
	m.onCommitLocal = fn
	m.mu.Unlock()
}

// New constructs a Machine. windowSize is the watermark span W (§3: high =
// low + W).
func New(cfg Config, windowSize uint64, table *txntable.Table, verify bftcrypto.Verifier, sign bftcrypto.Signer, sender Sender, queues *queue.WorkQueues, l log.Logger) *Machine {
	return &Machine{
		cfg:            cfg,
		quorum:         Quorum(cfg.N),
		table:          table,
		verify:         verify,
		sign:           sign,
		sender:         sender,
		queues:         queues,
		log:            l,
		highWatermark:  windowSize,
		committedLocal: make(map[uint64]struct{}),
	}
}

// SetView installs the current view, called on NEW_VIEW installation
// (§4.11).
func (m *Machine) SetView(v uint64) {
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
}

// AdvanceWatermark sets low_watermark and its corresponding high_watermark
// once a checkpoint stabilizes (§4.10).
func (m *Machine) AdvanceWatermark(low, window uint64) {
	m.mu.Lock()
	m.lowWatermark = low
	m.highWatermark = low + window
	for id := range m.committedLocal {
		if id < low {
			delete(m.committedLocal, id)
		}
	}
	m.mu.Unlock()
}

func (m *Machine) inWindow(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return id >= m.lowWatermark && id <= m.highWatermark
}

// OnBatchReq handles a non-leader replica's receipt of a leader's pre-prepare
// (§4.6): verify signature+hash, check view and watermark window, store the
// pre-prepare, replay any buffered prepares/commits, and broadcast a signed
// PREPARE.
func (m *Machine) OnBatchReq(env wire.Envelope, bp wire.BatchReq) error {
	m.mu.Lock()
	curView := m.view
	m.mu.Unlock()

	if bp.View != curView {
		return nil // (i) view mismatch: dropped
	}
	if !m.inWindow(bp.EndIndex) {
		return nil // (ii) outside [low, high]: dropped
	}

	m.mu.Lock()
	_, already := m.committedLocal[bp.EndIndex]
	m.mu.Unlock()
	if already {
		if m.log != nil {
			m.log.Warn("classical: duplicate BATCH_REQ for committed position", "index", bp.EndIndex)
		}
		return nil // (iii) duplicate id at an already committed-local position
	}

	if err := m.verify.Verify(bp.CanonicalString(env.Header), env.Sig, env.Key, env.ReturnNodeID, m.cfg.SelfID); err != nil {
		if m.log != nil {
			m.log.Warn("classical: BATCH_REQ signature verification failed", "err", err)
		}
		return nil
	}
	computedHash := wire.BatchHash(requestCanonicals(bp.Requests))
	if computedHash != bp.Hash {
		if m.log != nil {
			m.log.Warn("classical: BATCH_REQ hash mismatch", "index", bp.EndIndex)
		}
		return nil
	}

	rep := m.table.GetOrCreate(bp.EndIndex)
	replayPrepares, replayCommits := rep.SetPrePrepare(bp.Hash, &bp)

	if err := m.broadcastPrepare(curView, bp.EndIndex, bp.Hash); err != nil {
		return err
	}

	for _, s := range replayPrepares {
		if err := m.recordPrepare(rep, curView, bp.EndIndex, bp.Hash, s, nil); err != nil {
			return err
		}
	}
	for _, s := range replayCommits {
		if err := m.recordCommit(rep, curView, bp.EndIndex, bp.Hash, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) broadcastPrepare(view, index uint64, hash common.Hash) error {
	msg := wire.Prepare{View: view, Index: index, Hash: hash, Sender: m.cfg.SelfID}
	return m.broadcast(wire.RTypePrepare, msg)
}

func (m *Machine) broadcastCommit(view, index uint64, hash common.Hash) error {
	msg := wire.Commit{View: view, Index: index, Hash: hash, Sender: m.cfg.SelfID}
	return m.broadcast(wire.RTypeCommit, msg)
}

func (m *Machine) broadcast(rtype wire.RType, body wire.Body) error {
	canonical := body.CanonicalString(wire.Header{})
	for _, dst := range m.cfg.Peers {
		sig, key, err := m.sign.Sign(canonical, dst)
		if err != nil {
			return fmt.Errorf("classical: sign %s for %d: %w", rtype, dst, err)
		}
		env := wire.Envelope{
			Header: wire.Header{Rtype: rtype, ReturnNodeID: m.cfg.SelfID, Sig: sig, Key: key},
			Body:   body,
		}
		if err := m.sender.Send(dst, env, false); err != nil && m.log != nil {
			m.log.Warn("classical: send failed", "rtype", rtype.String(), "dst", dst, "err", err)
		}
	}
	return nil
}

// OnPrepare handles an incoming PREPARE from sender q (§4.6). Verification
// of env's signature is the caller's responsibility (done once, generically,
// by the worker dispatch loop) so this method only applies the ordering
// rules.
func (m *Machine) OnPrepare(env wire.Envelope, p wire.Prepare) error {
	rep := m.table.GetOrCreate(p.Index)
	if !rep.HasPrePrepare() {
		rep.BufferPrepare(p.Sender)
		return nil
	}
	if rep.BatchHash != p.Hash {
		if m.log != nil {
			m.log.Warn("classical: PREPARE hash mismatch, dropped", "index", p.Index, "sender", p.Sender)
		}
		return nil // edge case 6: dropped, quorum unchanged
	}
	return m.recordPrepare(rep, p.View, p.Index, p.Hash, p.Sender, env.Sig)
}

func (m *Machine) recordPrepare(rep *txntable.TxnManager, view, index uint64, hash common.Hash, sender uint32, sig []byte) error {
	if sender == m.cfg.SelfID {
		return nil
	}
	rep.RecordPrepareSig(sender, sig)
	count := rep.AddPrepare(sender)
	if uint32(count) < m.quorum-1 || rep.Prepared() {
		return nil
	}
	rep.SetPrepared()
	if err := m.broadcastCommit(view, index, hash); err != nil {
		return err
	}
	// Counting its own COMMIT is how this replica contributes to the
	// Q-sized commit quorum alongside the Q-1 peers it still needs (§4.6:
	// the prepare threshold is already "Q-1 excluding self").
	return m.recordCommit(rep, view, index, hash, m.cfg.SelfID)
}

// OnCommit handles an incoming COMMIT from sender q (§4.6).
func (m *Machine) OnCommit(env wire.Envelope, c wire.Commit) error {
	rep := m.table.GetOrCreate(c.Index)
	if !rep.HasPrePrepare() {
		rep.BufferCommit(c.Sender)
		return nil
	}
	if rep.BatchHash != c.Hash {
		if m.log != nil {
			m.log.Warn("classical: COMMIT hash mismatch, dropped", "index", c.Index, "sender", c.Sender)
		}
		return nil
	}
	rep.RecordCommitSig(c.Sender, env.Sig)
	return m.recordCommit(rep, c.View, c.Index, c.Hash, c.Sender)
}

func (m *Machine) recordCommit(rep *txntable.TxnManager, view, index uint64, hash common.Hash, sender uint32) error {
	count := rep.AddCommit(sender)
	if uint32(count) < m.quorum || !rep.Prepared() || rep.Committed() {
		return nil
	}
	return m.commitLocal(rep, view, index, hash)
}

// LeaderCommitLocal is the leader's own-batch fast path: §4.6 "the leader
// itself skips prepare entry and emits commit directly after its own batch
// assembly". bp is the leader's own just-broadcast pre-prepare, retained on
// the representative exactly as OnBatchReq would for a non-leader, so any
// onCommitLocal hook sees the same rep.PrePrepare shape regardless of
// which path drove the commit.
func (m *Machine) LeaderCommitLocal(view uint64, bp wire.BatchReq) error {
	rep := m.table.GetOrCreate(bp.EndIndex)
	rep.SetPrePrepare(bp.Hash, &bp)
	rep.SetPrepared()
	if err := m.broadcastCommit(view, bp.EndIndex, bp.Hash); err != nil {
		return err
	}
	return m.recordCommit(rep, view, bp.EndIndex, bp.Hash, m.cfg.SelfID)
}

func (m *Machine) commitLocal(rep *txntable.TxnManager, view, index uint64, hash common.Hash) error {
	rep.SetCommitted()
	m.mu.Lock()
	m.committedLocal[index] = struct{}{}
	hook := m.onCommitLocal
	m.mu.Unlock()
	if hook != nil {
		hook(rep, view, index, hash)
	}

	env := wire.Envelope{
		Header: wire.Header{Rtype: wire.RTypeExecute},
		Body:   wire.Execute{View: view, EndIndex: index, Hash: hash},
	}
	m.queues.Execution(index).Push(env)
	return nil
}

func requestCanonicals(reqs []wire.Request) [][]byte {
	out := make([][]byte, len(reqs))
	for i, r := range reqs {
		out[i] = wire.RequestCanonical(r)
	}
	return out
}
