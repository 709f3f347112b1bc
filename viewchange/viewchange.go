// Package viewchange implements the per-batch timer, VIEW_CHANGE/NEW_VIEW
// exchange, and buffered-batch replay that recover liveness from a stalled
// or Byzantine primary (§4.11).
package viewchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/common/mclock"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

// Sender is the narrow outbound dependency, satisfied by transport.Transport.
type Sender interface {
	Send(dst uint32, msg wire.Envelope, force bool) error
}

// Quorum returns Q = 2f+1 for an N = 3f+1 replica set (§3), identical to
// every other component's.
func Quorum(n uint32) uint32 {
	f := (n - 1) / 3
	return 2*f + 1
}

// LeaderOf returns the deterministic primary for view, the same v mod N
// rule the classical variant uses to pick a batch's leader (§3).
func LeaderOf(view uint64, n uint32) uint32 {
	return uint32(view % uint64(n))
}

// Config fixes the replica set, this replica's identity, and the per-batch
// timeout armed on forward and disarmed on execution (§4.11).
type Config struct {
	SelfID       uint32
	Peers        []uint32 // every other replica id
	N            uint32
	BatchTimeout time.Duration
}

// Manager tracks outstanding per-batch deadlines and the VIEW_CHANGE/
// NEW_VIEW exchange for one replica (§4.11).
type Manager struct {
	cfg    Config
	quorum uint32
	table  *txntable.Table
	verify bftcrypto.Verifier
	sign   bftcrypto.Signer
	sender Sender
	clock  mclock.Clock
	alarm  *mclock.Alarm
	log    log.Logger

	mu        sync.Mutex
	view      uint64
	deadlines map[uint64]mclock.AbsTime // outstanding batch id (its EndIndex) -> deadline

	// vcSenders/vcByView accumulate VIEW_CHANGE votes for a candidate
	// target view: the set lets Quorum be checked in O(1), the ordered map
	// preserves arrival order for deterministic NEW_VIEW construction
	// (mirrors ordering/dag's per-round sender-set and ordered-block-map
	// pairing).
	vcSenders map[uint64]mapset.Set[uint32]
	vcByView  map[uint64]*linkedhashmap.Map // target view -> sender(uint32) -> wire.ViewChange
	installed map[uint64]struct{}           // target views whose NEW_VIEW already installed
}

// New constructs a Manager. clock may be nil to use the system clock.
func New(cfg Config, table *txntable.Table, verify bftcrypto.Verifier, sign bftcrypto.Signer, sender Sender, clock mclock.Clock, l log.Logger) *Manager {
	if clock == nil {
		clock = mclock.System{}
	}
	return &Manager{
		cfg:       cfg,
		quorum:    Quorum(cfg.N),
		table:     table,
		verify:    verify,
		sign:      sign,
		sender:    sender,
		clock:     clock,
		alarm:     mclock.NewAlarm(clock),
		log:       l,
		deadlines: make(map[uint64]mclock.AbsTime),
		vcSenders: make(map[uint64]mapset.Set[uint32]),
		vcByView:  make(map[uint64]*linkedhashmap.Map),
		installed: make(map[uint64]struct{}),
	}
}

// View returns the current view.
func (m *Manager) View() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Alarm exposes the channel the composition root selects on to learn when
// to call CheckTimeout.
func (m *Manager) Alarm() *mclock.Alarm {
	return m.alarm
}

// OnBatchForwarded arms the per-batch timer for batchID (its EndIndex), the
// "armed on receipt of a client batch it forwarded" half of §4.11's rule.
// Nothing in this module calls it: replica does not relay client batches
// to the primary, so a running replica arms no per-batch timer and Run
// never triggers a view change on its own.
func (m *Manager) OnBatchForwarded(batchID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline := m.clock.Now().Add(m.cfg.BatchTimeout)
	m.deadlines[batchID] = deadline
	m.alarm.Schedule(deadline)
}

// OnBatchExecuted disarms batchID's timer, the "disarmed on its execution"
// half of §4.11's rule. The alarm itself cannot be pulled back once
// scheduled; CheckTimeout re-validates against the live deadline set before
// treating a firing as real, so an executed batch's stale firing is simply
// a no-op.
func (m *Manager) OnBatchExecuted(batchID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deadlines, batchID)
}

// CheckTimeout is called when Alarm's channel fires. It returns the batch
// ids still outstanding past their deadline and re-arms the alarm for
// whatever remains, so a firing that raced with OnBatchExecuted for every
// outstanding batch returns nothing and triggers no view change.
func (m *Manager) CheckTimeout() (timedOut []uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	var earliest mclock.AbsTime
	hasEarliest := false
	for id, d := range m.deadlines {
		if d <= now {
			timedOut = append(timedOut, id)
		} else if !hasEarliest || d < earliest {
			earliest, hasEarliest = d, true
		}
	}
	if hasEarliest {
		m.alarm.Schedule(earliest)
	}
	return timedOut
}

// Trigger suspects the current primary and proposes a view change to
// view+1 (§4.11): it builds the VIEW_CHANGE naming the replica's low
// watermark, its retained batches above it (via Replay), and per-batch
// prepare evidence, then broadcasts it to every peer except the primary it
// is abandoning and locally records its own vote.
func (m *Manager) Trigger(lowWatermark, highWatermark uint64) (wire.ViewChange, error) {
	m.mu.Lock()
	abandoning := LeaderOf(m.view, m.cfg.N)
	newView := m.view + 1
	m.mu.Unlock()

	batches := Replay(m.table, lowWatermark, highWatermark)
	evidence := make([]wire.PrepareEvidence, 0, len(batches))
	for _, b := range batches {
		rep, ok := m.table.Get(b.EndIndex)
		if !ok {
			continue
		}
		sigs := rep.PrepareSigs()
		if len(sigs) == 0 {
			continue
		}
		senders := make([]uint32, 0, len(sigs))
		for s := range sigs {
			senders = append(senders, s)
		}
		sort.Slice(senders, func(i, j int) bool { return senders[i] < senders[j] })
		sigList := make([][]byte, len(senders))
		for i, s := range senders {
			sigList[i] = sigs[s]
		}
		evidence = append(evidence, wire.PrepareEvidence{Index: b.EndIndex, Hash: b.Hash, Senders: senders, Sigs: sigList})
	}

	vc := wire.ViewChange{NewView: newView, LowWatermark: lowWatermark, Sender: m.cfg.SelfID, Batches: batches, Evidence: evidence}
	skip := map[uint32]bool{abandoning: true}
	selfEnv, err := m.broadcast(wire.RTypeViewChange, vc, skip)
	if err != nil {
		return wire.ViewChange{}, err
	}
	_, _ = m.OnViewChange(selfEnv, vc) // local self-vote
	return vc, nil
}

// broadcast signs body once per destination (CMAC mode needs a distinct
// authenticator tag per receiver) and sends it to every configured peer
// except those named in skip, mirroring ordering/classical's broadcast. It
// also signs and returns a self-addressed copy for the caller's own local
// processing, since under CMAC a peer-addressed tag wouldn't verify there.
func (m *Manager) broadcast(rtype wire.RType, body wire.Body, skip map[uint32]bool) (wire.Envelope, error) {
	canonical := body.CanonicalString(wire.Header{})
	for _, dst := range m.cfg.Peers {
		if skip[dst] {
			continue
		}
		sig, key, err := m.sign.Sign(canonical, dst)
		if err != nil {
			return wire.Envelope{}, fmt.Errorf("viewchange: sign %s for %d: %w", rtype, dst, err)
		}
		env := wire.Envelope{
			Header: wire.Header{Rtype: rtype, ReturnNodeID: m.cfg.SelfID, Sig: sig, Key: key},
			Body:   body,
		}
		if err := m.sender.Send(dst, env, true); err != nil && m.log != nil {
			m.log.Warn("viewchange: send failed", "rtype", rtype.String(), "dst", dst, "err", err)
		}
	}
	sig, key, err := m.sign.Sign(canonical, m.cfg.SelfID)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("viewchange: sign %s for self: %w", rtype, err)
	}
	return wire.Envelope{Header: wire.Header{Rtype: rtype, ReturnNodeID: m.cfg.SelfID, Sig: sig, Key: key}, Body: body}, nil
}

// OnViewChange records a received (or self-produced) VIEW_CHANGE for
// vc.NewView. Once a distinct-sender quorum is reached and this replica is
// leader(vc.NewView), it assembles NEW_VIEW and returns ok true and the
// built message; it sends nothing itself, the caller broadcasts it with
// BroadcastNewView. env.Sig/env.Key are assumed already verified
// by the caller for a genuinely remote message; Trigger's self-vote skips
// re-verification since it just produced the envelope itself.
func (m *Manager) OnViewChange(env wire.Envelope, vc wire.ViewChange) (nv wire.NewView, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vc.NewView <= m.view {
		return wire.NewView{}, false
	}
	if _, done := m.installed[vc.NewView]; done {
		return wire.NewView{}, false
	}

	senders, present := m.vcSenders[vc.NewView]
	if !present {
		senders = mapset.NewSet[uint32]()
		m.vcSenders[vc.NewView] = senders
	}
	byView, present := m.vcByView[vc.NewView]
	if !present {
		byView = linkedhashmap.New()
		m.vcByView[vc.NewView] = byView
	}
	senders.Add(vc.Sender)
	byView.Put(vc.Sender, vc)

	if uint32(senders.Cardinality()) < m.quorum {
		return wire.NewView{}, false
	}
	if LeaderOf(vc.NewView, m.cfg.N) != m.cfg.SelfID {
		return wire.NewView{}, false
	}

	nv = m.buildNewViewLocked(vc.NewView, byView)
	return nv, true
}

// f returns the maximum number of Byzantine replicas tolerated.
func (m *Manager) f() uint32 { return (m.cfg.N - 1) / 3 }

// buildNewViewLocked assembles NEW_VIEW for targetView from every VIEW_CHANGE
// collected so far for it, applying §4.11's Integrity rule: a batch is only
// replayed if its evidence appears in at least f+1 of the received VCs.
func (m *Manager) buildNewViewLocked(targetView uint64, byView *linkedhashmap.Map) wire.NewView {
	values := byView.Values()
	vcs := make([]wire.ViewChange, 0, len(values))
	for _, v := range values {
		vcs = append(vcs, v.(wire.ViewChange))
	}

	type seenBatch struct {
		batch wire.BatchReq
		votes uint32
	}
	seen := make(map[uint64]*seenBatch)
	for _, vc := range vcs {
		byIndex := make(map[uint64]wire.BatchReq, len(vc.Batches))
		for _, b := range vc.Batches {
			byIndex[b.EndIndex] = b
		}
		for _, ev := range vc.Evidence {
			b, ok := byIndex[ev.Index]
			if !ok || b.Hash != ev.Hash {
				continue
			}
			sb, ok := seen[ev.Index]
			if !ok {
				sb = &seenBatch{batch: b}
				seen[ev.Index] = sb
			}
			sb.votes++
		}
	}

	threshold := m.f() + 1
	replays := make([]wire.BatchReq, 0, len(seen))
	for _, sb := range seen {
		if sb.votes >= threshold {
			replays = append(replays, sb.batch)
		}
	}
	sort.Slice(replays, func(i, j int) bool { return replays[i].EndIndex < replays[j].EndIndex })

	return wire.NewView{View: targetView, VCs: vcs, Replays: replays}
}

// BroadcastNewView signs and sends nv to every peer, and locally installs it
// via OnNewView. Called by leader(targetView) immediately after OnViewChange
// returns ok.
func (m *Manager) BroadcastNewView(nv wire.NewView) error {
	selfEnv, err := m.broadcast(wire.RTypeNewView, nv, nil)
	if err != nil {
		return err
	}
	return m.OnNewView(selfEnv, nv)
}

// OnNewView installs a NEW_VIEW: it requires at least a quorum of VCs and a
// valid signature from the claimed leader(nv.View), then advances the
// replica's view, clears pending VC state for it, and replays every carried
// batch's pre-prepare into the shared TxnManager table so ordering and
// execution resume from where the old primary left off (§4.11, §13 Replay).
func (m *Manager) OnNewView(env wire.Envelope, nv wire.NewView) error {
	if uint32(len(nv.VCs)) < m.quorum {
		return fmt.Errorf("viewchange: NEW_VIEW for view %d carries only %d VCs, need %d", nv.View, len(nv.VCs), m.quorum)
	}
	leader := LeaderOf(nv.View, m.cfg.N)
	if env.Header.ReturnNodeID != leader {
		return fmt.Errorf("viewchange: NEW_VIEW for view %d claims sender %d, expected leader %d", nv.View, env.Header.ReturnNodeID, leader)
	}
	if m.verify != nil {
		if err := m.verify.Verify(nv.CanonicalString(env.Header), env.Sig, env.Key, leader, m.cfg.SelfID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	if nv.View <= m.view {
		m.mu.Unlock()
		return nil
	}
	m.view = nv.View
	m.installed[nv.View] = struct{}{}
	delete(m.vcSenders, nv.View)
	delete(m.vcByView, nv.View)
	m.mu.Unlock()

	for _, bp := range nv.Replays {
		bp := bp
		rep := m.table.GetOrCreate(bp.EndIndex)
		rep.SetPrePrepare(bp.Hash, &bp)
	}
	return nil
}

// WatermarkFunc supplies the bounds Trigger needs once the per-batch timer
// fires for real: the replica's current checkpoint low watermark and the
// highest batch id it holds a retained pre-prepare for.
type WatermarkFunc func() (low, high uint64)

// Run drives Manager off its own Alarm (§4.11): each firing re-validates via
// CheckTimeout, and only if a batch is genuinely still overdue does it
// trigger a view change, mirroring execution.Run's dedicated dispatch-loop
// shape for the ordering/execution threads.
func Run(ctx context.Context, m *Manager, watermarks WatermarkFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.Alarm().C():
			if len(m.CheckTimeout()) == 0 {
				continue
			}
			low, high := watermarks()
			if _, err := m.Trigger(low, high); err != nil {
				return err
			}
		}
	}
}

// Replay collects the pre-prepares a VIEW_CHANGE proposer attaches from its
// own TxnManager table: every id above lowWatermark and at or below
// highWatermark for which it still retains a pre-prepare (§4.11, §13).
func Replay(table *txntable.Table, lowWatermark, highWatermark uint64) []wire.BatchReq {
	if highWatermark < lowWatermark {
		return nil
	}
	out := make([]wire.BatchReq, 0, highWatermark-lowWatermark)
	for id := lowWatermark + 1; id <= highWatermark; id++ {
		rep, ok := table.Get(id)
		if !ok || rep.PrePrepare == nil {
			continue
		}
		out = append(out, *rep.PrePrepare)
	}
	return out
}
