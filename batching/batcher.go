// Package batching implements the leader-only batching thread (§4.5): on a
// CL_BATCH it assigns the next contiguous id range, allocates a TxnManager
// per request, computes the batch hash, signs the resulting pre-prepare,
// and fans out a BATCH_REQ to every peer. It also enforces the §4.5/§6
// backpressure rule against MAX_TXN_IN_FLIGHT.
package batching

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

// ErrBackpressure is returned by OnClientBatch when the gap between the
// next assignable id and the last committed id would exceed the
// configured high-water mark (§4.5 "the batching thread refuses new
// client batches and signals the client to slow down").
var ErrBackpressure = errors.New("batching: in-flight gap exceeds high watermark")

// Sender is the narrow outbound dependency, satisfied by transport.Transport.
type Sender interface {
	Send(dst uint32, msg wire.Envelope, force bool) error
}

// Config tunes a Batcher.
type Config struct {
	SelfID        uint32
	Peers         []uint32 // every other replica id
	BatchSize     uint32   // B, §6 BATCH_SIZE
	MaxInFlight   uint64   // §6 MAX_TXN_IN_FLIGHT
	CryptoMethod  wire.CryptoMethod
}

// Batcher is the leader's batch-assembly state (§4.5, §9: "the batching
// thread is the only writer of next_assignable_id").
type Batcher struct {
	cfg    Config
	table  *txntable.Table
	signer bftcrypto.Signer
	sender Sender
	log    log.Logger

	mu           sync.Mutex
	view         uint64
	nextID       uint64
	lastCommitted uint64
}

// New constructs a Batcher. table, signer and sender are shared with the
// rest of the replica; view starts at 0 and is updated by the view-change
// component on new-view installation.
func New(cfg Config, table *txntable.Table, signer bftcrypto.Signer, sender Sender, l log.Logger) *Batcher {
	return &Batcher{cfg: cfg, table: table, signer: signer, sender: sender, log: l, nextID: 1}
}

// SetView installs the view this replica currently leads under, called by
// view-change on NEW_VIEW (§4.11).
func (b *Batcher) SetView(v uint64) {
	b.mu.Lock()
	b.view = v
	b.mu.Unlock()
}

// AdvanceCommitted records the new "committed id" high-water mark used in
// the backpressure gap calculation (§4.5), called by the execution/
// checkpoint components as batches commit.
func (b *Batcher) AdvanceCommitted(id uint64) {
	b.mu.Lock()
	if id > b.lastCommitted {
		b.lastCommitted = id
	}
	b.mu.Unlock()
}

// OnClientBatch assigns ids, allocates TxnManagers, hashes, and returns the
// unsigned BATCH_REQ this leader broadcasts to every peer; signing happens
// per destination in Broadcast. The leader
// does not send a BATCH_REQ to itself: §4.5 "the leader itself skips
// prepare entry and emits commit directly after its own batch assembly" —
// that local bookkeeping is the caller's responsibility once this call
// returns the pre-prepare and its assigned range.
func (b *Batcher) OnClientBatch(cb wire.ClientBatch) (view uint64, endIndex uint64, req wire.BatchReq, err error) {
	b.mu.Lock()
	gap := b.nextID - 1 - b.lastCommitted
	if b.cfg.MaxInFlight > 0 && gap >= b.cfg.MaxInFlight {
		b.mu.Unlock()
		return 0, 0, wire.BatchReq{}, ErrBackpressure
	}
	start := b.nextID
	n := uint64(len(cb.Queries))
	if n == 0 {
		b.mu.Unlock()
		return 0, 0, wire.BatchReq{}, fmt.Errorf("batching: empty client batch")
	}
	b.nextID += n
	view = b.view
	b.mu.Unlock()

	requests := make([]wire.Request, n)
	canonical := make([][]byte, n)
	for i, q := range cb.Queries {
		r := q.Request
		r.ClientID = cb.ReturnNode
		r.ClientStartTS = q.ClientStartTS
		requests[i] = r
		canonical[i] = wire.RequestCanonical(r)

		m := b.table.GetOrCreate(start + uint64(i))
		m.ClientID = cb.ReturnNode
	}

	hash := wire.BatchHash(canonical)
	endIndex = start + n - 1
	req = wire.BatchReq{
		View:      view,
		EndIndex:  endIndex,
		BatchSize: uint32(n),
		Hash:      hash,
		Requests:  requests,
	}

	// The leader retains its own pre-prepare under the range's representative
	// (last) TxnManager so view-change replay can recover it (§4.11).
	rep := b.table.GetOrCreate(endIndex)
	rep.SetPrePrepare(hash, &req)

	return view, endIndex, req, nil
}

// Broadcast signs req once per destination (authenticator mode yields a
// distinct tag per peer; digital-signature modes recompute the same
// signature each time) and sends a BATCH_REQ to every configured peer.
func (b *Batcher) Broadcast(req wire.BatchReq) error {
	canonical := req.CanonicalString(wire.Header{})
	for _, dst := range b.cfg.Peers {
		sig, key, err := b.signer.Sign(canonical, dst)
		if err != nil {
			return fmt.Errorf("batching: sign for %d: %w", dst, err)
		}
		env := wire.Envelope{
			Header: wire.Header{Rtype: wire.RTypeBatchReq, ReturnNodeID: b.cfg.SelfID, Sig: sig, Key: key},
			Body:   req,
		}
		if err := b.sender.Send(dst, env, false); err != nil {
			if b.log != nil {
				b.log.Warn("batching: send BATCH_REQ failed", "dst", dst, "err", err)
			}
		}
	}
	return nil
}
