// Package workload describes the external workload generator and
// client-side transaction dispatcher collaborator (§1 "out of scope... the
// workload generator and client-side transaction dispatcher", §6 CL_BATCH/
// CL_RSP). The core only depends on the wire shapes these produce and
// consume; this package gives that collaborator a concrete, swappable
// reference implementation, the same way kvstore.Memory does for the KV
// store collaborator.
package workload

import (
	"fmt"
	"sync"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/common/mclock"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/wire"
	"github.com/google/uuid"
)

// Sender is the narrow outbound dependency, satisfied by transport.Transport.
type Sender interface {
	Send(dst uint32, msg wire.Envelope, force bool) error
}

// Generator produces the next batch of requests a client should submit.
// Uniform is the reference implementation; a caller may substitute its own
// (e.g. a YCSB-style or trace-replay generator) without touching Dispatcher.
type Generator interface {
	NextBatch(batchSize uint32) []wire.Request
}

// Uniform is a Generator that performs round-robin put/get operations over
// a fixed key space ("key-0" to "key-<keySpace-1>"), giving each put a
// fresh uuid as its value. Keys are not made unique per dispatcher.
type Uniform struct {
	mu      sync.Mutex
	keySpace int
	counter  uint64
}

// NewUniform constructs a Uniform generator over keySpace distinct keys.
func NewUniform(keySpace int) *Uniform {
	if keySpace < 1 {
		keySpace = 1
	}
	return &Uniform{keySpace: keySpace}
}

// NextBatch alternates put/get requests, using a uuid-derived value so
// every put is distinguishable in the KV store and in logs.
func (u *Uniform) NextBatch(batchSize uint32) []wire.Request {
	u.mu.Lock()
	start := u.counter
	u.counter += uint64(batchSize)
	u.mu.Unlock()

	reqs := make([]wire.Request, batchSize)
	for i := range reqs {
		n := start + uint64(i)
		key := fmt.Sprintf("key-%d", int(n)%u.keySpace)
		if n%2 == 0 {
			reqs[i] = wire.Request{Op: wire.OpPut, Key: key, Value: uuid.New().String()}
		} else {
			reqs[i] = wire.Request{Op: wire.OpGet, Key: key}
		}
	}
	return reqs
}

// Outstanding is a batch this Dispatcher has sent and is still awaiting a
// CL_RSP for.
type Outstanding struct {
	ReturnNode uint32
	Queries    []wire.ClientQuery
	SentAt     mclock.AbsTime
	Primary    uint32
}

// Dispatcher tracks in-flight CL_BATCHes and resubmits them to a new
// primary on retry, matching spec.md §14's Open Question 2 resolution: the
// core emits no acknowledgement for a misdirected CL_BATCH, so the client's
// own retry path — this one — is what makes progress resume after a view
// change.
type Dispatcher struct {
	selfID uint32
	n      uint32
	sign   bftcrypto.Signer
	sender Sender
	clock  mclock.Clock
	log    log.Logger

	mu          sync.Mutex
	nextPrimary uint32
	outstanding map[uint64]Outstanding // keyed by the ClientStartTS of the batch's first query
}

// New constructs a Dispatcher that initially targets replica 0 as primary.
func New(selfID, n uint32, sign bftcrypto.Signer, sender Sender, clock mclock.Clock, l log.Logger) *Dispatcher {
	return &Dispatcher{
		selfID:      selfID,
		n:           n,
		sign:        sign,
		sender:      sender,
		clock:       clock,
		log:         l,
		outstanding: make(map[uint64]Outstanding),
	}
}

// OnViewChange updates this Dispatcher's belief about the current primary,
// fed by whatever out-of-band mechanism (a CL_RSP's view field, an operator
// hint) the embedding client uses to learn it (§14 Open Question 2: the
// core itself emits nothing for this purpose).
func (d *Dispatcher) OnViewChange(view uint64) {
	d.mu.Lock()
	d.nextPrimary = uint32(view % uint64(d.n))
	d.mu.Unlock()
}

// Submit builds a signed CL_BATCH from requests and sends it to the
// believed-current primary, retaining it as Outstanding for Retry.
func (d *Dispatcher) Submit(requests []wire.Request) (wire.ClientBatch, error) {
	now := uint64(d.clock.Now())
	queries := make([]wire.ClientQuery, len(requests))
	for i, r := range requests {
		r.ClientID = d.selfID
		r.ClientStartTS = now
		queries[i] = wire.ClientQuery{ClientStartTS: now, Request: r}
	}
	batch := wire.ClientBatch{ReturnNode: d.selfID, BatchSize: uint32(len(queries)), Queries: queries}

	d.mu.Lock()
	primary := d.nextPrimary
	d.outstanding[now] = Outstanding{ReturnNode: d.selfID, Queries: queries, SentAt: d.clock.Now(), Primary: primary}
	d.mu.Unlock()

	return batch, d.send(primary, batch)
}

func (d *Dispatcher) send(dst uint32, batch wire.ClientBatch) error {
	canonical := batch.CanonicalString(wire.Header{})
	sig, key, err := d.sign.Sign(canonical, dst)
	if err != nil {
		return fmt.Errorf("workload: sign CL_BATCH: %w", err)
	}
	env := wire.Envelope{
		Header: wire.Header{Rtype: wire.RTypeClientBatch, ReturnNodeID: d.selfID, Sig: sig, Key: key},
		Body:   batch,
	}
	return d.sender.Send(dst, env, false)
}

// OnResponse clears every slot a CL_RSP confirms from the outstanding set.
func (d *Dispatcher) OnResponse(resp wire.ClientResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range resp.Slots {
		delete(d.outstanding, s.ClientStartTS)
	}
}

// RetryStale resubmits every batch whose ClientStartTS precedes cutoff to
// whatever replica is currently believed to be the primary (§6 CEXE_TIMEOUT
// governs the caller's choice of cutoff).
func (d *Dispatcher) RetryStale(cutoff mclock.AbsTime) error {
	d.mu.Lock()
	primary := d.nextPrimary
	var stale []Outstanding
	for ts, o := range d.outstanding {
		if o.SentAt < cutoff {
			stale = append(stale, o)
			_ = ts
		}
	}
	d.mu.Unlock()

	for _, o := range stale {
		batch := wire.ClientBatch{ReturnNode: o.ReturnNode, BatchSize: uint32(len(o.Queries)), Queries: o.Queries}
		if err := d.send(primary, batch); err != nil {
			if d.log != nil {
				d.log.Warn("workload: retry CL_BATCH failed", "dst", primary, "err", err)
			}
			return err
		}
	}
	return nil
}

// OutstandingCount reports how many batches have not yet been confirmed by
// a CL_RSP, exposed for tests and done/warmup-timer bookkeeping (§6
// DONE_TIMER).
func (d *Dispatcher) OutstandingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.outstanding)
}
