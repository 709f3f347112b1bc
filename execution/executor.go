// Package execution implements the single-threaded in-order executor
// (§4.9): it owns the next-expected execution id, applies each committed
// transaction to the KV store in strict id order, and emits the
// aggregated, signed client response plus periodic checkpoints.
package execution

import (
	"context"
	"fmt"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/common/prque"
	bftmetrics "github.com/bftcore/bftcore/internal/bftmetrics"
	"github.com/bftcore/bftcore/kvstore"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/queue"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

// Sender is the narrow outbound dependency: one client response per
// committed batch, one checkpoint broadcast per peer every C transactions.
type Sender interface {
	Send(dst uint32, msg wire.Envelope, force bool) error
}

// Config fixes this replica's identity, peer set, and the checkpoint
// cadence (§4.10's "every C executed transactions").
type Config struct {
	SelfID        uint32
	Peers         []uint32
	ChkptInterval uint64 // C
}

// Executor runs the execution thread described in §4.9/§5: "the execution
// thread is the sole mutator of the application state and processes
// transaction ids strictly in increasing order."
type Executor struct {
	cfg    Config
	table  *txntable.Table
	store  kvstore.Store
	sign   bftcrypto.Signer
	sender Sender
	log    log.Logger

	nextExpected uint64 // next txn_id this replica will execute
	pending      *prque.Prque[int64, wire.Execute]

	executedSinceStartup uint64

	committed bftmetrics.Counter
	depth     bftmetrics.Gauge
}

// New constructs an Executor starting at execution id 1 (genesis). store is
// the KV collaborator (§1, §6); table resolves classical/chained EXECUTE
// messages back to their representative pre-prepare.
func New(cfg Config, table *txntable.Table, store kvstore.Store, sign bftcrypto.Signer, sender Sender, l log.Logger, registry bftmetrics.Registry) *Executor {
	return &Executor{
		cfg:          cfg,
		table:        table,
		store:        store,
		sign:         sign,
		sender:       sender,
		log:          l,
		nextExpected: 1,
		pending:      prque.New[int64, wire.Execute](nil),
		committed:    bftmetrics.GetOrRegisterCounter("execution/committed", registry),
		depth:        bftmetrics.GetOrRegisterGauge("execution/pending_depth", registry),
	}
}

// NextExpected reports the next transaction id this executor will apply,
// exposed for checkpoint/watermark bookkeeping and tests.
func (e *Executor) NextExpected() uint64 { return e.nextExpected }

// OnExecute handles one EXECUTE dispatch (§4.9): resolves classical/chained
// Execute messages (which name only the committed range) against the
// representative TxnManager's retained pre-prepare, then either applies it
// immediately if it is the next-expected id, parks it in the out-of-order
// priority queue if it arrived early, or silently drops it if it is stale
// (Open Question 1 — state transfer is explicitly out of scope).
func (e *Executor) OnExecute(exec wire.Execute) error {
	resolved, ok, err := e.resolve(exec)
	if err != nil {
		return err
	}
	if !ok {
		if e.log != nil {
			e.log.Warn("execution: cannot resolve EXECUTE, representative batch unknown", "end_index", exec.EndIndex)
		}
		return nil
	}
	if resolved.StartIndex < e.nextExpected {
		if e.log != nil {
			e.log.Debug("execution: stale EXECUTE dropped", "start_index", resolved.StartIndex, "next_expected", e.nextExpected)
		}
		return nil
	}
	if resolved.StartIndex > e.nextExpected {
		e.pending.Push(resolved, -int64(resolved.StartIndex))
		e.depth.Update(int64(e.pending.Size()))
		return nil
	}
	if err := e.apply(resolved); err != nil {
		return err
	}
	return e.drainPending()
}

// resolve fills in StartIndex/Requests for a classical or chained Execute
// (which carries only the committed range's end and hash) by looking up the
// representative TxnManager's retained pre-prepare; a DAG Execute already
// carries both and is returned unchanged.
func (e *Executor) resolve(exec wire.Execute) (wire.Execute, bool, error) {
	if exec.StartIndex != 0 || len(exec.Requests) > 0 {
		return exec, true, nil
	}
	rep, ok := e.table.Get(exec.EndIndex)
	if !ok || rep.PrePrepare == nil {
		return wire.Execute{}, false, nil
	}
	batchSize := uint64(rep.PrePrepare.BatchSize)
	if batchSize == 0 || batchSize > exec.EndIndex {
		return wire.Execute{}, false, fmt.Errorf("execution: representative batch at %d has invalid size %d", exec.EndIndex, batchSize)
	}
	start := exec.EndIndex - batchSize + 1
	return wire.Execute{
		View:       exec.View,
		StartIndex: start,
		EndIndex:   exec.EndIndex,
		Hash:       exec.Hash,
		Requests:   rep.PrePrepare.Requests,
	}, true, nil
}

// drainPending applies every parked Execute that has become the
// next-expected id in sequence, so a single late arrival can unblock a run
// of already-buffered ranges in one pass.
func (e *Executor) drainPending() error {
	for !e.pending.Empty() {
		_, priority := e.pending.Peek()
		if uint64(-priority) != e.nextExpected {
			break
		}
		exec := e.pending.PopItem()
		e.depth.Update(int64(e.pending.Size()))
		if err := e.apply(exec); err != nil {
			return err
		}
	}
	return nil
}

// apply executes every request in exec's range in order (§3 "Transaction t
// is executed only after t-1 has been executed"), emits the aggregated
// client response from the representative (last) transaction, and
// broadcasts a checkpoint whenever a transaction id lands on the
// configured interval (§4.10).
func (e *Executor) apply(exec wire.Execute) error {
	slots := make([]wire.ResponseSlot, 0, len(exec.Requests))
	var lastClient uint32
	for i, req := range exec.Requests {
		txnID := exec.StartIndex + uint64(i)
		if err := e.applyRequest(req); err != nil {
			return fmt.Errorf("execution: apply txn %d: %w", txnID, err)
		}
		slots = append(slots, wire.ResponseSlot{TxnID: txnID, ClientStartTS: req.ClientStartTS})
		lastClient = req.ClientID

		e.committed.Inc(1)
		e.executedSinceStartup++
		if e.cfg.ChkptInterval > 0 && txnID%e.cfg.ChkptInterval == 0 {
			e.broadcastCheckpoint(txnID)
		}
	}
	e.nextExpected = exec.EndIndex + 1

	if len(slots) == 0 {
		return nil
	}
	resp := wire.ClientResponse{View: exec.View, Slots: slots}
	canonical := resp.CanonicalString(wire.Header{})
	sig, key, err := e.sign.Sign(canonical, lastClient)
	if err != nil {
		return fmt.Errorf("execution: sign client response: %w", err)
	}
	env := wire.Envelope{
		Header: wire.Header{Rtype: wire.RTypeClientResponse, ReturnNodeID: e.cfg.SelfID, Sig: sig, Key: key},
		Body:   resp,
	}
	if err := e.sender.Send(lastClient, env, false); err != nil && e.log != nil {
		e.log.Warn("execution: send client response failed", "client", lastClient, "err", err)
	}
	return nil
}

func (e *Executor) applyRequest(req wire.Request) error {
	switch req.Op {
	case wire.OpGet:
		_, _, err := e.store.Get(req.Key)
		return err
	case wire.OpPut:
		return e.store.Put(req.Key, req.Value)
	default:
		// OpInvoke and any future opcode: the core forwards the payload
		// without interpreting it (§1 "out of scope... embedded KV store").
		return e.store.Put(req.Key, req.Value)
	}
}

func (e *Executor) broadcastCheckpoint(txnID uint64) {
	chkpt := wire.Checkpoint{TxnID: txnID, Sender: e.cfg.SelfID}
	canonical := chkpt.CanonicalString(wire.Header{})
	for _, dst := range e.cfg.Peers {
		sig, key, err := e.sign.Sign(canonical, dst)
		if err != nil {
			if e.log != nil {
				e.log.Warn("execution: sign checkpoint failed", "txn_id", txnID, "dst", dst, "err", err)
			}
			continue
		}
		env := wire.Envelope{
			Header: wire.Header{Rtype: wire.RTypeCheckpoint, ReturnNodeID: e.cfg.SelfID, Sig: sig, Key: key},
			Body:   chkpt,
		}
		if err := e.sender.Send(dst, env, true); err != nil && e.log != nil {
			e.log.Warn("execution: send checkpoint failed", "txn_id", txnID, "dst", dst, "err", err)
		}
	}
}

// Run drains execution envelopes from every shard in round-robin order
// until ctx is cancelled (§5 "a fixed execution thread"). Production
// entrypoint; tests drive OnExecute directly.
func Run(ctx context.Context, e *Executor, queues *queue.WorkQueues) error {
	shards := queues.ExecutionShards()
	for i := 0; ; i = (i + 1) % len(shards) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		env, ok := shards[i].TryPop()
		if !ok {
			continue
		}
		exec, ok := env.Body.(wire.Execute)
		if !ok {
			continue
		}
		if err := e.OnExecute(exec); err != nil {
			return err
		}
	}
}
