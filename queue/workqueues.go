package queue

import "github.com/bftcore/bftcore/wire"

// WorkQueues is the full set of typed inbound queues an input thread
// classifies a decoded Envelope into (§4.4's table): new-txn (leader
// batching), worker (prepare/commit/view-change/new-view), a
// position-sharded execution queue, and checkpoint.
type WorkQueues struct {
	NewTxn     *Queue[wire.Envelope]
	Worker     *Queue[wire.Envelope]
	Checkpoint *Queue[wire.Envelope]
	execution  []*Queue[wire.Envelope]
}

// NewWorkQueues constructs a WorkQueues with execShards independent
// execution sub-queues, so the sole execution thread (§4.9) can still
// receive EXECUTE messages concurrently appended by every ordering-state
// machine instance without contending on one queue's mutex.
func NewWorkQueues(execShards int) *WorkQueues {
	if execShards < 1 {
		execShards = 1
	}
	wq := &WorkQueues{
		NewTxn:     New[wire.Envelope](),
		Worker:     New[wire.Envelope](),
		Checkpoint: New[wire.Envelope](),
		execution:  make([]*Queue[wire.Envelope], execShards),
	}
	for i := range wq.execution {
		wq.execution[i] = New[wire.Envelope]()
	}
	return wq
}

// Execution returns the execution sub-queue that batch position txnID is
// sharded into (§4.4 "execution (sharded by batch position)").
func (wq *WorkQueues) Execution(txnID uint64) *Queue[wire.Envelope] {
	return wq.execution[txnID%uint64(len(wq.execution))]
}

// ExecutionShards returns every execution sub-queue, in shard order, so the
// execution thread's dispatch loop (§4.9) can poll all of them.
func (wq *WorkQueues) ExecutionShards() []*Queue[wire.Envelope] {
	return wq.execution
}
