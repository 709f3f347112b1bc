package classical

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/queue"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

type fakeSigner struct{}

func (fakeSigner) Method() wire.CryptoMethod { return wire.CryptoED25519 }
func (fakeSigner) Sign(canonical []byte, dst uint32) ([]byte, []byte, error) {
	return []byte("sig"), []byte("key"), nil
}

type fakeVerifier struct{ fail bool }

func (v fakeVerifier) Method() wire.CryptoMethod { return wire.CryptoED25519 }
func (v fakeVerifier) Verify(canonical, sig, key []byte, sender, self uint32) error {
	if v.fail {
		return errors.New("verification failed")
	}
	return nil
}

type fakeSender struct {
	mu  sync.Mutex
	out map[uint32][]wire.Envelope
}

func newFakeSender() *fakeSender { return &fakeSender{out: make(map[uint32][]wire.Envelope)} }

func (f *fakeSender) Send(dst uint32, msg wire.Envelope, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out[dst] = append(f.out[dst], msg)
	return nil
}

func (f *fakeSender) sent(dst uint32) []wire.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out[dst]
}

func newMachine(self uint32, peers []uint32) (*Machine, *queue.WorkQueues, *fakeSender) {
	tbl := txntable.NewTable(txntable.DefaultConfig(), nil)
	s := newFakeSender()
	wq := queue.NewWorkQueues(4)
	m := New(Config{SelfID: self, Peers: peers, N: 4}, 1000, tbl, fakeVerifier{}, fakeSigner{}, s, wq, nil)
	m.AdvanceWatermark(0, 1000)
	return m, wq, s
}

func batchReq(view, end uint64) wire.BatchReq {
	reqs := []wire.Request{{Op: 1, Key: "k", Value: "v"}}
	hash := wire.BatchHash([][]byte{wire.RequestCanonical(reqs[0])})
	return wire.BatchReq{View: view, EndIndex: end, BatchSize: 1, Hash: hash, Requests: reqs}
}

func TestClassicalFourReplicaCommit(t *testing.T) {
	// Replica 1 (non-leader) receives BATCH_REQ from leader 0, then
	// PREPARE from 2 and 3 (Q-1=2), then COMMIT from 0,2,3 (Q=3).
	m, wq, s := newMachine(1, []uint32{0, 2, 3})
	bp := batchReq(0, 1)

	require.NoError(t, m.OnBatchReq(wire.Envelope{Header: wire.Header{ReturnNodeID: 0}}, bp))
	require.Len(t, s.sent(0), 1) // PREPARE broadcast
	require.Equal(t, wire.RTypePrepare, s.sent(0)[0].Header.Rtype)

	require.NoError(t, m.OnPrepare(wire.Envelope{}, wire.Prepare{View: 0, Index: 1, Hash: bp.Hash, Sender: 2}))
	require.NoError(t, m.OnPrepare(wire.Envelope{}, wire.Prepare{View: 0, Index: 1, Hash: bp.Hash, Sender: 3}))
	require.Len(t, s.sent(0), 2) // PREPARE + COMMIT now sent to 0

	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 1, Hash: bp.Hash, Sender: 0}))
	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 1, Hash: bp.Hash, Sender: 2}))
	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 1, Hash: bp.Hash, Sender: 3}))

	env, ok := wq.Execution(1).TryPop()
	require.True(t, ok)
	require.Equal(t, wire.RTypeExecute, env.Header.Rtype)
	exec := env.Body.(wire.Execute)
	require.Equal(t, uint64(1), exec.EndIndex)
}

func TestClassicalBufferedPrepareBeforePrePrepare(t *testing.T) {
	m, wq, _ := newMachine(1, []uint32{0, 2, 3})
	bp := batchReq(0, 2)

	require.NoError(t, m.OnPrepare(wire.Envelope{}, wire.Prepare{View: 0, Index: 2, Hash: bp.Hash, Sender: 2}))
	require.NoError(t, m.OnPrepare(wire.Envelope{}, wire.Prepare{View: 0, Index: 2, Hash: bp.Hash, Sender: 3}))

	require.NoError(t, m.OnBatchReq(wire.Envelope{Header: wire.Header{ReturnNodeID: 0}}, bp))
	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 2, Hash: bp.Hash, Sender: 0}))
	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 2, Hash: bp.Hash, Sender: 2}))
	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 2, Hash: bp.Hash, Sender: 3}))

	_, ok := wq.Execution(2).TryPop()
	require.True(t, ok)
}

func TestClassicalDropsViewMismatch(t *testing.T) {
	m, _, s := newMachine(1, []uint32{0, 2, 3})
	bp := batchReq(5, 1) // view 5 while machine is still at view 0
	require.NoError(t, m.OnBatchReq(wire.Envelope{Header: wire.Header{ReturnNodeID: 0}}, bp))
	require.Empty(t, s.sent(0))
}

func TestClassicalDuplicateCommittedPositionDropped(t *testing.T) {
	m, _, s := newMachine(1, []uint32{0, 2, 3})
	bp := batchReq(0, 1)
	require.NoError(t, m.OnBatchReq(wire.Envelope{Header: wire.Header{ReturnNodeID: 0}}, bp))
	require.NoError(t, m.OnPrepare(wire.Envelope{}, wire.Prepare{View: 0, Index: 1, Hash: bp.Hash, Sender: 2}))
	require.NoError(t, m.OnPrepare(wire.Envelope{}, wire.Prepare{View: 0, Index: 1, Hash: bp.Hash, Sender: 3}))
	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 1, Hash: bp.Hash, Sender: 0}))
	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 1, Hash: bp.Hash, Sender: 2}))
	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 1, Hash: bp.Hash, Sender: 3}))

	before := len(s.sent(0))
	require.NoError(t, m.OnBatchReq(wire.Envelope{Header: wire.Header{ReturnNodeID: 0}}, bp))
	require.Len(t, s.sent(0), before)
}

func TestClassicalDuplicatePrepareIsIdempotent(t *testing.T) {
	m, _, s := newMachine(1, []uint32{0, 2, 3})
	bp := batchReq(0, 1)
	require.NoError(t, m.OnBatchReq(wire.Envelope{Header: wire.Header{ReturnNodeID: 0}}, bp))
	require.NoError(t, m.OnPrepare(wire.Envelope{}, wire.Prepare{View: 0, Index: 1, Hash: bp.Hash, Sender: 2}))
	require.NoError(t, m.OnPrepare(wire.Envelope{}, wire.Prepare{View: 0, Index: 1, Hash: bp.Hash, Sender: 2}))
	require.Len(t, s.sent(0), 1) // still only the initial PREPARE, no COMMIT yet
}

func TestLeaderCommitLocalSkipsPrepareEntry(t *testing.T) {
	m, wq, s := newMachine(0, []uint32{1, 2, 3})
	bp := batchReq(0, 1)
	require.NoError(t, m.LeaderCommitLocal(0, bp))
	require.Len(t, s.sent(1), 1)
	require.Equal(t, wire.RTypeCommit, s.sent(1)[0].Header.Rtype)

	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 1, Hash: bp.Hash, Sender: 1}))
	require.NoError(t, m.OnCommit(wire.Envelope{}, wire.Commit{View: 0, Index: 1, Hash: bp.Hash, Sender: 2}))
	_, ok := wq.Execution(1).TryPop()
	require.True(t, ok)
}
