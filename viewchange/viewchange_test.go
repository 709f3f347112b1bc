package viewchange

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/common/mclock"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

type fakeSigner struct{}

func (fakeSigner) Method() wire.CryptoMethod { return wire.CryptoED25519 }
func (fakeSigner) Sign(canonical []byte, dst uint32) ([]byte, []byte, error) {
	return []byte("sig"), []byte("key"), nil
}

type fakeVerifier struct{ fail bool }

func (fakeVerifier) Method() wire.CryptoMethod { return wire.CryptoED25519 }
func (f fakeVerifier) Verify(canonical, sig, key []byte, sender, self uint32) error {
	if f.fail {
		return errors.New("fake verification failure")
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

func newManager(t *testing.T, selfID uint32, peers []uint32, clock mclock.Clock) (*Manager, *fakeSender, *txntable.Table) {
	table := txntable.NewTable(txntable.DefaultConfig(), nil)
	sender := newFakeSender()
	m := New(Config{SelfID: selfID, Peers: peers, N: 4, BatchTimeout: 50 * time.Millisecond}, table, fakeVerifier{}, fakeSigner{}, sender, clock, nil)
	return m, sender, table
}

func TestLeaderOfRotatesRoundRobin(t *testing.T) {
	require.Equal(t, uint32(0), LeaderOf(0, 4))
	require.Equal(t, uint32(1), LeaderOf(1, 4))
	require.Equal(t, uint32(0), LeaderOf(4, 4))
}

func TestOnBatchExecutedSuppressesStaleFiring(t *testing.T) {
	m, _, _ := newManager(t, 1, []uint32{0, 2, 3}, nil)

	m.OnBatchForwarded(5)
	m.OnBatchExecuted(5)

	require.Empty(t, m.CheckTimeout(), "the only outstanding batch was executed before the deadline check")
}

func TestTriggerBroadcastsViewChangeToAllButPrimary(t *testing.T) {
	m, sender, table := newManager(t, 1, []uint32{0, 2, 3}, nil)

	rep := table.GetOrCreate(2)
	rep.SetPrePrepare(common.Hash{0x1}, &wire.BatchReq{EndIndex: 2, BatchSize: 2, Hash: common.Hash{0x1}})
	rep.RecordPrepareSig(0, []byte("s0"))
	rep.RecordPrepareSig(2, []byte("s2"))

	vc, err := m.Trigger(0, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), vc.NewView)
	require.Len(t, vc.Batches, 1)
	require.Len(t, vc.Evidence, 1)
	require.ElementsMatch(t, []uint32{0, 2}, vc.Evidence[0].Senders)

	// view 0's primary is replica 0 (LeaderOf(0,4)==0); it must be skipped.
	require.Empty(t, sender.out[0])
	require.Len(t, sender.out[2], 1)
	require.Len(t, sender.out[3], 1)
}

func TestOnViewChangeBuildsNewViewAtQuorumForLeader(t *testing.T) {
	// view 0 -> target view 1, whose leader is replica 1 (LeaderOf(1,4)==1).
	m, sender, table := newManager(t, 1, []uint32{0, 2, 3}, nil)

	rep := table.GetOrCreate(2)
	rep.SetPrePrepare(common.Hash{0x1}, &wire.BatchReq{EndIndex: 2, BatchSize: 2, Hash: common.Hash{0x1}})
	rep.RecordPrepareSig(0, []byte("s0"))
	rep.RecordPrepareSig(1, []byte("s1"))

	vc0 := wire.ViewChange{NewView: 1, LowWatermark: 0, Sender: 0, Batches: []wire.BatchReq{{EndIndex: 2, Hash: common.Hash{0x1}}}, Evidence: []wire.PrepareEvidence{{Index: 2, Hash: common.Hash{0x1}, Senders: []uint32{0, 1}, Sigs: [][]byte{{1}, {2}}}}}
	vc2 := vc0
	vc2.Sender = 2
	vc3 := vc0
	vc3.Sender = 3

	_, ok := m.OnViewChange(wire.Envelope{}, vc0)
	require.False(t, ok, "only one of three distinct senders so far")

	_, ok = m.OnViewChange(wire.Envelope{}, vc2)
	require.False(t, ok, "two of three, still short of quorum 3")

	nv, ok := m.OnViewChange(wire.Envelope{}, vc3)
	require.True(t, ok, "third distinct sender reaches quorum and self is leader(1)")
	require.Equal(t, uint64(1), nv.View)
	require.Len(t, nv.VCs, 3)
	require.Len(t, nv.Replays, 1, "evidence for index 2 appears in all 3 VCs, above the f+1=2 threshold")

	require.NoError(t, m.BroadcastNewView(nv))
	require.Len(t, sender.out[0], 1)
	require.Len(t, sender.out[2], 1)
	require.Len(t, sender.out[3], 1)
	require.Equal(t, uint64(1), m.View(), "installing its own broadcast NEW_VIEW advances the view")
}

func TestOnNewViewRejectsBelowQuorumOrWrongLeader(t *testing.T) {
	m, _, _ := newManager(t, 2, []uint32{0, 1, 3}, nil)

	nv := wire.NewView{View: 1, VCs: []wire.ViewChange{{Sender: 0}, {Sender: 2}}} // only 2 VCs, quorum is 3
	env := wire.Envelope{Header: wire.Header{ReturnNodeID: LeaderOf(1, 4)}}
	require.Error(t, m.OnNewView(env, nv))

	nv3 := wire.NewView{View: 1, VCs: []wire.ViewChange{{Sender: 0}, {Sender: 1}, {Sender: 2}}}
	wrongLeaderEnv := wire.Envelope{Header: wire.Header{ReturnNodeID: 3}} // leader(1,4) is actually 1
	require.Error(t, m.OnNewView(wrongLeaderEnv, nv3))
}

func TestOnNewViewInstallsReplaysAndAdvancesView(t *testing.T) {
	m, _, table := newManager(t, 2, []uint32{0, 1, 3}, nil)

	replay := wire.BatchReq{EndIndex: 7, BatchSize: 1, Hash: common.Hash{0x9}}
	nv := wire.NewView{View: 1, VCs: []wire.ViewChange{{Sender: 0}, {Sender: 1}, {Sender: 2}}, Replays: []wire.BatchReq{replay}}
	env := wire.Envelope{Header: wire.Header{ReturnNodeID: LeaderOf(1, 4)}}

	require.NoError(t, m.OnNewView(env, nv))
	require.Equal(t, uint64(1), m.View())

	rep, ok := table.Get(7)
	require.True(t, ok)
	require.Equal(t, common.Hash{0x9}, rep.BatchHash)
}

func TestReplaySkipsIDsWithoutARetainedPrePrepare(t *testing.T) {
	table := txntable.NewTable(txntable.DefaultConfig(), nil)
	table.GetOrCreate(5) // exists but never got a pre-prepare
	rep := table.GetOrCreate(6)
	rep.SetPrePrepare(common.Hash{0x6}, &wire.BatchReq{EndIndex: 6, Hash: common.Hash{0x6}})

	out := Replay(table, 4, 6)
	require.Len(t, out, 1)
	require.Equal(t, uint64(6), out[0].EndIndex)
}
