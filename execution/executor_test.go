package execution

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/common"
	bftmetrics "github.com/bftcore/bftcore/internal/bftmetrics"
	"github.com/bftcore/bftcore/kvstore"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

type fakeSigner struct{}

func (fakeSigner) Method() wire.CryptoMethod { return wire.CryptoED25519 }
func (fakeSigner) Sign(canonical []byte, dst uint32) ([]byte, []byte, error) {
	return []byte("sig"), []byte("key"), nil
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

func req(clientID uint32, ts uint64) wire.Request {
	return wire.Request{ClientID: clientID, ClientStartTS: ts, Op: wire.OpPut, Key: "k", Value: "v"}
}

func newExecutor(t *testing.T, cfg Config) (*Executor, *fakeSender, *txntable.Table, kvstore.Store) {
	table := txntable.NewTable(txntable.DefaultConfig(), nil)
	store := kvstore.NewMemory()
	sender := newFakeSender()
	e := New(cfg, table, store, fakeSigner{}, sender, nil, bftmetrics.NewRegistry())
	return e, sender, table, store
}

func TestOnExecuteAppliesInOrderAndResponds(t *testing.T) {
	e, sender, _, store := newExecutor(t, Config{SelfID: 0, Peers: []uint32{1, 2, 3}, ChkptInterval: 100})

	exec := wire.Execute{View: 0, StartIndex: 1, EndIndex: 2, Requests: []wire.Request{req(5, 10), req(5, 11)}}
	require.NoError(t, e.OnExecute(exec))

	require.Equal(t, uint64(3), e.NextExpected())
	v, found, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", v)

	require.Len(t, sender.out[5], 1)
	resp := sender.out[5][0].Body.(wire.ClientResponse)
	require.Equal(t, []wire.ResponseSlot{{TxnID: 1, ClientStartTS: 10}, {TxnID: 2, ClientStartTS: 11}}, resp.Slots)
}

func TestOnExecuteParksOutOfOrderThenDrains(t *testing.T) {
	e, _, _, _ := newExecutor(t, Config{SelfID: 0, Peers: nil, ChkptInterval: 100})

	execB := wire.Execute{StartIndex: 3, EndIndex: 3, Requests: []wire.Request{req(1, 0)}}
	require.NoError(t, e.OnExecute(execB))
	require.Equal(t, uint64(1), e.NextExpected(), "id 3 arrived early, execution must not advance")

	execA := wire.Execute{StartIndex: 1, EndIndex: 2, Requests: []wire.Request{req(1, 0), req(1, 0)}}
	require.NoError(t, e.OnExecute(execA))
	require.Equal(t, uint64(4), e.NextExpected(), "draining the parked range should advance past it too")
}

func TestOnExecuteDropsStaleSilently(t *testing.T) {
	e, _, _, _ := newExecutor(t, Config{SelfID: 0, Peers: nil, ChkptInterval: 100})

	exec := wire.Execute{StartIndex: 1, EndIndex: 1, Requests: []wire.Request{req(1, 0)}}
	require.NoError(t, e.OnExecute(exec))
	require.Equal(t, uint64(2), e.NextExpected())

	require.NoError(t, e.OnExecute(exec)) // duplicate/stale re-delivery
	require.Equal(t, uint64(2), e.NextExpected(), "stale EXECUTE must be dropped, not re-applied")
}

func TestOnExecuteResolvesClassicalFromRepresentative(t *testing.T) {
	e, _, table, _ := newExecutor(t, Config{SelfID: 0, Peers: []uint32{1}, ChkptInterval: 100})

	rep := table.GetOrCreate(2)
	rep.SetPrePrepare(common.Hash{}, &wire.BatchReq{EndIndex: 2, BatchSize: 2, Requests: []wire.Request{req(9, 0), req(9, 0)}})

	exec := wire.Execute{View: 0, EndIndex: 2} // classical/chained: StartIndex and Requests left zero
	require.NoError(t, e.OnExecute(exec))
	require.Equal(t, uint64(3), e.NextExpected())
}

func TestOnExecuteBroadcastsCheckpointOnInterval(t *testing.T) {
	e, sender, _, _ := newExecutor(t, Config{SelfID: 0, Peers: []uint32{1, 2, 3}, ChkptInterval: 2})

	exec := wire.Execute{StartIndex: 1, EndIndex: 2, Requests: []wire.Request{req(1, 0), req(1, 0)}}
	require.NoError(t, e.OnExecute(exec))

	require.Len(t, sender.out[1], 1)
	chkpt := sender.out[1][0].Body.(wire.Checkpoint)
	require.Equal(t, uint64(2), chkpt.TxnID)
}
