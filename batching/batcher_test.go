package batching

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/bftcrypto"
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

func (f *fakeSender) sent(dst uint32) []wire.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out[dst]
}

func clientBatch(n int) wire.ClientBatch {
	qs := make([]wire.ClientQuery, n)
	for i := range qs {
		qs[i] = wire.ClientQuery{ClientStartTS: uint64(i + 1), Request: wire.Request{Op: 1, Key: "k", Value: "v"}}
	}
	return wire.ClientBatch{ReturnNode: 100, BatchSize: uint32(n), Queries: qs}
}

func TestOnClientBatchAssignsContiguousIDsAndStoresPrePrepare(t *testing.T) {
	tbl := txntable.NewTable(txntable.DefaultConfig(), nil)
	b := New(Config{SelfID: 0, Peers: []uint32{1, 2, 3}, BatchSize: 10, MaxInFlight: 1000}, tbl, fakeSigner{}, newFakeSender(), nil)

	view, end, req, err := b.OnClientBatch(clientBatch(5))
	require.NoError(t, err)
	require.Equal(t, uint64(0), view)
	require.Equal(t, uint64(5), end)
	require.Equal(t, uint32(5), req.BatchSize)
	require.False(t, req.Hash.IsZero())

	rep, ok := tbl.Get(5)
	require.True(t, ok)
	require.True(t, rep.HasPrePrepare())

	view2, end2, _, err := b.OnClientBatch(clientBatch(3))
	require.NoError(t, err)
	require.Equal(t, view, view2)
	require.Equal(t, uint64(8), end2)
}

func TestOnClientBatchRejectsEmptyBatch(t *testing.T) {
	tbl := txntable.NewTable(txntable.DefaultConfig(), nil)
	b := New(Config{SelfID: 0, MaxInFlight: 1000}, tbl, fakeSigner{}, newFakeSender(), nil)
	_, _, _, err := b.OnClientBatch(wire.ClientBatch{})
	require.Error(t, err)
}

func TestOnClientBatchAppliesBackpressure(t *testing.T) {
	tbl := txntable.NewTable(txntable.DefaultConfig(), nil)
	b := New(Config{SelfID: 0, MaxInFlight: 5}, tbl, fakeSigner{}, newFakeSender(), nil)

	_, _, _, err := b.OnClientBatch(clientBatch(5))
	require.NoError(t, err)

	_, _, _, err = b.OnClientBatch(clientBatch(1))
	require.ErrorIs(t, err, ErrBackpressure)

	b.AdvanceCommitted(5)
	_, _, _, err = b.OnClientBatch(clientBatch(1))
	require.NoError(t, err)
}

func TestBroadcastSignsAndSendsToEveryPeer(t *testing.T) {
	tbl := txntable.NewTable(txntable.DefaultConfig(), nil)
	s := newFakeSender()
	b := New(Config{SelfID: 0, Peers: []uint32{1, 2, 3}, MaxInFlight: 1000}, tbl, fakeSigner{}, s, nil)

	_, _, req, err := b.OnClientBatch(clientBatch(2))
	require.NoError(t, err)
	require.NoError(t, b.Broadcast(req))

	for _, p := range []uint32{1, 2, 3} {
		envs := s.sent(p)
		require.Len(t, envs, 1)
		require.Equal(t, wire.RTypeBatchReq, envs[0].Header.Rtype)
		require.Equal(t, []byte("sig"), envs[0].Header.Sig)
	}
}

var _ bftcrypto.Signer = fakeSigner{}
