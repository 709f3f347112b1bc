package workload

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/common/mclock"
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

func TestUniformAlternatesPutGet(t *testing.T) {
	gen := NewUniform(4)
	reqs := gen.NextBatch(4)
	require.Len(t, reqs, 4)
	require.Equal(t, wire.OpPut, reqs[0].Op)
	require.Equal(t, wire.OpGet, reqs[1].Op)
	require.Equal(t, wire.OpPut, reqs[2].Op)
	require.Equal(t, wire.OpGet, reqs[3].Op)
}

func TestUniformAdvancesAcrossCalls(t *testing.T) {
	gen := NewUniform(1000)
	first := gen.NextBatch(2)
	second := gen.NextBatch(2)
	require.NotEqual(t, first[0].Key, second[0].Key)
}

func TestDispatcherSubmitTargetsBelievedPrimary(t *testing.T) {
	sender := newFakeSender()
	d := New(4, 4, fakeSigner{}, sender, mclock.System{}, nil)

	d.OnViewChange(2) // primary(2, n=4) == 2
	_, err := d.Submit([]wire.Request{{Op: wire.OpPut, Key: "k", Value: "v"}})
	require.NoError(t, err)
	require.Len(t, sender.out[2], 1)
	require.Equal(t, 1, d.OutstandingCount())
}

func TestDispatcherOnResponseClearsOutstanding(t *testing.T) {
	sender := newFakeSender()
	d := New(4, 4, fakeSigner{}, sender, mclock.System{}, nil)

	batch, err := d.Submit([]wire.Request{{Op: wire.OpPut, Key: "k", Value: "v"}})
	require.NoError(t, err)
	require.Equal(t, 1, d.OutstandingCount())

	d.OnResponse(wire.ClientResponse{View: 0, Slots: []wire.ResponseSlot{{TxnID: 1, ClientStartTS: batch.Queries[0].ClientStartTS}}})
	require.Equal(t, 0, d.OutstandingCount())
}

func TestDispatcherRetryStaleResendsToNewPrimary(t *testing.T) {
	sender := newFakeSender()
	d := New(4, 4, fakeSigner{}, sender, mclock.System{}, nil)

	_, err := d.Submit([]wire.Request{{Op: wire.OpPut, Key: "k", Value: "v"}})
	require.NoError(t, err)

	d.OnViewChange(1) // primary moves to replica 1
	require.NoError(t, d.RetryStale(mclock.Now().Add(1)))
	require.Len(t, sender.out[1], 1, "the stale batch must be resent to the new believed primary")
}
