package keyexchange

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/wire"
)

type fakeSender struct {
	mu  sync.Mutex
	out map[uint32][]wire.Envelope
}

func newFakeSender() *fakeSender {
	return &fakeSender{out: make(map[uint32][]wire.Envelope)}
}

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

func TestBootstrapBroadcastsOwnKeyOnStart(t *testing.T) {
	s := newFakeSender()
	b := New(1, []uint32{2, 3}, []uint32{100}, wire.CryptoED25519, []byte("pub-1"), s, nil)

	require.NoError(t, b.Start())
	require.Len(t, s.sent(2), 1)
	require.Len(t, s.sent(3), 1)
	require.Equal(t, wire.RTypeKeyExchange, s.sent(2)[0].Header.Rtype)
}

func TestBootstrapReleasesOnceAllPeerKeysArrive(t *testing.T) {
	s := newFakeSender()
	b := New(1, []uint32{2, 3}, []uint32{100, 101}, wire.CryptoED25519, []byte("pub-1"), s, nil)

	select {
	case <-b.Ready():
		t.Fatal("should not be ready before any peer keys arrive")
	default:
	}

	require.NoError(t, b.OnKeyExchange(wire.KeyExchange{Algorithm: wire.CryptoED25519, PublicKey: []byte("pub-2"), ReplicaID: 2}))
	select {
	case <-b.Ready():
		t.Fatal("should not be ready with only one of two peer keys")
	default:
	}

	require.NoError(t, b.OnKeyExchange(wire.KeyExchange{Algorithm: wire.CryptoED25519, PublicKey: []byte("pub-3"), ReplicaID: 3}))
	select {
	case <-b.Ready():
	default:
		t.Fatal("should be ready once every peer key has arrived")
	}

	require.Len(t, s.sent(100), 1)
	require.Len(t, s.sent(101), 1)
	require.Equal(t, wire.RTypeReady, s.sent(100)[0].Header.Rtype)

	keys := b.Keys()
	require.Equal(t, []byte("pub-2"), keys[2])
	require.Equal(t, []byte("pub-3"), keys[3])
}

func TestBootstrapIgnoresKeysReceivedAfterSeal(t *testing.T) {
	s := newFakeSender()
	b := New(1, []uint32{2}, []uint32{100}, wire.CryptoED25519, []byte("pub-1"), s, nil)

	require.NoError(t, b.OnKeyExchange(wire.KeyExchange{ReplicaID: 2, PublicKey: []byte("pub-2")}))
	require.Len(t, s.sent(100), 1)

	// A duplicate/late key for an already-known replica must not re-emit READY.
	require.NoError(t, b.OnKeyExchange(wire.KeyExchange{ReplicaID: 2, PublicKey: []byte("pub-2-late")}))
	require.Len(t, s.sent(100), 1)
	require.Equal(t, []byte("pub-2"), b.Keys()[2])
}
