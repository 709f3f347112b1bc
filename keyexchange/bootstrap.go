// Package keyexchange implements the bootstrap key-distribution barrier
// (§4.3): every replica broadcasts its verification material, tracks a
// per-peer outstanding-keys counter, and only emits READY to clients once
// every counter reaches zero. After READY the process is sealed — no new
// keys are accepted.
package keyexchange

import (
	"fmt"
	"sync"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/wire"
)

// Sender is the subset of transport.Transport the bootstrap barrier needs;
// kept narrow so tests can fake it without spinning up real sockets.
type Sender interface {
	Send(dst uint32, msg wire.Envelope, force bool) error
}

// Bootstrap runs the key-exchange barrier for one replica.
type Bootstrap struct {
	selfID    uint32
	replicas  []uint32 // every replica id except self
	clients   []uint32
	method    wire.CryptoMethod
	publicKey []byte
	sender    Sender
	log       log.Logger

	mu       sync.Mutex
	sealed   bool
	pending  map[uint32]struct{} // replicas whose key we're still waiting on
	received bftcrypto.PeerKeys

	readyOnce sync.Once
	readyCh   chan struct{}
}

// New constructs a Bootstrap for selfID, given the full replica id set
// (excluding self), the client id set, the configured crypto method, and
// this replica's own public key/verification material to broadcast.
func New(selfID uint32, replicas, clients []uint32, method wire.CryptoMethod, publicKey []byte, sender Sender, l log.Logger) *Bootstrap {
	pending := make(map[uint32]struct{}, len(replicas))
	for _, r := range replicas {
		pending[r] = struct{}{}
	}
	return &Bootstrap{
		selfID:    selfID,
		replicas:  replicas,
		clients:   clients,
		method:    method,
		publicKey: publicKey,
		sender:    sender,
		log:       l,
		pending:   pending,
		received:  make(bftcrypto.PeerKeys),
		readyCh:   make(chan struct{}),
	}
}

// Start broadcasts this replica's own key material to every peer replica.
// It does not block; call Ready() to wait for the barrier to release.
func (b *Bootstrap) Start() error {
	env := wire.Envelope{
		Header: wire.Header{Rtype: wire.RTypeKeyExchange, ReturnNodeID: b.selfID},
		Body:   wire.KeyExchange{Algorithm: b.method, PublicKey: b.publicKey, ReplicaID: b.selfID},
	}
	for _, r := range b.replicas {
		if err := b.sender.Send(r, env, true); err != nil {
			return fmt.Errorf("keyexchange: broadcast to %d: %w", r, err)
		}
	}
	return nil
}

// OnKeyExchange processes a KeyExchange message received from a peer. Once
// every peer's key has been received, it broadcasts READY to every client
// and closes the channel returned by Ready(). Any key received after the
// barrier has already released is ignored — "the process is sealed" (§4.3).
func (b *Bootstrap) OnKeyExchange(m wire.KeyExchange) error {
	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		if b.log != nil {
			b.log.Warn("keyexchange: key received after seal, dropping", "replica", m.ReplicaID)
		}
		return nil
	}
	b.received[m.ReplicaID] = m.PublicKey
	delete(b.pending, m.ReplicaID)
	done := len(b.pending) == 0
	if done {
		b.sealed = true
	}
	b.mu.Unlock()

	if !done {
		return nil
	}
	return b.release()
}

func (b *Bootstrap) release() error {
	ready := wire.Envelope{
		Header: wire.Header{Rtype: wire.RTypeReady, ReturnNodeID: b.selfID},
		Body:   wire.Ready{ReplicaID: b.selfID},
	}
	for _, c := range b.clients {
		if err := b.sender.Send(c, ready, true); err != nil {
			return fmt.Errorf("keyexchange: READY to client %d: %w", c, err)
		}
	}
	b.readyOnce.Do(func() { close(b.readyCh) })
	return nil
}

// Ready returns a channel closed once every peer's key has been collected
// and READY has been sent to every client (§4.3, §5 "Suspension points:
// key-exchange barrier").
func (b *Bootstrap) Ready() <-chan struct{} {
	return b.readyCh
}

// Keys returns the frozen PeerKeys map for handoff to bftcrypto.NewVerifier
// once the barrier has released. Calling this before Ready() closes returns
// a partial, still-mutating map and is a caller error.
func (b *Bootstrap) Keys() bftcrypto.PeerKeys {
	b.mu.Lock()
	defer b.mu.Unlock()
	frozen := make(bftcrypto.PeerKeys, len(b.received))
	for k, v := range b.received {
		frozen[k] = v
	}
	return frozen
}
