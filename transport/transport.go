// Package transport implements the per-peer reliable framed byte channel
// (§4.1): one listening endpoint and one connected endpoint per remote
// replica and per client, a send-thread per peer that buffers and flushes
// wire.Frames, and a failed-peer set consulted by every future send.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/bftcore/bftcore/wire"
)

// Config tunes a Transport (§6 TPORT_TYPE, TPORT_PORT, MSG_SIZE_MAX).
type Config struct {
	// Network is "tcp" or "unix" (TPORT_TYPE = TCP / IPC).
	Network string
	// MaxFrameMessages is the count threshold that forces a flush even
	// before the buffer fills (§4.1).
	MaxFrameMessages int
	// DialTimeout bounds connection setup during the setup barrier
	// (§5 "Suspension points").
	DialTimeout time.Duration
	// SendTimeout bounds a single flush; on expiry the peer is marked
	// failed rather than the sending thread blocking indefinitely
	// (§4.1, §7(d)).
	SendTimeout time.Duration
}

// DefaultConfig matches the teacher's own conservative network defaults.
func DefaultConfig() Config {
	return Config{
		Network:          "tcp",
		MaxFrameMessages: 64,
		DialTimeout:      5 * time.Second,
		SendTimeout:      2 * time.Second,
	}
}

// Transport owns one listening endpoint and a connected endpoint per known
// peer (§4.1). PeerID 0..N-1 are replicas; client ids are allocated above N
// by the caller's convention.
type Transport struct {
	cfg      Config
	selfID   uint32
	listener net.Listener

	mu      sync.RWMutex
	peers   map[uint32]*peerConn
	failed  map[uint32]struct{}
}

type peerConn struct {
	id   uint32
	addr string

	mu      sync.Mutex
	conn    net.Conn
	pending []wire.Envelope
}

// New constructs a Transport bound to listenAddr. Peers are added with
// AddPeer once their addresses are known (§6 SCHEMA_PATH/ifconfig.txt).
func New(cfg Config, selfID uint32, listenAddr string) (*Transport, error) {
	l, err := net.Listen(cfg.Network, listenAddr)
	if err != nil {
		return nil, err
	}
	return &Transport{
		cfg:      cfg,
		selfID:   selfID,
		listener: l,
		peers:    make(map[uint32]*peerConn),
		failed:   make(map[uint32]struct{}),
	}, nil
}

// Close releases the listening endpoint and every open peer connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.peers {
		p.mu.Lock()
		if p.conn != nil {
			p.conn.Close()
		}
		p.mu.Unlock()
	}
	return t.listener.Close()
}

// AddPeer registers a remote replica or client's address. The connection is
// dialed lazily on first Send.
func (t *Transport) AddPeer(id uint32, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[id] = &peerConn{id: id, addr: addr}
}

// Failed reports whether id has been placed in the failed-peer set for the
// remainder of the view (§4.1): failed peers are never retried within a
// view, only reset by the caller on a new view.
func (t *Transport) Failed(id uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, failed := t.failed[id]
	return failed
}

// ResetFailed clears the failed-peer set, called on view-change completion
// (§4.11) so the new view gets a clean slate of connectivity assumptions.
func (t *Transport) ResetFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = make(map[uint32]struct{})
}

// Send appends msg to dst's pending buffer and flushes when the buffer
// reaches MaxFrameMessages or force is set (checkpoint, view-change,
// new-view, §4.1). On any send error dst is added to the failed-peer set
// and Send returns nil — transport failures are never fatal (§7(d)). A
// message for a peer already in the failed-peer set is dropped without a
// send attempt.
func (t *Transport) Send(dst uint32, msg wire.Envelope, force bool) error {
	t.mu.RLock()
	p, ok := t.peers[dst]
	_, failed := t.failed[dst]
	t.mu.RUnlock()
	if !ok || failed {
		return nil
	}

	p.mu.Lock()
	p.pending = append(p.pending, msg)
	shouldFlush := force || len(p.pending) >= t.cfg.MaxFrameMessages
	var batch []wire.Envelope
	if shouldFlush {
		batch = p.pending
		p.pending = nil
	}
	p.mu.Unlock()

	if !shouldFlush {
		return nil
	}
	return t.flush(p, batch)
}

func (t *Transport) flush(p *peerConn, batch []wire.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		conn, err := net.DialTimeout(t.cfg.Network, p.addr, t.cfg.DialTimeout)
		if err != nil {
			t.markFailed(p.id)
			return nil
		}
		p.conn = conn
	}
	p.conn.SetWriteDeadline(time.Now().Add(t.cfg.SendTimeout))
	frame := wire.Frame{Dst: p.id, Src: t.selfID, Messages: batch}
	if err := wire.EncodeFrame(p.conn, frame); err != nil {
		p.conn.Close()
		p.conn = nil
		t.markFailed(p.id)
		return nil
	}
	return nil
}

func (t *Transport) markFailed(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed[id] = struct{}{}
}

// Accept blocks (honoring ctx) for the next inbound connection and returns
// it for a caller-supplied input thread to read Frames from via
// wire.DecodeFrame (§4.1 "Receive blocks (with timeout)...").
func (t *Transport) Accept(ctx context.Context) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := t.listener.Accept()
		ch <- result{c, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
