package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bftcore/bftcore/wire"
	"github.com/stretchr/testify/require"
)

var errUnexpectedMessageCount = errors.New("unexpected message count in decoded frame")

func TestSendFlushesOnForceAndReceiverDecodesFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFrameMessages = 1000 // force-only flush for this test

	rx, err := New(cfg, 1, "127.0.0.1:0")
	require.NoError(t, err)
	defer rx.Close()

	tx, err := New(cfg, 0, "127.0.0.1:0")
	require.NoError(t, err)
	defer tx.Close()

	tx.AddPeer(1, rx.listener.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	connCh := make(chan error, 1)
	go func() {
		conn, err := rx.Accept(ctx)
		if err != nil {
			connCh <- err
			return
		}
		frame, err := wire.DecodeFrame(conn)
		if err != nil {
			connCh <- err
			return
		}
		if len(frame.Messages) != 1 {
			connCh <- errUnexpectedMessageCount
			return
		}
		connCh <- nil
	}()

	env := wire.Envelope{Header: wire.Header{Rtype: wire.RTypeCommit}, Body: wire.Commit{View: 1, Index: 1, Sender: 0}}
	require.NoError(t, tx.Send(1, env, true))

	select {
	case err := <-connCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver never decoded a frame")
	}
}

func TestSendToUnknownPeerIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	tx, err := New(cfg, 0, "127.0.0.1:0")
	require.NoError(t, err)
	defer tx.Close()

	env := wire.Envelope{Header: wire.Header{Rtype: wire.RTypeCommit}, Body: wire.Commit{}}
	require.NoError(t, tx.Send(99, env, true))
}

func TestFailedPeerTrackingAndReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DialTimeout = 50 * time.Millisecond
	cfg.SendTimeout = 50 * time.Millisecond

	tx, err := New(cfg, 0, "127.0.0.1:0")
	require.NoError(t, err)
	defer tx.Close()

	tx.AddPeer(7, "127.0.0.1:1") // nothing listens here; dial should fail
	env := wire.Envelope{Header: wire.Header{Rtype: wire.RTypeCommit}, Body: wire.Commit{}}
	require.NoError(t, tx.Send(7, env, true))
	require.True(t, tx.Failed(7))

	tx.ResetFailed()
	require.False(t, tx.Failed(7))
}
