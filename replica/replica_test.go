package replica

import (
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/blockchainlog"
	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/config"
	"github.com/bftcore/bftcore/wire"
)

type fakeVerifier struct{ fail bool }

func (fakeVerifier) Method() wire.CryptoMethod { return wire.CryptoED25519 }
func (v fakeVerifier) Verify(canonical, sig, key []byte, sender, self uint32) error {
	if v.fail {
		return errors.New("verification failed")
	}
	return nil
}

func newTestReplica(t *testing.T, selfID uint32) *Replica {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.NodeCnt = 4
	cfg.SelfID = selfID

	r, err := New(Config{
		Core: cfg,
		SelfID: selfID,
		ReplicaAddrs: map[uint32]string{
			0: "127.0.0.1:0",
			1: "127.0.0.1:0",
			2: "127.0.0.1:0",
			3: "127.0.0.1:0",
		},
		ClientIDs:       []uint32{4},
		SigningMaterial: priv,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNewWiresPeersExcludingSelf(t *testing.T) {
	r := newTestReplica(t, 1)
	require.Equal(t, uint32(4), r.n)
	sort.Slice(r.peers, func(i, j int) bool { return r.peers[i] < r.peers[j] })
	require.Equal(t, []uint32{0, 2, 3}, r.peers)
}

func TestClassifyRoutesKeyExchangeIntoBootstrap(t *testing.T) {
	r := newTestReplica(t, 1)
	ke := wire.KeyExchange{Algorithm: wire.CryptoED25519, PublicKey: []byte("pub-0"), ReplicaID: 0}
	r.classify(wire.Envelope{Header: wire.Header{Rtype: wire.RTypeKeyExchange, ReturnNodeID: 0}, Body: ke})

	keys := r.bootstrap.Keys()
	require.Equal(t, []byte("pub-0"), keys[0])
}

func TestClassifyRoutesReadyAsNoop(t *testing.T) {
	r := newTestReplica(t, 1)
	require.NotPanics(t, func() {
		r.classify(wire.Envelope{Header: wire.Header{Rtype: wire.RTypeReady}, Body: wire.Ready{ReplicaID: 0}})
	})
	_, ok := r.queues.Worker.TryPop()
	require.False(t, ok)
}

func TestClassifyRoutesClientBatchAndCheckpointToTheirOwnQueues(t *testing.T) {
	r := newTestReplica(t, 1)

	cb := wire.ClientBatch{ReturnNode: 4, BatchSize: 1}
	r.classify(wire.Envelope{Header: wire.Header{Rtype: wire.RTypeClientBatch}, Body: cb})
	env, ok := r.queues.NewTxn.TryPop()
	require.True(t, ok)
	require.Equal(t, wire.RTypeClientBatch, env.Header.Rtype)

	chk := wire.Checkpoint{TxnID: 10}
	r.classify(wire.Envelope{Header: wire.Header{Rtype: wire.RTypeCheckpoint}, Body: chk})
	env, ok = r.queues.Checkpoint.TryPop()
	require.True(t, ok)
	require.Equal(t, wire.RTypeCheckpoint, env.Header.Rtype)
}

func TestClassifyRoutesEverythingElseToWorker(t *testing.T) {
	r := newTestReplica(t, 1)
	r.classify(wire.Envelope{Header: wire.Header{Rtype: wire.RTypePrepare}, Body: wire.Prepare{View: 0, Index: 1}})
	env, ok := r.queues.Worker.TryPop()
	require.True(t, ok)
	require.Equal(t, wire.RTypePrepare, env.Header.Rtype)
}

func TestVerifyGatesOnVerifierOutcome(t *testing.T) {
	r := newTestReplica(t, 1)
	r.verifier = fakeVerifier{}
	require.True(t, r.verify(wire.Envelope{Body: wire.Prepare{}}))

	r.verifier = fakeVerifier{fail: true}
	require.False(t, r.verify(wire.Envelope{Body: wire.Prepare{}}))

	r.verifier = nil
	require.False(t, r.verify(wire.Envelope{Body: wire.Prepare{}}))
}

func TestDispatchBatchReqStoresPrePrepareOnClassicalMachine(t *testing.T) {
	r := newTestReplica(t, 1)
	require.NoError(t, r.buildOrderingMachine(fakeVerifier{}))
	require.NotNil(t, r.classicalM)

	reqs := []wire.Request{{Op: wire.OpPut, Key: "k", Value: "v"}}
	bp := wire.BatchReq{View: 0, EndIndex: 1, BatchSize: 1, Hash: wire.BatchHash([][]byte{wire.RequestCanonical(reqs[0])}), Requests: reqs}
	r.classicalM.AdvanceWatermark(0, 1000)

	r.dispatch(wire.Envelope{Header: wire.Header{Rtype: wire.RTypeBatchReq, ReturnNodeID: 0}, Body: bp})

	rep := r.table.GetOrCreate(1)
	require.True(t, rep.HasPrePrepare())
}

func TestOnCommitLocalAppendsEntryToBlockchainLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.log")
	lg, err := blockchainlog.Open(path, nil)
	require.NoError(t, err)

	r := newTestReplica(t, 1)
	r.chainLog = lg // r.Close() (via t.Cleanup) closes lg; nothing else touches it

	reqs := []wire.Request{{Op: wire.OpPut, Key: "k", Value: "v"}}
	bp := wire.BatchReq{View: 0, EndIndex: 1, BatchSize: 1, Hash: wire.BatchHash([][]byte{wire.RequestCanonical(reqs[0])}), Requests: reqs}
	rep := r.table.GetOrCreate(1)
	rep.SetPrePrepare(bp.Hash, &bp)
	rep.RecordCommitSig(0, []byte("sig-0"))
	rep.AddCommit(0)

	r.onCommitLocal(rep, 0, 1, bp.Hash)
	require.NoError(t, r.chainLog.Close())
	r.chainLog = nil // so t.Cleanup's r.Close() doesn't close it a second time

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestOnCommitLocalIsNoopWithoutPrePrepare(t *testing.T) {
	r := newTestReplica(t, 1)
	dir := t.TempDir()
	lg, err := blockchainlog.Open(filepath.Join(dir, "chain.log"), nil)
	require.NoError(t, err)
	r.chainLog = lg // closed once, by t.Cleanup's r.Close()

	rep := r.table.GetOrCreate(5)
	require.NotPanics(t, func() { r.onCommitLocal(rep, 0, 5, common.Hash{}) })
}
