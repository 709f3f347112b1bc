package blockchainlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/wire"
)

func TestAppendThenReplayRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.log")
	lg, err := Open(path, nil)
	require.NoError(t, err)

	bp := wire.BatchReq{View: 1, EndIndex: 7, BatchSize: 2, Requests: []wire.Request{
		{Op: wire.OpPut, Key: "k", Value: "v"},
	}}
	sigs := map[uint32][]byte{2: []byte("sig2"), 1: []byte("sig1"), 3: []byte("sig3")}
	require.NoError(t, lg.Append(42, 1, common.Hash{0xaa}, bp, sigs))
	require.NoError(t, lg.Close())

	entries, err := Replay(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.EqualValues(t, 42, e.TxnID)
	require.EqualValues(t, 1, e.View)
	require.Equal(t, common.Hash{0xaa}, e.Hash)
	require.Equal(t, bp.EndIndex, e.PrePrepare.EndIndex)
	require.Equal(t, []uint32{1, 2, 3}, e.CommitSigners, "signers must be sorted for a deterministic on-disk encoding")
	require.Equal(t, [][]byte{[]byte("sig1"), []byte("sig2"), []byte("sig3")}, e.CommitSigs)
}

func TestAppendMultipleEntriesPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.log")
	lg, err := Open(path, nil)
	require.NoError(t, err)

	for i := uint64(1); i <= 3; i++ {
		bp := wire.BatchReq{View: 0, EndIndex: i}
		require.NoError(t, lg.Append(i, 0, common.Hash{byte(i)}, bp, nil))
	}
	require.NoError(t, lg.Close())

	entries, err := Replay(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		require.EqualValues(t, i+1, e.TxnID)
	}
}

func TestReplayMissingFileErrors(t *testing.T) {
	_, err := Replay(filepath.Join(t.TempDir(), "nope.log"))
	require.Error(t, err)
}

func TestOpenAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.log")
	lg1, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, lg1.Append(1, 0, common.Hash{1}, wire.BatchReq{}, nil))
	require.NoError(t, lg1.Close())

	lg2, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, lg2.Append(2, 0, common.Hash{2}, wire.BatchReq{}, nil))
	require.NoError(t, lg2.Close())

	entries, err := Replay(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
