package wire

import (
	"bytes"
	"testing"

	"github.com/bftcore/bftcore/common"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	env := Envelope{
		Header: Header{
			Rtype:         RTypePrepare,
			TxnID:         42,
			BatchID:       7,
			ReturnNodeID:  1,
			LatencyFields: [7]uint64{1, 2, 3, 4, 5, 6, 7},
			Sig:           []byte("sig-bytes"),
			Key:           []byte("key-bytes"),
		},
		Body: Prepare{View: 3, Index: 42, Hash: common.BytesToHash([]byte("hash")), Sender: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeMessage(&buf, env))

	got, err := DecodeMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, env.Header, got.Header)
	require.Equal(t, env.Body, got.Body)
}

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{
		Dst: 1,
		Src: 2,
		Messages: []Envelope{
			{Header: Header{Rtype: RTypeCommit, Sig: []byte{1}, Key: []byte{2}}, Body: Commit{View: 1, Index: 1, Sender: 2}},
			{Header: Header{Rtype: RTypeCheckpoint, Sig: []byte{3}, Key: []byte{4}}, Body: Checkpoint{TxnID: 600, Sender: 2}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, f))

	got, err := DecodeFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, f.Dst, got.Dst)
	require.Equal(t, f.Src, got.Src)
	require.Len(t, got.Messages, 2)
	require.Equal(t, f.Messages[0].Body, got.Messages[0].Body)
	require.Equal(t, f.Messages[1].Body, got.Messages[1].Body)
}

func TestBatchHashDeterministic(t *testing.T) {
	reqs := [][]byte{[]byte("a"), []byte("b")}
	h1 := BatchHash(reqs)
	h2 := BatchHash(reqs)
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, BatchHash([][]byte{[]byte("b"), []byte("a")}))
}

func TestHashUint256RoundTrip(t *testing.T) {
	h := common.BytesToHash([]byte("some-batch-hash"))
	i := HashToUint256(h)
	require.Equal(t, h, Uint256ToHash(i))
}

func TestPrepareCanonicalStringStable(t *testing.T) {
	p := Prepare{View: 1, Index: 2, Hash: common.BytesToHash([]byte("x")), Sender: 3}
	require.Equal(t, p.CanonicalString(Header{}), p.CanonicalString(Header{Rtype: RTypePrepare}))
}
