package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

func vote(sender uint32, txnID uint64) (wire.Envelope, wire.Checkpoint) {
	return wire.Envelope{Header: wire.Header{Sig: []byte{byte(sender)}}}, wire.Checkpoint{TxnID: txnID, Sender: sender}
}

func TestOnCheckpointAdvancesWatermarkAtQuorum(t *testing.T) {
	table := txntable.NewTable(txntable.DefaultConfig(), nil)
	m := New(Config{N: 4, WindowSize: 10}, table, nil)

	env1, c1 := vote(1, 20)
	justStable, _ := m.OnCheckpoint(env1, c1)
	require.False(t, justStable)
	require.Equal(t, uint64(0), m.LowWatermark())

	env2, c2 := vote(2, 20)
	justStable, _ = m.OnCheckpoint(env2, c2)
	require.False(t, justStable)

	env3, c3 := vote(3, 20)
	justStable, cert := m.OnCheckpoint(env3, c3)
	require.True(t, justStable)
	require.Equal(t, uint64(20), m.LowWatermark())
	require.Equal(t, uint64(20), cert.TxnID)
	require.ElementsMatch(t, []uint32{1, 2, 3}, cert.Signers)
}

func TestOnCheckpointIgnoresDuplicateSenderAndStale(t *testing.T) {
	table := txntable.NewTable(txntable.DefaultConfig(), nil)
	m := New(Config{N: 4, WindowSize: 10}, table, nil)

	env1, c1 := vote(1, 20)
	m.OnCheckpoint(env1, c1)
	justStable, _ := m.OnCheckpoint(env1, c1) // duplicate sender, same id
	require.False(t, justStable)

	env2, c2 := vote(2, 20)
	env3, c3 := vote(3, 20)
	m.OnCheckpoint(env2, c2)
	justStable, _ = m.OnCheckpoint(env3, c3)
	require.True(t, justStable)

	// A vote for an id at or below the new low watermark is stale.
	env4, c4 := vote(1, 20)
	justStable, _ = m.OnCheckpoint(env4, c4)
	require.False(t, justStable)
}

func TestOnCheckpointReleasesManagersBelowWindow(t *testing.T) {
	table := txntable.NewTable(txntable.DefaultConfig(), nil)
	m := New(Config{N: 4, WindowSize: 10}, table, nil)

	table.GetOrCreate(5) // well below 20 - WindowSize(10) = 10

	for _, s := range []uint32{1, 2, 3} {
		env, c := vote(s, 20)
		m.OnCheckpoint(env, c)
	}
	require.True(t, table.WasGarbageCollected(5))
}
