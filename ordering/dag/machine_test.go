package dag

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/ordering/dag/fairness"
	"github.com/bftcore/bftcore/queue"
	"github.com/bftcore/bftcore/wire"
)

type fakeSigner struct{}

func (fakeSigner) Method() wire.CryptoMethod { return wire.CryptoED25519 }
func (fakeSigner) Sign(canonical []byte, dst uint32) ([]byte, []byte, error) {
	return []byte("sig"), []byte("key"), nil
}

type fakeVerifier struct{}

func (fakeVerifier) Method() wire.CryptoMethod { return wire.CryptoED25519 }
func (fakeVerifier) Verify(canonical, sig, key []byte, sender, self uint32) error { return nil }

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

func req(n int) []wire.Request {
	out := make([]wire.Request, n)
	for i := range out {
		out[i] = wire.Request{Op: 1, Key: "k", Value: "v"}
	}
	return out
}

func TestWaveLeaderDeterministic(t *testing.T) {
	require.Equal(t, uint32(0), WaveLeader(0, 4))
	require.Equal(t, uint32(0), WaveLeader(1, 4))
	require.Equal(t, uint32(1), WaveLeader(2, 4))
}

// certify drives enough additional OnCert votes (beyond the self-vote
// already recorded by OnBlock/selfCertify) for blk to reach quorum on m's
// ProposalManager, simulating the remaining honest replicas' broadcast
// votes arriving.
func certify(t *testing.T, m *Machine, blk wire.DAGBlock, voters ...uint32) {
	for _, v := range voters {
		require.NoError(t, m.OnCert(wire.Envelope{Header: wire.Header{ReturnNodeID: v}}, wire.DAGCert{Round: blk.Round, Hash: blk.Hash, Sender: v}))
	}
	_, ok := m.pm.Certified(blk.Hash)
	require.True(t, ok, "block round %d proposer %d should be certified", blk.Round, blk.Proposer)
}

func blockAt(proposer uint32, round uint64, strong []wire.QuorumCert, weak []common.Hash, reqs []wire.Request) wire.DAGBlock {
	canon := make([][]byte, len(reqs))
	arrival := make([]common.Hash, len(reqs))
	for i, r := range reqs {
		canon[i] = wire.RequestCanonical(r)
		arrival[i] = fairness.RequestHash(r)
	}
	strongHashes := make([]common.Hash, len(strong))
	for i, c := range strong {
		strongHashes[i] = c.Hash
	}
	hash := wire.DAGBlockHash(proposer, round, canon, strongHashes, weak, arrival)
	return wire.DAGBlock{Proposer: proposer, Round: round, Hash: hash, StrongCerts: strong, WeakParents: weak, Requests: reqs, ArrivalOrder: arrival}
}

// TestDAGWaveCommit drives the spec's literal DAG scenario (§8 scenario 4,
// adapted to 0-indexed rounds): four replicas each propose a genesis block
// at round 0; once all four are certified, replicas 0-2 each propose a
// round-1 block strong-citing the same three round-0 certificates (including the round-0
// wave leader's); a single round-2 block citing three round-1 certificates
// then closes the wave, committing the round-0 leader's block and
// dispatching its transaction for execution.
func TestDAGWaveCommit(t *testing.T) {
	pm := NewProposalManager()
	sender := newFakeSender()
	wq := queue.NewWorkQueues(4)
	m := New(Config{SelfID: 3, Peers: []uint32{0, 1, 2}, N: 4}, pm, fakeVerifier{}, fakeSigner{}, sender, wq, nil)

	// Round 0: four independent genesis blocks, one per proposer.
	b0 := blockAt(0, 0, nil, nil, req(1))
	b1 := blockAt(1, 0, nil, nil, req(1))
	b2 := blockAt(2, 0, nil, nil, req(1))
	b3 := blockAt(3, 0, nil, nil, req(1))

	require.NoError(t, m.OnBlock(wire.Envelope{Header: wire.Header{ReturnNodeID: 0}}, b0))
	certify(t, m, b0, 1, 2)
	require.NoError(t, m.OnBlock(wire.Envelope{Header: wire.Header{ReturnNodeID: 1}}, b1))
	certify(t, m, b1, 0, 2)
	require.NoError(t, m.OnBlock(wire.Envelope{Header: wire.Header{ReturnNodeID: 2}}, b2))
	certify(t, m, b2, 0, 1)

	added, err := pm.AddBlock(b3)
	require.NoError(t, err)
	require.True(t, added)
	require.NoError(t, m.selfCertify(b3))
	certify(t, m, b3, 0, 1)

	certB0, ok := pm.Certified(b0.Hash)
	require.True(t, ok)
	certB1, ok := pm.Certified(b1.Hash)
	require.True(t, ok)
	certB2, ok := pm.Certified(b2.Hash)
	require.True(t, ok)
	strong1 := []wire.QuorumCert{certB0, certB1, certB2}

	// Round 1: proposers 0-2's blocks strong-cite the same three round-0
	// certificates, including the round-0 wave leader's (b0, proposer 0).
	b0_1 := blockAt(0, 1, strong1, nil, req(1))
	b1_1 := blockAt(1, 1, strong1, nil, req(1))
	b2_1 := blockAt(2, 1, strong1, nil, req(1))

	require.NoError(t, m.OnBlock(wire.Envelope{Header: wire.Header{ReturnNodeID: 0}}, b0_1))
	certify(t, m, b0_1, 1, 2)
	require.NoError(t, m.OnBlock(wire.Envelope{Header: wire.Header{ReturnNodeID: 1}}, b1_1))
	certify(t, m, b1_1, 0, 2)
	require.NoError(t, m.OnBlock(wire.Envelope{Header: wire.Header{ReturnNodeID: 2}}, b2_1))
	certify(t, m, b2_1, 0, 1)

	certB0_1, ok := pm.Certified(b0_1.Hash)
	require.True(t, ok)
	certB1_1, ok := pm.Certified(b1_1.Hash)
	require.True(t, ok)
	certB2_1, ok := pm.Certified(b2_1.Hash)
	require.True(t, ok)
	strong2 := []wire.QuorumCert{certB0_1, certB1_1, certB2_1}

	// Round 2: a single block citing three round-1 certificates closes the
	// wave over the round-0 leader's block.
	b_2 := blockAt(1, 2, strong2, nil, nil)
	require.NoError(t, m.OnBlock(wire.Envelope{Header: wire.Header{ReturnNodeID: 1}}, b_2))

	require.True(t, pm.IsCommitted(b0.Hash), "round-0 wave leader's block should have committed")

	env, ok := wq.Execution(1).TryPop()
	require.True(t, ok, "commit should have dispatched an EXECUTE")
	exec := env.Body.(wire.Execute)
	require.Equal(t, uint64(1), exec.StartIndex)
	require.Equal(t, uint64(1), exec.EndIndex)
	require.Equal(t, b0.Requests, exec.Requests)
}

func TestProposeBlockRequiresQuorumCertifiedParents(t *testing.T) {
	pm := NewProposalManager()
	sender := newFakeSender()
	wq := queue.NewWorkQueues(4)
	m := New(Config{SelfID: 0, Peers: []uint32{1, 2, 3}, N: 4}, pm, fakeVerifier{}, fakeSigner{}, sender, wq, nil)

	_, err := m.ProposeBlock(1, req(1))
	require.Error(t, err, "round 1 needs Q certified round-0 blocks, none exist yet")
}

func TestProposeBlockGenesisNeedsNoParents(t *testing.T) {
	pm := NewProposalManager()
	sender := newFakeSender()
	wq := queue.NewWorkQueues(4)
	m := New(Config{SelfID: 0, Peers: []uint32{1, 2, 3}, N: 4}, pm, fakeVerifier{}, fakeSigner{}, sender, wq, nil)

	blk, err := m.ProposeBlock(0, req(1))
	require.NoError(t, err)
	require.Empty(t, blk.StrongCerts)
	for _, dst := range []uint32{1, 2, 3} {
		require.Len(t, sender.out[dst], 1) // DAG_BLOCK broadcast; self-certify never sends
		require.Equal(t, wire.RTypeDAGBlock, sender.out[dst][0].Header.Rtype)
	}
}
