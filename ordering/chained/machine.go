// Package chained implements the rotating-leader, certificate-pipelined
// ordering variant (§4.7): per round k the leader extends a parent
// QuorumCert with a new proposal, non-leaders vote directly to
// leader(k+1), and a proposal commits under the classical three-chain
// rule once three consecutive rounds are linked by QCs.
package chained

import (
	"fmt"
	"sync"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/queue"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/wire"
)

// Sender is the narrow outbound dependency, satisfied by transport.Transport.
type Sender interface {
	Send(dst uint32, msg wire.Envelope, force bool) error
}

// NextBatchFunc supplies the leader's next round's request batch, e.g.
// sourced from the same client-batch queue feeding the classical leader's
// batching thread. ok is false when no batch is ready yet, in which case
// the round leader simply does not propose (liveness resumes once a batch
// arrives; the spec places no obligation on empty-block production).
type NextBatchFunc func(round uint64) (requests []wire.Request, endIndex uint64, ok bool)

// Config fixes the replica set and this replica's identity.
type Config struct {
	SelfID uint32
	Peers  []uint32 // every other replica id
	N      uint32
}

// LeaderOf returns the deterministic round-robin leader for round, the
// chained variant's "round-based analogue" of the classical v mod N rule
// (§3 Data Model): (k+1) mod N — round k's proposal is led by leader(k),
// and the next round rotates to leader(k+1).
func LeaderOf(round uint64, n uint32) uint32 {
	return uint32((round + 1) % uint64(n))
}

// Quorum returns Q = 2f+1 for an N = 3f+1 replica set, identical to the
// classical variant (§3).
func Quorum(n uint32) uint32 {
	f := (n - 1) / 3
	return 2*f + 1
}

type chainEntry struct {
	proposal wire.ChainedProposal
}

// Machine runs the chained ordering state machine for one replica.
type Machine struct {
	cfg       Config
	quorum    uint32
	table     *txntable.Table
	verify    bftcrypto.Verifier
	sign      bftcrypto.Signer
	sender    Sender
	queues    *queue.WorkQueues
	log       log.Logger
	nextBatch NextBatchFunc

	mu        sync.Mutex
	chain     map[uint64]chainEntry           // round -> proposal seen/made at that round
	votes     map[uint64]map[uint32][]byte    // round -> voter -> signature, for the proposal AT that round
	committed map[uint64]struct{}             // rounds whose batch has already been committed
}

// New constructs a Machine. nextBatch may be nil if this replica never
// leads a round (it can still vote and relay).
func New(cfg Config, table *txntable.Table, verify bftcrypto.Verifier, sign bftcrypto.Signer, sender Sender, queues *queue.WorkQueues, nextBatch NextBatchFunc, l log.Logger) *Machine {
	return &Machine{
		cfg:       cfg,
		quorum:    Quorum(cfg.N),
		table:     table,
		verify:    verify,
		sign:      sign,
		sender:    sender,
		queues:    queues,
		nextBatch: nextBatch,
		log:       l,
		chain:     make(map[uint64]chainEntry),
		votes:     make(map[uint64]map[uint32][]byte),
		committed: make(map[uint64]struct{}),
	}
}

// Propose builds, stores, and broadcasts this replica's proposal for
// round, extending qc (the aggregated QuorumCert for round-1; the zero
// value for the genesis round 0).
func (m *Machine) Propose(round uint64, qc wire.QuorumCert, requests []wire.Request, endIndex uint64) error {
	canonicals := make([][]byte, len(requests))
	for i, r := range requests {
		canonicals[i] = wire.RequestCanonical(r)
	}
	hash := wire.BatchHash(canonicals)
	prop := wire.ChainedProposal{
		Round:     round,
		EndIndex:  endIndex,
		BatchSize: uint32(len(requests)),
		Hash:      hash,
		ParentQC:  qc,
		Requests:  requests,
	}

	m.mu.Lock()
	m.chain[round] = chainEntry{proposal: prop}
	m.mu.Unlock()

	rep := m.table.GetOrCreate(endIndex)
	rep.SetPrePrepare(hash, &wire.BatchReq{View: round, EndIndex: endIndex, BatchSize: prop.BatchSize, Hash: hash, Requests: requests})

	canonical := prop.CanonicalString(wire.Header{})
	for _, dst := range m.cfg.Peers {
		sig, key, err := m.sign.Sign(canonical, dst)
		if err != nil {
			return fmt.Errorf("chained: sign proposal round %d for %d: %w", round, dst, err)
		}
		env := wire.Envelope{
			Header: wire.Header{Rtype: wire.RTypeChainedProposal, ReturnNodeID: m.cfg.SelfID, Sig: sig, Key: key},
			Body:   prop,
		}
		if err := m.sender.Send(dst, env, false); err != nil && m.log != nil {
			m.log.Warn("chained: send proposal failed", "round", round, "dst", dst, "err", err)
		}
	}
	m.checkChain(round)
	return nil
}

// OnProposal handles a received ChainedProposal (§4.7): verifies it comes
// from round's leader, stores it, signs its hash, and returns the vote to
// leader(round+1) — never a broadcast.
func (m *Machine) OnProposal(env wire.Envelope, prop wire.ChainedProposal) error {
	if env.ReturnNodeID != LeaderOf(prop.Round, m.cfg.N) {
		if m.log != nil {
			m.log.Warn("chained: proposal from non-leader, dropped", "round", prop.Round, "sender", env.ReturnNodeID)
		}
		return nil
	}
	if err := m.verify.Verify(prop.CanonicalString(env.Header), env.Sig, env.Key, env.ReturnNodeID, m.cfg.SelfID); err != nil {
		if m.log != nil {
			m.log.Warn("chained: proposal signature verification failed", "round", prop.Round, "err", err)
		}
		return nil
	}

	m.mu.Lock()
	m.chain[prop.Round] = chainEntry{proposal: prop}
	m.mu.Unlock()

	rep := m.table.GetOrCreate(prop.EndIndex)
	rep.SetPrePrepare(prop.Hash, &wire.BatchReq{View: prop.Round, EndIndex: prop.EndIndex, BatchSize: prop.BatchSize, Hash: prop.Hash, Requests: prop.Requests})

	m.checkChain(prop.Round)

	vote := wire.ChainedVote{Round: prop.Round, Hash: prop.Hash, Sender: m.cfg.SelfID}
	sig, key, err := m.sign.Sign(vote.CanonicalString(wire.Header{}), LeaderOf(prop.Round+1, m.cfg.N))
	if err != nil {
		return fmt.Errorf("chained: sign vote round %d: %w", prop.Round, err)
	}
	voteEnv := wire.Envelope{
		Header: wire.Header{Rtype: wire.RTypeChainedVote, ReturnNodeID: m.cfg.SelfID, Sig: sig, Key: key},
		Body:   vote,
	}
	return m.sender.Send(LeaderOf(prop.Round+1, m.cfg.N), voteEnv, false)
}

// OnVote handles a received ChainedVote (§4.7): leader(round+1) aggregates
// Q votes into a QuorumCert and immediately proposes at round+1 extending
// it, once nextBatch has a batch ready. Votes arriving at any replica
// other than leader(round+1) are harmlessly recorded but never reach
// quorum, since honest voters only address leader(round+1).
func (m *Machine) OnVote(env wire.Envelope, vote wire.ChainedVote) error {
	m.mu.Lock()
	bucket, ok := m.votes[vote.Round]
	if !ok {
		bucket = make(map[uint32][]byte)
		m.votes[vote.Round] = bucket
	}
	bucket[vote.Sender] = env.Sig
	ready := uint32(len(bucket)) >= m.quorum
	var qc wire.QuorumCert
	if ready {
		qc = buildQuorumCert(vote.Round, vote.Hash, bucket)
		delete(m.votes, vote.Round)
	}
	m.mu.Unlock()
	if !ready || m.nextBatch == nil {
		return nil
	}

	requests, endIndex, ok := m.nextBatch(vote.Round + 1)
	if !ok {
		return nil
	}
	return m.Propose(vote.Round+1, qc, requests, endIndex)
}

// buildQuorumCert deterministically assembles a QuorumCert from an
// already-quorum-sized vote bucket, ordering signers ascending by id so
// two replicas that aggregate the same vote set produce byte-identical
// certificates.
func buildQuorumCert(round uint64, hash common.Hash, votes map[uint32][]byte) wire.QuorumCert {
	signers := make([]uint32, 0, len(votes))
	for s := range votes {
		signers = append(signers, s)
	}
	for i := 1; i < len(signers); i++ {
		for j := i; j > 0 && signers[j-1] > signers[j]; j-- {
			signers[j-1], signers[j] = signers[j], signers[j-1]
		}
	}
	sigs := make([][]byte, len(signers))
	for i, s := range signers {
		sigs[i] = votes[s]
	}
	return wire.QuorumCert{Round: round, Hash: hash, Signers: signers, Signatures: sigs}
}

func (m *Machine) checkChain(round uint64) {
	if round < 2 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.chain[round]
	if !ok || cur.proposal.ParentQC.Round != round-1 {
		return
	}
	parent, ok := m.chain[round-1]
	if !ok || parent.proposal.ParentQC.Round != round-2 {
		return
	}
	grandparent, ok := m.chain[round-2]
	if !ok {
		return
	}
	if _, done := m.committed[round-2]; done {
		return
	}
	m.committed[round-2] = struct{}{}

	env := wire.Envelope{
		Header: wire.Header{Rtype: wire.RTypeExecute},
		Body:   wire.Execute{View: round - 2, EndIndex: grandparent.proposal.EndIndex, Hash: grandparent.proposal.Hash},
	}
	m.queues.Execution(grandparent.proposal.EndIndex).Push(env)
}
