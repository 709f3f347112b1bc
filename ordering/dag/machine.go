package dag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/ordering/dag/fairness"
	"github.com/bftcore/bftcore/queue"
	"github.com/bftcore/bftcore/wire"
)

// Sender is the narrow outbound dependency, satisfied by transport.Transport.
type Sender interface {
	Send(dst uint32, msg wire.Envelope, force bool) error
}

// Config fixes the replica set size and this replica's identity.
type Config struct {
	SelfID uint32
	Peers  []uint32 // every other replica id
	N      uint32
}

// Quorum returns Q = 2f+1 for an N = 3f+1 replica set (§3), identical to
// the classical and chained variants'.
func Quorum(n uint32) uint32 {
	f := (n - 1) / 3
	return 2*f + 1
}

// WaveLeader returns the deterministic wave leader for round (§4.8's
// "two-round wave": leader(k) = k/2 mod N).
func WaveLeader(round uint64, n uint32) uint32 {
	return uint32((round / 2) % uint64(n))
}

// Machine runs the DAG ordering state machine for one replica: it proposes
// one block per round, certifies peers' blocks, and derives commit order
// from the wave-leader rule over the resulting block graph (§4.8).
type Machine struct {
	cfg         Config
	quorum      uint32
	fairnessCfg fairness.Config
	pm          *ProposalManager
	verify      bftcrypto.Verifier
	sign        bftcrypto.Signer
	sender      Sender
	queues      *queue.WorkQueues
	log         log.Logger

	mu         sync.Mutex
	nextExecID uint64
}

// New constructs a Machine around pm, the shared per-round block/cert
// state (§3 DAG-specific entities).
func New(cfg Config, pm *ProposalManager, verify bftcrypto.Verifier, sign bftcrypto.Signer, sender Sender, queues *queue.WorkQueues, l log.Logger) *Machine {
	quorum := Quorum(cfg.N)
	f := (cfg.N - 1) / 3
	return &Machine{
		cfg:    cfg,
		quorum: quorum,
		fairnessCfg: fairness.Config{
			SolidThreshold:  quorum,
			ShadedThreshold: f + 1,
		},
		pm:         pm,
		verify:     verify,
		sign:       sign,
		sender:     sender,
		queues:     queues,
		log:        l,
		nextExecID: 1,
	}
}

// ProposeBlock builds, stores, and broadcasts this replica's block for
// round, citing Q certified round-1 blocks as strong parents (none for the
// genesis round 0) plus every known uncommitted, uncertified block as a
// weak parent (§4.8, Open Question iii).
func (m *Machine) ProposeBlock(round uint64, requests []wire.Request) (wire.DAGBlock, error) {
	var strong []wire.QuorumCert
	strongHashes := make(map[common.Hash]struct{})
	if round > 0 {
		certs := m.pm.CertifiedAt(round - 1)
		sort.Slice(certs, func(i, j int) bool { return wire.Less(certs[i].Hash, certs[j].Hash) })
		if uint32(len(certs)) < m.quorum {
			return wire.DAGBlock{}, fmt.Errorf("dag: only %d/%d certified blocks known at round %d, cannot propose round %d yet", len(certs), m.quorum, round-1, round)
		}
		strong = certs[:m.quorum]
		for _, c := range strong {
			strongHashes[c.Hash] = struct{}{}
		}
	}
	weak := m.pm.WeakParentCandidates(strongHashes)

	canonicals := make([][]byte, len(requests))
	arrivalOrder := make([]common.Hash, len(requests))
	for i, r := range requests {
		canonicals[i] = wire.RequestCanonical(r)
		arrivalOrder[i] = fairness.RequestHash(r)
	}
	strongParentHashes := make([]common.Hash, len(strong))
	for i, c := range strong {
		strongParentHashes[i] = c.Hash
	}
	hash := wire.DAGBlockHash(m.cfg.SelfID, round, canonicals, strongParentHashes, weak, arrivalOrder)

	blk := wire.DAGBlock{
		Proposer:     m.cfg.SelfID,
		Round:        round,
		Hash:         hash,
		StrongCerts:  strong,
		WeakParents:  weak,
		Requests:     requests,
		ArrivalOrder: arrivalOrder,
	}
	if _, err := m.pm.AddBlock(blk); err != nil {
		return wire.DAGBlock{}, fmt.Errorf("dag: add own block round %d: %w", round, err)
	}

	canonical := blk.CanonicalString(wire.Header{})
	for _, dst := range m.cfg.Peers {
		sig, key, err := m.sign.Sign(canonical, dst)
		if err != nil {
			return blk, fmt.Errorf("dag: sign block round %d for %d: %w", round, dst, err)
		}
		env := wire.Envelope{
			Header: wire.Header{Rtype: wire.RTypeDAGBlock, ReturnNodeID: m.cfg.SelfID, Sig: sig, Key: key},
			Body:   blk,
		}
		if err := m.sender.Send(dst, env, false); err != nil && m.log != nil {
			m.log.Warn("dag: send block failed", "round", round, "dst", dst, "err", err)
		}
	}
	if err := m.selfCertify(blk); err != nil {
		return blk, err
	}
	m.checkWaveCommit(round)
	return blk, nil
}

// selfCertify records this replica's own signature on its freshly proposed
// block, mirroring the classical leader's own-commit fast path: a
// proposer trivially endorses its own block.
func (m *Machine) selfCertify(blk wire.DAGBlock) error {
	cert := wire.DAGCert{Round: blk.Round, Hash: blk.Hash, Sender: m.cfg.SelfID}
	sig, _, err := m.sign.Sign(cert.CanonicalString(wire.Header{}), m.cfg.SelfID)
	if err != nil {
		return fmt.Errorf("dag: self-certify round %d: %w", blk.Round, err)
	}
	m.pm.AddCertShare(blk.Round, blk.Hash, m.cfg.SelfID, sig, m.quorum)
	return nil
}

// OnBlock handles a received DAGBlock (§4.8): verifies it was sent by its
// own claimed proposer, stores it, broadcasts a signed DAGCert vote on its
// hash to every peer (so every replica's own ProposalManager converges on
// the same certified set once Q votes are out, rather than only the
// proposer learning certification — §4.8 names the proposer as the
// aggregation point but never forbids other replicas from reaching the
// same conclusion by tallying the same broadcast votes, which later
// proposals need anyway to cite Q certified round k-1 blocks that were not
// necessarily authored by this replica), and checks whether storing it
// closes a wave-commit two rounds back.
func (m *Machine) OnBlock(env wire.Envelope, blk wire.DAGBlock) error {
	if env.ReturnNodeID != blk.Proposer {
		if m.log != nil {
			m.log.Warn("dag: block envelope sender != claimed proposer, dropped", "round", blk.Round, "sender", env.ReturnNodeID, "proposer", blk.Proposer)
		}
		return nil
	}
	if err := m.verify.Verify(blk.CanonicalString(env.Header), env.Sig, env.Key, env.ReturnNodeID, m.cfg.SelfID); err != nil {
		if m.log != nil {
			m.log.Warn("dag: block signature verification failed", "round", blk.Round, "err", err)
		}
		return nil
	}
	added, err := m.pm.AddBlock(blk)
	if err != nil {
		return fmt.Errorf("dag: add block round %d: %w", blk.Round, err)
	}
	if !added {
		return nil // already known, idempotent
	}

	if err := m.broadcastCert(blk); err != nil {
		return err
	}
	// Count this replica's own vote locally too, exactly as OnCert would
	// for a vote arriving over the wire.
	if err := m.OnCert(wire.Envelope{Header: wire.Header{ReturnNodeID: m.cfg.SelfID}}, wire.DAGCert{Round: blk.Round, Hash: blk.Hash, Sender: m.cfg.SelfID}); err != nil {
		return err
	}

	m.checkWaveCommit(blk.Round)
	return nil
}

func (m *Machine) broadcastCert(blk wire.DAGBlock) error {
	cert := wire.DAGCert{Round: blk.Round, Hash: blk.Hash, Sender: m.cfg.SelfID}
	canonical := cert.CanonicalString(wire.Header{})
	for _, dst := range m.cfg.Peers {
		sig, key, err := m.sign.Sign(canonical, dst)
		if err != nil {
			return fmt.Errorf("dag: sign cert round %d for %d: %w", blk.Round, dst, err)
		}
		certEnv := wire.Envelope{
			Header: wire.Header{Rtype: wire.RTypeDAGCert, ReturnNodeID: m.cfg.SelfID, Sig: sig, Key: key},
			Body:   cert,
		}
		if err := m.sender.Send(dst, certEnv, false); err != nil && m.log != nil {
			m.log.Warn("dag: send cert failed", "round", blk.Round, "dst", dst, "err", err)
		}
	}
	return nil
}

// OnCert handles a received DAGCert share (§4.8): every replica tallies the
// broadcast shares and assembles a QuorumCert for the block once Q distinct
// signers are collected.
func (m *Machine) OnCert(env wire.Envelope, cert wire.DAGCert) error {
	m.pm.AddCertShare(cert.Round, cert.Hash, cert.Sender, env.Sig, m.quorum)
	return nil
}

// checkWaveCommit evaluates the commit rule (§4.8) for the wave leader two
// rounds behind round: "a wave leader's block at round r commits when any
// block at round r+2 has strong-cert references reaching it via at least
// Q round-(r+1) blocks". round here plays the role of r+2.
func (m *Machine) checkWaveCommit(round uint64) {
	if round < 2 {
		return
	}
	waveRound := round - 2
	leaderID := WaveLeader(waveRound, m.cfg.N)
	leaderBlock, ok := m.pm.BlockAt(waveRound, leaderID)
	if !ok {
		return // wave leader hasn't proposed yet (or we haven't seen it); no commit this pass
	}
	if m.pm.IsCommitted(leaderBlock.Hash) {
		return
	}

	for _, candidate := range m.pm.BlocksAt(round) {
		reaching := 0
		for _, cert := range candidate.StrongCerts {
			ancestors, err := m.pm.Ancestors(cert.Hash)
			if err != nil {
				continue
			}
			if cert.Hash == leaderBlock.Hash || containsHash(ancestors, leaderBlock.Hash) {
				reaching++
			}
		}
		if uint32(reaching) >= m.quorum {
			m.commit(leaderBlock)
			return
		}
	}
}

func containsHash(blocks []wire.DAGBlock, hash common.Hash) bool {
	for _, b := range blocks {
		if b.Hash == hash {
			return true
		}
	}
	return false
}

// commit marks leaderBlock committed and traverses its reachable sub-DAG
// (strong and weak links) in round-then-proposer order (§4.8: "traversed
// in BFS order, grouped by round, and within a round ordered by proposer
// id"), which also serves as the deterministic tie-break fairness.Reorder
// falls back to, then hands the flattened requests and every contributing
// block's locally observed arrival order to fairness.Reorder (§13) before
// assigning execution ids to every transaction in blocks that were not
// already committed by an earlier wave.
func (m *Machine) commit(leaderBlock wire.DAGBlock) {
	if !m.pm.MarkCommitted(leaderBlock.Hash) {
		return
	}
	ancestors, err := m.pm.Ancestors(leaderBlock.Hash)
	if err != nil && m.log != nil {
		m.log.Warn("dag: ancestor traversal failed on commit", "round", leaderBlock.Round, "hash", leaderBlock.Hash, "err", err)
	}
	all := append(ancestors, leaderBlock)

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Round != all[j].Round {
			return all[i].Round < all[j].Round
		}
		return all[i].Proposer < all[j].Proposer
	})

	var requests []wire.Request
	var orders []fairness.ArrivalOrder
	for _, blk := range all {
		if blk.Hash != leaderBlock.Hash && !m.pm.MarkCommitted(blk.Hash) {
			continue // already executed by an earlier wave's commit
		}
		requests = append(requests, blk.Requests...)
		if len(blk.ArrivalOrder) > 0 {
			orders = append(orders, fairness.ArrivalOrder{Replica: blk.Proposer, Order: blk.ArrivalOrder})
		}
	}
	if len(requests) == 0 {
		return
	}
	requests = fairness.Reorder(m.fairnessCfg, requests, orders)

	m.mu.Lock()
	start := m.nextExecID
	m.nextExecID += uint64(len(requests))
	end := m.nextExecID - 1
	m.mu.Unlock()

	hash := wire.BatchHash(requestCanonicals(requests))
	env := wire.Envelope{
		Header: wire.Header{Rtype: wire.RTypeExecute},
		Body:   wire.Execute{View: leaderBlock.Round, StartIndex: start, EndIndex: end, Hash: hash, Requests: requests},
	}
	m.queues.Execution(start).Push(env)
}

func requestCanonicals(reqs []wire.Request) [][]byte {
	out := make([][]byte, len(reqs))
	for i, r := range reqs {
		out[i] = wire.RequestCanonical(r)
	}
	return out
}
