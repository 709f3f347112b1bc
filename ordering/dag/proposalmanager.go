// Package dag implements the DAG/wave ordering variant (§4.8): every
// replica continuously proposes one block per round, a block is
// certified once its proposer collects Q signatures on its hash, and a
// deterministic wave-leader rule derives commit order from the
// resulting block graph.
package dag

import (
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emirpasic/gods/maps/linkedhashmap"
	heimdag "github.com/heimdalr/dag"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/wire"
)

// blockVertex adapts a stored DAGBlock to heimdalr/dag's IDInterface so the
// block graph can be built directly out of wire.DAGBlock values without an
// intermediate copy.
type blockVertex struct {
	hash  common.Hash
	block wire.DAGBlock
}

func (v *blockVertex) ID() string { return v.hash.String() }

// ProposalManager holds the DAG variant's per-round state described in §3
// DAG-specific entities: round → proposer → block, hash → block, and
// per-round quorum (certification) status, all guarded by a single mutex
// held across each per-round operation (§4 "Shared-resource discipline"
// iii: "the DAG ProposalManager holds a single mutex across each per-round
// operation (add block, add cert, fetch)").
type ProposalManager struct {
	mu sync.Mutex

	byRound map[uint64]*linkedhashmap.Map // round -> proposer(uint32) -> *wire.DAGBlock
	byHash  map[common.Hash]*wire.DAGBlock

	graph *heimdag.DAG

	// certSigners/certSigs accumulate DAGCert shares per block hash until a
	// proposer has Q distinct signers, at which point certified holds the
	// assembled QuorumCert (§4.8 "a block is certified when the proposer
	// has collected Q distinct signatures on its hash").
	certSigners map[common.Hash]mapset.Set[uint32]
	certSigs    map[common.Hash]map[uint32][]byte
	certified   map[common.Hash]wire.QuorumCert

	committed map[common.Hash]struct{}
}

// NewProposalManager constructs an empty ProposalManager.
func NewProposalManager() *ProposalManager {
	return &ProposalManager{
		byRound:     make(map[uint64]*linkedhashmap.Map),
		byHash:      make(map[common.Hash]*wire.DAGBlock),
		graph:       heimdag.NewDAG(),
		certSigners: make(map[common.Hash]mapset.Set[uint32]),
		certSigs:    make(map[common.Hash]map[uint32][]byte),
		certified:   make(map[common.Hash]wire.QuorumCert),
		committed:   make(map[common.Hash]struct{}),
	}
}

// AddBlock stores blk, indexed by round/proposer and hash, and wires it
// into the reachability graph via edges from every strong and weak parent
// it cites. Returns false without error if blk's hash is already known
// (idempotent re-delivery).
func (pm *ProposalManager) AddBlock(blk wire.DAGBlock) (added bool, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.byHash[blk.Hash]; exists {
		return false, nil
	}
	stored := blk
	pm.byHash[blk.Hash] = &stored

	bucket, ok := pm.byRound[blk.Round]
	if !ok {
		bucket = linkedhashmap.New()
		pm.byRound[blk.Round] = bucket
	}
	bucket.Put(blk.Proposer, &stored)

	if _, err := pm.graph.AddVertex(&blockVertex{hash: blk.Hash, block: blk}); err != nil {
		return true, err
	}
	for _, p := range blk.StrongCerts {
		if _, ok := pm.byHash[p.Hash]; ok {
			_ = pm.graph.AddEdge(p.Hash.String(), blk.Hash.String())
		}
	}
	for _, p := range blk.WeakParents {
		if _, ok := pm.byHash[p]; ok {
			_ = pm.graph.AddEdge(p.String(), blk.Hash.String())
		}
	}
	return true, nil
}

// Get returns the stored block for hash, if any.
func (pm *ProposalManager) Get(hash common.Hash) (wire.DAGBlock, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	blk, ok := pm.byHash[hash]
	if !ok {
		return wire.DAGBlock{}, false
	}
	return *blk, true
}

// BlockAt returns the block a given proposer produced at round, if known.
func (pm *ProposalManager) BlockAt(round uint64, proposer uint32) (wire.DAGBlock, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	bucket, ok := pm.byRound[round]
	if !ok {
		return wire.DAGBlock{}, false
	}
	v, found := bucket.Get(proposer)
	if !found {
		return wire.DAGBlock{}, false
	}
	return *(v.(*wire.DAGBlock)), true
}

// BlocksAt returns every block known at round, in proposer-insertion order
// (the linkedhashmap preserves arrival order; callers that need a
// deterministic commit order re-sort explicitly, e.g. by proposer id).
func (pm *ProposalManager) BlocksAt(round uint64) []wire.DAGBlock {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	bucket, ok := pm.byRound[round]
	if !ok {
		return nil
	}
	values := bucket.Values()
	out := make([]wire.DAGBlock, 0, len(values))
	for _, v := range values {
		out = append(out, *(v.(*wire.DAGBlock)))
	}
	return out
}

// AddCertShare records sender's signature on the block (round, hash),
// returning the assembled QuorumCert once Q distinct signers have been
// collected (§4.8). Returns justCertified=false on every call before the
// threshold is reached, and again on every call after (idempotent: a
// block certifies exactly once).
func (pm *ProposalManager) AddCertShare(round uint64, hash common.Hash, sender uint32, sig []byte, quorum uint32) (justCertified bool, qc wire.QuorumCert) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, done := pm.certified[hash]; done {
		return false, pm.certified[hash]
	}
	signers, ok := pm.certSigners[hash]
	if !ok {
		signers = mapset.NewSet[uint32]()
		pm.certSigners[hash] = signers
		pm.certSigs[hash] = make(map[uint32][]byte)
	}
	signers.Add(sender)
	pm.certSigs[hash][sender] = sig

	if uint32(signers.Cardinality()) < quorum {
		return false, wire.QuorumCert{}
	}
	qc = buildQuorumCert(round, hash, pm.certSigs[hash])
	pm.certified[hash] = qc
	delete(pm.certSigners, hash)
	delete(pm.certSigs, hash)
	return true, qc
}

// Certified reports whether hash has reached its certification threshold.
func (pm *ProposalManager) Certified(hash common.Hash) (wire.QuorumCert, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	qc, ok := pm.certified[hash]
	return qc, ok
}

// CertifiedAt returns the certified QuorumCerts for every block known at
// round, in no particular order (the caller, e.g. ProposeBlock, picks Q of
// them and sorts for determinism).
func (pm *ProposalManager) CertifiedAt(round uint64) []wire.QuorumCert {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	bucket, ok := pm.byRound[round]
	if !ok {
		return nil
	}
	var out []wire.QuorumCert
	for _, v := range bucket.Values() {
		blk := v.(*wire.DAGBlock)
		if qc, ok := pm.certified[blk.Hash]; ok {
			out = append(out, qc)
		}
	}
	return out
}

// MarkCommitted records hash as committed, returning false if it was
// already committed (so callers only traverse/execute a block's sub-DAG
// once).
func (pm *ProposalManager) MarkCommitted(hash common.Hash) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, done := pm.committed[hash]; done {
		return false
	}
	pm.committed[hash] = struct{}{}
	return true
}

// IsCommitted reports whether hash has already been committed.
func (pm *ProposalManager) IsCommitted(hash common.Hash) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	_, done := pm.committed[hash]
	return done
}

// WeakParentCandidates returns every known block hash that is neither
// committed, nor already certified, nor named in exclude — the "all
// uncommitted, uncertified ancestors known to the proposer" rule this
// package resolves Open Question iii with (§4.8), sorted by the numeric
// hash ordering (wire.Less) so two replicas building a block from the
// same local view produce the same weak-parent list.
func (pm *ProposalManager) WeakParentCandidates(exclude map[common.Hash]struct{}) []common.Hash {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	var out []common.Hash
	for h := range pm.byHash {
		if _, skip := exclude[h]; skip {
			continue
		}
		if _, committed := pm.committed[h]; committed {
			continue
		}
		if _, certified := pm.certified[h]; certified {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return wire.Less(out[i], out[j]) })
	return out
}

// Ancestors returns every block transitively reachable from hash via
// strong and weak parent edges (§4.8 "the sub-DAG reachable from the
// leader via strong and weak links"), via heimdalr/dag's graph-reachability
// walk over the block graph built up in AddBlock.
func (pm *ProposalManager) Ancestors(hash common.Hash) ([]wire.DAGBlock, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	raw, err := pm.graph.GetAncestors(hash.String())
	if err != nil {
		return nil, err
	}
	out := make([]wire.DAGBlock, 0, len(raw))
	for _, v := range raw {
		if bv, ok := v.(*blockVertex); ok {
			out = append(out, bv.block)
		}
	}
	return out, nil
}
