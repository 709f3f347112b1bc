package wire

import (
	"crypto/sha256"

	"github.com/bftcore/bftcore/common"
	"github.com/holiman/uint256"
)

// BatchHash computes the SHA-256 digest of the ordered concatenation of a
// batch's canonically-serialized requests (§3 Batch, §4.5).
func BatchHash(requests [][]byte) common.Hash {
	h := sha256.New()
	for _, r := range requests {
		h.Write(r)
	}
	return common.BytesToHash(h.Sum(nil))
}

// DAGBlockHash computes a DAG block's content hash from its proposer,
// round, ordered request canonicals, the hashes of its strong and weak
// parent references, and its own locally observed arrival order over
// those requests (§4.8, §3 DAG-specific entities; §13 fairness). Computed
// before the block carries its own Hash field, so DAGBlock.CanonicalString
// (which folds Hash in alongside the envelope's other signed fields) never
// has to hash itself.
func DAGBlockHash(proposer uint32, round uint64, requests [][]byte, strongParents, weakParents, arrivalOrder []common.Hash) common.Hash {
	h := sha256.New()
	h.Write(u32(proposer))
	h.Write(u64(round))
	for _, r := range requests {
		h.Write(r)
	}
	for _, p := range strongParents {
		h.Write(p[:])
	}
	for _, p := range weakParents {
		h.Write(p[:])
	}
	for _, a := range arrivalOrder {
		h.Write(a[:])
	}
	return common.BytesToHash(h.Sum(nil))
}

// HashToUint256 reinterprets a batch hash as a 256-bit big-endian integer so
// Less, which the DAG variant uses to order certificates and weak-parent
// candidates (§4.8), can compare hashes numerically instead of
// lexicographically byte-slicing them.
func HashToUint256(h common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes(h[:])
}

// Uint256ToHash truncates a 256-bit integer back down to a Hash, used when a
// derived value (e.g. a combined certificate digest) needs to flow back
// through APIs that expect common.Hash.
func Uint256ToHash(i *uint256.Int) common.Hash {
	return common.BytesToHash(i.Bytes())
}

// Less reports whether a sorts before b under the numeric ordering used to
// break ties between equally-certified DAG blocks at the same round (§4.8).
func Less(a, b common.Hash) bool {
	return HashToUint256(a).Lt(HashToUint256(b))
}
