package dag

import (
	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/wire"
)

// buildQuorumCert deterministically assembles a QuorumCert from an
// already-quorum-sized signature bucket, ordering signers ascending by id
// so two replicas that aggregate the same signer set produce a
// byte-identical certificate. Mirrors ordering/chained's own
// buildQuorumCert; kept as a separate unexported copy rather than an
// exported shared helper, since the two variants' QC assembly has no other
// caller outside their own package and sharing it would mean a new
// cross-package dependency between the two ordering variants for four
// lines of sort logic.
func buildQuorumCert(round uint64, hash common.Hash, sigs map[uint32][]byte) wire.QuorumCert {
	signers := make([]uint32, 0, len(sigs))
	for s := range sigs {
		signers = append(signers, s)
	}
	for i := 1; i < len(signers); i++ {
		for j := i; j > 0 && signers[j-1] > signers[j]; j-- {
			signers[j-1], signers[j] = signers[j], signers[j-1]
		}
	}
	out := make([][]byte, len(signers))
	for i, s := range signers {
		out[i] = sigs[s]
	}
	return wire.QuorumCert{Round: round, Hash: hash, Signers: signers, Signatures: out}
}
