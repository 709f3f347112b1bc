// Package wire implements the replica's message envelope and binary codec
// (§4.2, §6): every peer and client message is a tagged rtype with a fixed
// header, a type-specific body, and a signature or authenticator.
package wire

// RType tags the concrete body carried by an Envelope. The numeric values
// are part of the wire format (§6) and must never be reassigned once a
// deployment has shipped.
type RType uint32

const (
	RTypeInvalid RType = iota

	// Key exchange (§4.3).
	RTypeKeyExchange
	RTypeReady

	// Client protocol (§6).
	RTypeClientBatch
	RTypeClientResponse

	// Classical ordering (§4.6).
	RTypeBatchReq
	RTypePrepare
	RTypeCommit

	// Chained leader variant (§4.7).
	RTypeChainedProposal
	RTypeChainedVote

	// DAG variant (§4.8).
	RTypeDAGBlock
	RTypeDAGCert

	// Checkpointing (§4.10).
	RTypeCheckpoint

	// View change (§4.11).
	RTypeViewChange
	RTypeNewView

	// Internal, never placed on the wire: used by the execution queue
	// (§4.4) to hand a committed batch from the ordering state machine to
	// the execution thread.
	RTypeExecute
)

func (t RType) String() string {
	switch t {
	case RTypeKeyExchange:
		return "KEY_EXCHANGE"
	case RTypeReady:
		return "READY"
	case RTypeClientBatch:
		return "CL_BATCH"
	case RTypeClientResponse:
		return "CL_RSP"
	case RTypeBatchReq:
		return "BATCH_REQ"
	case RTypePrepare:
		return "PREPARE"
	case RTypeCommit:
		return "COMMIT"
	case RTypeChainedProposal:
		return "CHAINED_PROPOSAL"
	case RTypeChainedVote:
		return "CHAINED_VOTE"
	case RTypeDAGBlock:
		return "DAG_BLOCK"
	case RTypeDAGCert:
		return "DAG_CERT"
	case RTypeCheckpoint:
		return "CHECKPOINT"
	case RTypeViewChange:
		return "VIEW_CHANGE"
	case RTypeNewView:
		return "NEW_VIEW"
	case RTypeExecute:
		return "EXECUTE"
	default:
		return "INVALID"
	}
}
