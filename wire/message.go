package wire

import "github.com/bftcore/bftcore/common"

// Header is the fixed part of every message, present regardless of rtype
// (§4.2, §6): identity, ordering coordinates, latency accounting, and the
// authentication material. Body is opaque here; DecodeMessage fills it in
// from the type-specific payload once Rtype is known.
type Header struct {
	Rtype        RType
	TxnID        uint64
	BatchID      uint64
	ReturnNodeID uint32

	// Latency fields, seven u64 timestamps/durations accounted at
	// successive pipeline stages (§6): enqueue, send, receive, classify,
	// process-start, process-end, and reply. Filled in opportunistically;
	// a zero entry means the stage wasn't instrumented for this message.
	LatencyFields [7]uint64

	// Sig is the signature or authenticator over the canonical string built
	// from the semantic fields of Body (§4.2) — never over the raw bytes.
	Sig []byte
	// Key is the signer's public key or, in authenticator mode, the shared
	// authenticator tag identifying the key used.
	Key []byte
}

// Envelope is a fully decoded wire message: a Header plus its type-specific
// Body.
type Envelope struct {
	Header
	Body Body
}

// Body is implemented by every concrete message payload. CanonicalString
// builds the exact byte string that gets hashed/signed (§4.2): the semantic
// fields only, never a raw byte dump, so signature verification is
// independent of serialization details.
type Body interface {
	RType() RType
	CanonicalString(h Header) []byte
}

// Request is a single client operation carried inside a batch (§3
// Transaction): a key/value write, or a smart-contract opcode triple encoded
// into the same three string fields.
type Request struct {
	ClientID      uint32
	ClientStartTS uint64
	Op            uint32
	Key           string
	Value         string
	Arg           string
}

// Op tags which KV store operation a Request performs.
type Op = uint32

// Op values the KV store collaborator recognizes (§6 "out of scope body").
// OpInvoke carries a smart-contract opcode triple in Key/Value/Arg rather
// than a plain key/value pair; the core never interprets its payload, only
// routes it to the store the same way.
const (
	OpGet Op = iota
	OpPut
	OpInvoke
)

// ClientQuery pairs a client-chosen start timestamp with the Request it
// tags, matching §6's CL_BATCH wire shape.
type ClientQuery struct {
	ClientStartTS uint64
	Request       Request
}

// KeyExchange is the bootstrap message every replica broadcasts at startup
// (§4.3): its verification material tagged with the algorithm it was
// generated under.
type KeyExchange struct {
	Algorithm  CryptoMethod
	PublicKey  []byte
	ReplicaID  uint32
}

func (KeyExchange) RType() RType { return RTypeKeyExchange }
func (m KeyExchange) CanonicalString(h Header) []byte {
	return canonical("KEY_EXCHANGE", u32(uint32(m.Algorithm)), u32(m.ReplicaID), bytesField(m.PublicKey))
}

// CryptoMethod selects the signing discipline (§4.2, §6 CRYPTO_METHOD).
type CryptoMethod uint32

const (
	CryptoRSA CryptoMethod = iota
	CryptoED25519
	CryptoCMAC
)

// Ready is broadcast to every client once a replica's per-peer
// outstanding-keys counter reaches zero (§4.3).
type Ready struct {
	ReplicaID uint32
}

func (Ready) RType() RType { return RTypeReady }
func (m Ready) CanonicalString(h Header) []byte {
	return canonical("READY", u32(m.ReplicaID))
}

// ClientBatch is a client's request to the leader (§6): CL_BATCH{return_node,
// batch_size, [ClientQuery]*}.
type ClientBatch struct {
	ReturnNode uint32
	BatchSize  uint32
	Queries    []ClientQuery
}

func (ClientBatch) RType() RType { return RTypeClientBatch }
func (m ClientBatch) CanonicalString(h Header) []byte {
	b := canonical("CL_BATCH", u32(m.ReturnNode), u32(m.BatchSize))
	for _, q := range m.Queries {
		b = append(b, u64(q.ClientStartTS)...)
		b = append(b, []byte(q.Request.Key)...)
		b = append(b, []byte(q.Request.Value)...)
	}
	return b
}

// ClientResponse is the replica's signed reply (§6): CL_RSP{view,
// [(txn_id, client_startts)]*}.
type ClientResponse struct {
	View  uint64
	Slots []ResponseSlot
}

// ResponseSlot is one executed transaction's acknowledgement within a
// ClientResponse, carrying its txn_id and client timestamp; the view is
// the enclosing ClientResponse's (§4.9).
type ResponseSlot struct {
	TxnID         uint64
	ClientStartTS uint64
}

func (ClientResponse) RType() RType { return RTypeClientResponse }
func (m ClientResponse) CanonicalString(h Header) []byte {
	b := canonical("CL_RSP", u64(m.View))
	for _, s := range m.Slots {
		b = append(b, u64(s.TxnID)...)
		b = append(b, u64(s.ClientStartTS)...)
	}
	return b
}

// BatchReq is the leader's pre-prepare broadcast (§4.5, §4.6): the assigned
// id range, the batch hash, and — on first hop only — the requests
// themselves (replay copies carry the same hash without re-attaching the
// body when bandwidth matters; the core always attaches it here for
// simplicity, §4.11 Replay).
type BatchReq struct {
	View      uint64
	EndIndex  uint64
	BatchSize uint32
	Hash      common.Hash
	Requests  []Request
}

func (BatchReq) RType() RType { return RTypeBatchReq }
func (m BatchReq) CanonicalString(h Header) []byte {
	return canonical("BATCH_REQ", u64(m.View), u64(m.EndIndex), u32(m.BatchSize), m.Hash[:])
}

// Prepare is a non-leader replica's endorsement of a BatchReq (§4.6):
// PREPARE(view, index, hash, r).
type Prepare struct {
	View   uint64
	Index  uint64
	Hash   common.Hash
	Sender uint32
}

func (Prepare) RType() RType { return RTypePrepare }
func (m Prepare) CanonicalString(h Header) []byte {
	return canonical("PREPARE", u64(m.View), u64(m.Index), m.Hash[:], u32(m.Sender))
}

// Commit is broadcast once a batch is prepared (§4.6): COMMIT(view, index,
// hash, r).
type Commit struct {
	View   uint64
	Index  uint64
	Hash   common.Hash
	Sender uint32
}

func (Commit) RType() RType { return RTypeCommit }
func (m Commit) CanonicalString(h Header) []byte {
	return canonical("COMMIT", u64(m.View), u64(m.Index), m.Hash[:], u32(m.Sender))
}

// ChainedProposal is a chained-leader-variant proposal extending ParentQC
// (§4.7).
type ChainedProposal struct {
	Round     uint64
	EndIndex  uint64
	BatchSize uint32
	Hash      common.Hash
	ParentQC  QuorumCert
	Requests  []Request
}

func (ChainedProposal) RType() RType { return RTypeChainedProposal }
func (m ChainedProposal) CanonicalString(h Header) []byte {
	return canonical("CHAINED_PROPOSAL", u64(m.Round), u64(m.EndIndex), m.Hash[:], m.ParentQC.Hash[:], u64(m.ParentQC.Round))
}

// ChainedVote is a replica's signed vote on a ChainedProposal's hash,
// returned to leader(round+1) for QC aggregation (§4.7).
type ChainedVote struct {
	Round  uint64
	Hash   common.Hash
	Sender uint32
}

func (ChainedVote) RType() RType { return RTypeChainedVote }
func (m ChainedVote) CanonicalString(h Header) []byte {
	return canonical("CHAINED_VOTE", u64(m.Round), m.Hash[:], u32(m.Sender))
}

// QuorumCert is a set of Q signatures on the same statement from distinct
// replicas (§3 Certificate, §4.7, §4.8).
type QuorumCert struct {
	Round      uint64
	Hash       common.Hash
	Signers    []uint32
	Signatures [][]byte
}

// DAGBlock is one replica's per-round proposal in the DAG variant (§4.8,
// §3 DAG-specific entities): proposer, round, hash, the block's own
// strong/weak certificate references, and ArrivalOrder, this proposer's
// own locally observed arrival order over Requests (§13 supplemented
// feature: fed to ordering/dag/fairness once the block's wave commits).
type DAGBlock struct {
	Proposer     uint32
	Round        uint64
	Hash         common.Hash
	StrongCerts  []QuorumCert
	WeakParents  []common.Hash
	Requests     []Request
	ArrivalOrder []common.Hash // this proposer's own locally observed arrival order over Requests
}

func (DAGBlock) RType() RType { return RTypeDAGBlock }
func (m DAGBlock) CanonicalString(h Header) []byte {
	b := canonical("DAG_BLOCK", u32(m.Proposer), u64(m.Round), m.Hash[:])
	for _, c := range m.StrongCerts {
		b = append(b, c.Hash[:]...)
	}
	for _, w := range m.WeakParents {
		b = append(b, w[:]...)
	}
	for _, a := range m.ArrivalOrder {
		b = append(b, a[:]...)
	}
	return b
}

// DAGCert is a signature share on a DAGBlock's hash, broadcast to every
// replica; each one tallies the shares and assembles a QuorumCert once Q
// distinct signers are collected (§4.8).
type DAGCert struct {
	Round  uint64
	Hash   common.Hash
	Sender uint32
}

func (DAGCert) RType() RType { return RTypeDAGCert }
func (m DAGCert) CanonicalString(h Header) []byte {
	return canonical("DAG_CERT", u64(m.Round), m.Hash[:], u32(m.Sender))
}

// Checkpoint is broadcast by the execution thread every C transactions
// (§4.10): CHECKPOINT(txn_id, r).
type Checkpoint struct {
	TxnID  uint64
	Sender uint32
}

func (Checkpoint) RType() RType { return RTypeCheckpoint }
func (m Checkpoint) CanonicalString(h Header) []byte {
	return canonical("CHECKPOINT", u64(m.TxnID), u32(m.Sender))
}

// ViewChange is proposed by a replica that suspects the current primary
// (§4.11): the next view, the proposer's low watermark, the batches it
// holds after that watermark, and per-batch prepare evidence.
type ViewChange struct {
	NewView      uint64
	LowWatermark uint64
	Sender       uint32
	Batches      []BatchReq
	Evidence     []PrepareEvidence
}

// PrepareEvidence is the signed proof, attached to a ViewChange, that a
// batch reached prepared at the sender before the view change (§4.11
// Integrity).
type PrepareEvidence struct {
	Index   uint64
	Hash    common.Hash
	Senders []uint32
	Sigs    [][]byte
}

func (ViewChange) RType() RType { return RTypeViewChange }
func (m ViewChange) CanonicalString(h Header) []byte {
	b := canonical("VIEW_CHANGE", u64(m.NewView), u64(m.LowWatermark), u32(m.Sender))
	for _, bat := range m.Batches {
		b = append(b, bat.Hash[:]...)
	}
	return b
}

// NewView is broadcast by leader(v+1) once it collects Q ViewChange messages
// (§4.11): the accepted view-change set and the pre-prepares to replay.
type NewView struct {
	View     uint64
	VCs      []ViewChange
	Replays  []BatchReq
}

func (NewView) RType() RType { return RTypeNewView }
func (m NewView) CanonicalString(h Header) []byte {
	b := canonical("NEW_VIEW", u64(m.View))
	for _, r := range m.Replays {
		b = append(b, r.Hash[:]...)
	}
	return b
}

// Execute is the internal dispatch message an ordering state machine
// enqueues into the sharded execution queue once a batch reaches
// committed-local (§4.9): it names the committed range by its
// representative (last) id, never travels the wire, and is never signed —
// its CanonicalString exists only so Execute satisfies Body like every
// other internal/wire message.
//
// StartIndex and Requests are populated only by the DAG variant (§4.8),
// whose wave-commit BFS assigns a fresh contiguous id range to a batch of
// transactions that was never pre-assigned one by a leader's batching
// thread, so the executor has nothing to look up a TxnManager.PrePrepare
// for — the requests travel with the dispatch message itself. The
// classical and chained variants leave both zero/nil; the executor
// resolves their requests from the representative TxnManager's retained
// pre-prepare/proposal instead.
type Execute struct {
	View       uint64
	StartIndex uint64
	EndIndex   uint64
	Hash       common.Hash
	Requests   []Request
}

func (Execute) RType() RType { return RTypeExecute }
func (m Execute) CanonicalString(h Header) []byte {
	return canonical("EXECUTE", u64(m.View), u64(m.EndIndex), m.Hash[:])
}
