// Package replica is the composition root (§9): it wires transport, the
// shared TxnManager table, the typed work queues, the bootstrap key
// exchange, the selected ordering variant, checkpointing, view-change, and
// execution into one running process, and owns the thread pool described
// in §5.
package replica

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/bftcore/bftcore/batching"
	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/blockchainlog"
	"github.com/bftcore/bftcore/checkpoint"
	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/common/mclock"
	"github.com/bftcore/bftcore/config"
	"github.com/bftcore/bftcore/execution"
	bftmetrics "github.com/bftcore/bftcore/internal/bftmetrics"
	"github.com/bftcore/bftcore/keyexchange"
	"github.com/bftcore/bftcore/kvstore"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/ordering/chained"
	"github.com/bftcore/bftcore/ordering/classical"
	"github.com/bftcore/bftcore/ordering/dag"
	"github.com/bftcore/bftcore/queue"
	"github.com/bftcore/bftcore/transport"
	"github.com/bftcore/bftcore/txntable"
	"github.com/bftcore/bftcore/viewchange"
	"github.com/bftcore/bftcore/wire"
)

// Config is everything a Replica needs beyond config.Config itself: the
// replica's own identity, the addresses learned from SCHEMA_PATH/
// ifconfig.txt (§6), its signing material, and the collaborators spec.md
// §1 places out of scope for the core (the KV store, the blockchain log
// path).
type Config struct {
	Core config.Config

	SelfID        uint32
	ReplicaAddrs  map[uint32]string // every replica id (including self) -> listen address
	ClientIDs     []uint32          // known client ids, for keyexchange's READY fanout
	ClientAddrs   map[uint32]string // client id -> listen address, so READY/CL_RSP can actually reach it

	// SigningMaterial is passed straight to bftcrypto.NewSigner; its
	// concrete type depends on Core.CryptoMethodValue() (§4.2).
	SigningMaterial any
	// PublicKeyMaterial is this replica's own key-exchange payload (§4.3):
	// a marshaled public key under RSA/ED25519, or a CMAC shared-secret
	// identifier. Generating and distributing this out-of-band is the
	// caller's responsibility (cmd/replica), since the bootstrap exchange
	// only relays whatever bytes it is given.
	PublicKeyMaterial []byte

	Store          kvstore.Store   // defaults to kvstore.NewMemory() if nil
	Clock          mclock.Clock    // defaults to mclock.System{} if nil
	Logger         log.Logger      // defaults to log.Root() if nil
	Registry       bftmetrics.Registry // defaults to bftmetrics.NewRegistry() if nil
	BlockchainLog  *blockchainlog.Log  // nil disables the optional commit log (§6, §13)
}

// Replica is one running replica process: every component named in §4, held
// together by the shared Transport, TxnManager Table, and WorkQueues.
type Replica struct {
	cfg    Config
	n      uint32
	peers  []uint32 // every other replica id

	log      log.Logger
	registry bftmetrics.Registry
	clock    mclock.Clock

	transport *transport.Transport
	table     *txntable.Table
	queues    *queue.WorkQueues
	store     kvstore.Store

	signer   bftcrypto.Signer
	verifier bftcrypto.Verifier // built once keyexchange releases, in Start

	bootstrap *keyexchange.Bootstrap

	// Exactly one of these is non-nil, selected by cfg.Core.Consensus.
	classicalM *classical.Machine
	chainedM   *chained.Machine
	dagM       *dag.Machine
	dagPM      *dag.ProposalManager

	batcher    *batching.Batcher
	checkptMgr *checkpoint.Manager
	viewMgr    *viewchange.Manager
	executor   *execution.Executor

	chainLog *blockchainlog.Log
}

// New constructs a Replica and opens its listening transport, but performs
// no key exchange and starts no goroutines; call Start to run it (§5
// "Suspension points: key-exchange barrier" happens inside Start, not New).
func New(cfg Config) (*Replica, error) {
	if cfg.Store == nil {
		cfg.Store = kvstore.NewMemory()
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Root()
	}
	if cfg.Registry == nil {
		cfg.Registry = bftmetrics.NewRegistry()
	}

	n := uint32(cfg.Core.NodeCnt)
	peers := make([]uint32, 0, n-1)
	for id := range cfg.ReplicaAddrs {
		if id != cfg.SelfID {
			peers = append(peers, id)
		}
	}

	method, err := cfg.Core.CryptoMethodValue()
	if err != nil {
		return nil, fmt.Errorf("replica: %w", err)
	}
	signer, err := bftcrypto.NewSigner(method, cfg.SigningMaterial)
	if err != nil {
		return nil, fmt.Errorf("replica: construct signer: %w", err)
	}

	selfAddr, ok := cfg.ReplicaAddrs[cfg.SelfID]
	if !ok {
		return nil, fmt.Errorf("replica: no listen address for self id %d", cfg.SelfID)
	}
	tport, err := transport.New(transport.DefaultConfig(), cfg.SelfID, selfAddr)
	if err != nil {
		return nil, fmt.Errorf("replica: open transport: %w", err)
	}
	for id, addr := range cfg.ReplicaAddrs {
		if id != cfg.SelfID {
			tport.AddPeer(id, addr)
		}
	}
	for id, addr := range cfg.ClientAddrs {
		tport.AddPeer(id, addr)
	}

	table := txntable.NewTable(txntable.DefaultConfig(), cfg.Logger)
	queues := queue.NewWorkQueues(int(cfg.Core.ThreadCnt))

	r := &Replica{
		cfg:       cfg,
		n:         n,
		peers:     peers,
		log:       cfg.Logger,
		registry:  cfg.Registry,
		clock:     cfg.Clock,
		transport: tport,
		table:     table,
		queues:    queues,
		store:     cfg.Store,
		signer:    signer,
		chainLog:  cfg.BlockchainLog,
	}

	r.bootstrap = keyexchange.New(cfg.SelfID, peers, cfg.ClientIDs, method, cfg.PublicKeyMaterial, tport, cfg.Logger)

	r.batcher = batching.New(batching.Config{
		SelfID:       cfg.SelfID,
		Peers:        peers,
		BatchSize:    cfg.Core.BatchSize,
		MaxInFlight:  cfg.Core.MaxTxnInFlight,
		CryptoMethod: method,
	}, table, signer, tport, cfg.Logger)

	r.checkptMgr = checkpoint.New(checkpoint.Config{N: n, WindowSize: uint64(cfg.Core.BatchSize)}, table, cfg.Logger)

	return r, nil
}

// Start runs the bootstrap key-exchange barrier, builds the verifier and
// every verifier-dependent component once peer keys are known, and then
// runs the replica's thread pool until ctx is cancelled (§5).
func (r *Replica) Start(ctx context.Context) error {
	if err := r.bootstrap.Start(); err != nil {
		return fmt.Errorf("replica: start key exchange: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.acceptLoop(ctx) })

	select {
	case <-r.bootstrap.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	method, _ := r.cfg.Core.CryptoMethodValue()
	verify, err := bftcrypto.NewVerifier(method, r.bootstrap.Keys())
	if err != nil {
		return fmt.Errorf("replica: construct verifier: %w", err)
	}
	r.verifier = verify

	if err := r.buildOrderingMachine(verify); err != nil {
		return err
	}
	r.viewMgr = viewchange.New(viewchange.Config{
		SelfID:       r.cfg.SelfID,
		Peers:        r.peers,
		N:            r.n,
		BatchTimeout: r.cfg.Core.ExeTimeout,
	}, r.table, verify, r.signer, r.transport, r.clock, r.log)
	r.executor = execution.New(execution.Config{
		SelfID:        r.cfg.SelfID,
		Peers:         r.peers,
		ChkptInterval: r.cfg.Core.TxnPerChkpt,
	}, r.table, r.store, r.signer, r.transport, r.log, r.registry)

	for i := 0; i < int(r.cfg.Core.ThreadCnt); i++ {
		g.Go(func() error { return r.workerLoop(ctx) })
	}
	g.Go(func() error { return execution.Run(ctx, r.executor, r.queues) })
	g.Go(func() error {
		return viewchange.Run(ctx, r.viewMgr, func() (uint64, uint64) {
			return r.checkptMgr.LowWatermark(), r.executor.NextExpected()
		})
	})
	if r.isPrimary(0) {
		g.Go(func() error { return r.batchingLoop(ctx) })
	}

	return g.Wait()
}

// Close releases the transport listener and the optional blockchain log.
func (r *Replica) Close() error {
	if r.chainLog != nil {
		r.chainLog.Close()
	}
	return r.transport.Close()
}

func (r *Replica) isPrimary(view uint64) bool {
	return viewchange.LeaderOf(view, r.n) == r.cfg.SelfID
}

// buildOrderingMachine selects and constructs exactly one ordering variant
// per cfg.Core.Consensus (§14 Open Question 2 — Consensus, once fixed by
// config, is fixed for the process lifetime; there is no runtime switch).
func (r *Replica) buildOrderingMachine(verify bftcrypto.Verifier) error {
	method, _ := r.cfg.Core.CryptoMethodValue()
	switch r.cfg.Core.Consensus {
	case config.ConsensusClassical, "":
		r.classicalM = classical.New(classical.Config{
			SelfID:       r.cfg.SelfID,
			Peers:        r.peers,
			N:            r.n,
			CryptoMethod: method,
		}, r.cfg.Core.TxnPerChkpt, r.table, verify, r.signer, r.transport, r.queues, r.log)
		if r.chainLog != nil {
			r.classicalM.SetCommitHook(r.onCommitLocal)
		}
		return nil
	case config.ConsensusChained:
		r.chainedM = chained.New(chained.Config{
			SelfID: r.cfg.SelfID,
			Peers:  r.peers,
			N:      r.n,
		}, r.table, verify, r.signer, r.transport, r.queues, nil, r.log)
		return nil
	case config.ConsensusDAG:
		r.dagPM = dag.NewProposalManager()
		r.dagM = dag.New(dag.Config{
			SelfID: r.cfg.SelfID,
			Peers:  r.peers,
			N:      r.n,
		}, r.dagPM, verify, r.signer, r.transport, r.queues, r.log)
		return nil
	default:
		return fmt.Errorf("replica: unknown consensus variant %q", r.cfg.Core.Consensus)
	}
}

// acceptLoop accepts inbound connections and spawns one reader goroutine
// per connection (§4.1: one connected endpoint per remote peer).
func (r *Replica) acceptLoop(ctx context.Context) error {
	for {
		conn, err := r.transport.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		go r.readLoop(ctx, conn)
	}
}

// readLoop decodes Frames off conn and classifies each Envelope into the
// queue its rtype belongs to (§4.4's dispatch table). KEY_EXCHANGE and
// READY are handled inline since they gate the rest of the pipeline rather
// than flowing through the worker pool.
func (r *Replica) readLoop(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := wire.DecodeFrame(conn)
		if err != nil {
			return
		}
		for _, env := range frame.Messages {
			r.classify(env)
		}
	}
}

func (r *Replica) classify(env wire.Envelope) {
	switch env.Rtype {
	case wire.RTypeKeyExchange:
		if ke, ok := env.Body.(wire.KeyExchange); ok {
			if err := r.bootstrap.OnKeyExchange(ke); err != nil && r.log != nil {
				r.log.Warn("replica: key exchange failed", "err", err)
			}
		}
	case wire.RTypeReady:
		// Clients consume READY themselves; a replica has nothing to do
		// with a peer's READY broadcast.
	case wire.RTypeClientBatch:
		r.queues.NewTxn.Push(env)
	case wire.RTypeCheckpoint:
		r.queues.Checkpoint.Push(env)
	default:
		r.queues.Worker.Push(env)
	}
}

// workerLoop is one thread of the fixed worker pool (§5): it pulls from
// Worker and Checkpoint round-robin (favoring Worker, since checkpoint
// traffic is far less latency-sensitive) and hands each envelope to
// dispatch, which routes it to whichever ordering variant is active.
func (r *Replica) workerLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if env, ok := r.queues.Worker.TryPop(); ok {
			r.dispatch(env)
			continue
		}
		if env, ok := r.queues.Checkpoint.TryPop(); ok {
			r.dispatch(env)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// verify generically checks env's signature against its claimed sender
// before any dispatch that does not already verify internally (§4.2, §7(a)
// Authentication failures: dropped and logged, never propagated).
func (r *Replica) verify(env wire.Envelope) bool {
	if r.verifier == nil {
		return false
	}
	if err := r.verifier.Verify(env.Body.CanonicalString(env.Header), env.Sig, env.Key, env.ReturnNodeID, r.cfg.SelfID); err != nil {
		if r.log != nil {
			r.log.Warn("replica: verification failed, dropping", "rtype", env.Rtype.String(), "sender", env.ReturnNodeID, "err", err)
		}
		return false
	}
	return true
}

// dispatch routes one worker-queue envelope to the active ordering variant
// (§4.4, §4.6-§4.8, §4.10, §4.11). Classical's OnBatchReq, chained's
// OnProposal, DAG's OnBlock and the view manager's OnNewView perform their
// own signature check, so those cases skip the generic verify; every other
// case calls verify before its handler.
func (r *Replica) dispatch(env wire.Envelope) {
	var err error
	switch body := env.Body.(type) {
	case wire.BatchReq:
		if r.classicalM != nil {
			err = r.classicalM.OnBatchReq(env, body)
		}
	case wire.Prepare:
		if r.classicalM != nil && r.verify(env) {
			err = r.classicalM.OnPrepare(env, body)
		}
	case wire.Commit:
		if r.classicalM != nil && r.verify(env) {
			err = r.classicalM.OnCommit(env, body)
		}
	case wire.ChainedProposal:
		if r.chainedM != nil {
			err = r.chainedM.OnProposal(env, body)
		}
	case wire.ChainedVote:
		if r.chainedM != nil && r.verify(env) {
			err = r.chainedM.OnVote(env, body)
		}
	case wire.DAGBlock:
		if r.dagM != nil {
			err = r.dagM.OnBlock(env, body)
		}
	case wire.DAGCert:
		if r.dagM != nil && r.verify(env) {
			err = r.dagM.OnCert(env, body)
		}
	case wire.Checkpoint:
		if r.verify(env) {
			justStable, cert := r.checkptMgr.OnCheckpoint(env, body)
			if justStable {
				r.onCheckpointStable(body.TxnID, cert)
			}
		}
	case wire.ViewChange:
		if r.verify(env) {
			if nv, ok := r.viewMgr.OnViewChange(env, body); ok {
				err = r.viewMgr.BroadcastNewView(nv)
			}
		}
	case wire.NewView:
		err = r.onNewView(env, body)
	}
	if err != nil && r.log != nil {
		r.log.Warn("replica: dispatch failed", "rtype", env.Rtype.String(), "err", err)
	}
}

// onCommitLocal is classical.Machine's commit hook (wired only when
// cfg.BlockchainLog is set): it fires for every index this replica drives
// to committed-local, leader fast path and quorum path alike, so the
// audit log isn't limited to what the leader happened to commit (§6, §13).
func (r *Replica) onCommitLocal(rep *txntable.TxnManager, view, index uint64, hash common.Hash) {
	if rep.PrePrepare == nil {
		return
	}
	if err := r.chainLog.Append(index, view, hash, *rep.PrePrepare, rep.CommitSigs()); err != nil && r.log != nil {
		r.log.Warn("replica: blockchainlog append failed", "txn_id", index, "err", err)
	}
}

// onCheckpointStable advances every component that tracks a watermark or
// an in-flight high bound once this replica's own checkpoint quorum
// stabilizes (§4.10).
func (r *Replica) onCheckpointStable(txnID uint64, cert checkpoint.CommitCertificate) {
	low := r.checkptMgr.LowWatermark()
	if r.classicalM != nil {
		r.classicalM.AdvanceWatermark(low, r.cfg.Core.TxnPerChkpt)
	}
	r.batcher.AdvanceCommitted(low)
	r.transport.ResetFailed()
	_ = cert // relaying CommitCertificate to a remote shard is a deployment-level decision outside this process's scope (§13)
}

func (r *Replica) onNewView(env wire.Envelope, nv wire.NewView) error {
	if err := r.viewMgr.OnNewView(env, nv); err != nil {
		return err
	}
	if r.classicalM != nil {
		r.classicalM.SetView(nv.View)
	}
	r.batcher.SetView(nv.View)
	r.transport.ResetFailed()
	if r.isPrimary(nv.View) {
		go func() {
			if err := r.batchingLoop(context.Background()); err != nil && r.log != nil {
				r.log.Warn("replica: batching loop after view change exited", "err", err)
			}
		}()
	}
	return nil
}

// batchingLoop drains NewTxn while this replica leads the current view,
// building and broadcasting a BATCH_REQ for every CL_BATCH, then driving
// its own fast-path commit (§4.5, §4.6).
func (r *Replica) batchingLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		env, ok := r.queues.NewTxn.TryPop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				continue
			}
		}
		cb, ok := env.Body.(wire.ClientBatch)
		if !ok {
			continue
		}
		view, _, req, err := r.batcher.OnClientBatch(cb)
		if err != nil {
			if r.log != nil {
				r.log.Warn("replica: reject client batch", "err", err)
			}
			continue
		}
		if err := r.batcher.Broadcast(req); err != nil {
			return err
		}
		if r.classicalM != nil {
			if err := r.classicalM.LeaderCommitLocal(view, req); err != nil {
				return err
			}
		}
	}
}
