// Command client is the reference workload-generator/dispatcher process
// (§12 "out of scope... the workload generator and client-side transaction
// dispatcher"): it waits for every replica's bootstrap READY, then submits
// a continuous stream of workload.Uniform batches through
// workload.Dispatcher, retrying against a new primary on CEXE_TIMEOUT.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/common/mclock"
	"github.com/bftcore/bftcore/config"
	"github.com/bftcore/bftcore/internal/keymaterial"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/transport"
	"github.com/bftcore/bftcore/wire"
	"github.com/bftcore/bftcore/workload"
)

func main() {
	app := &cli.App{
		Name:  "client",
		Usage: "submit a workload of put/get requests against the replica set",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file; Default() values are used for anything it omits"},
			&cli.StringFlag{Name: "schema-path", Usage: "directory holding ifconfig.txt (SCHEMA_PATH)", Required: true},
			&cli.UintFlag{Name: "self-id", Usage: "this client's id; must be >= NODE_CNT", Required: true},
			&cli.StringFlag{Name: "key-dir", Usage: "directory to persist/load this client's signing key material (and, under CMAC, to read each replica's provisioned secret)", Required: true},
			&cli.IntFlag{Name: "key-space", Usage: "number of distinct keys the generated workload cycles over", Value: 1000},
			&cli.IntFlag{Name: "num-batches", Usage: "number of batches to submit before exiting; 0 runs until interrupted", Value: 0},
			&cli.BoolFlag{Name: "verbose", Usage: "log at debug level instead of info"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "client:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if _, err := maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {})); err != nil {
		return fmt.Errorf("client: set GOMAXPROCS: %w", err)
	}

	level := log.LevelInfo
	if c.Bool("verbose") {
		level = log.LevelDebug
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, true)))
	l := log.Root()

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	selfID := uint32(c.Uint("self-id"))
	if selfID < cfg.NodeCnt {
		return fmt.Errorf("client: self-id %d must be >= NODE_CNT=%d", selfID, cfg.NodeCnt)
	}

	// ifconfig.txt lines [0, NODE_CNT) are replica addresses (§6); by this
	// process's own convention the following CLIENT_NODE_CNT lines are
	// client addresses in the same id order, so a client's own listen
	// address is simply its own line.
	addrs, err := config.LoadIfconfig(c.String("schema-path"))
	if err != nil {
		return err
	}
	if uint32(len(addrs)) < cfg.NodeCnt+cfg.ClientNodeCnt {
		return fmt.Errorf("client: ifconfig.txt has %d lines, need NODE_CNT+CLIENT_NODE_CNT=%d", len(addrs), cfg.NodeCnt+cfg.ClientNodeCnt)
	}
	if selfID >= cfg.NodeCnt+cfg.ClientNodeCnt {
		return fmt.Errorf("client: self-id %d exceeds NODE_CNT+CLIENT_NODE_CNT=%d", selfID, cfg.NodeCnt+cfg.ClientNodeCnt)
	}

	tport, err := transport.New(transport.DefaultConfig(), selfID, addrs[selfID])
	if err != nil {
		return fmt.Errorf("client: open transport: %w", err)
	}
	defer tport.Close()
	for i := uint32(0); i < cfg.NodeCnt; i++ {
		tport.AddPeer(i, addrs[i])
	}

	method, err := cfg.CryptoMethodValue()
	if err != nil {
		return err
	}
	keyDir := c.String("key-dir")
	signer, verifier, err := buildCrypto(keyDir, selfID, cfg.NodeCnt, method)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap := newClientBootstrap(cfg.NodeCnt)
	go acceptLoop(ctx, tport, l, bootstrap, verifier)

	l.Info("client: waiting for replica bootstrap READY", "self_id", selfID, "node_cnt", cfg.NodeCnt)
	select {
	case <-bootstrap.ready():
	case <-ctx.Done():
		return ctx.Err()
	}
	l.Info("client: every replica is ready, starting workload")

	dispatcher := workload.New(selfID, cfg.NodeCnt, signer, tport, mclock.System{}, l)
	bootstrap.attachDispatcher(dispatcher)
	gen := workload.NewUniform(c.Int("key-space"))

	retry := time.NewTicker(cfg.CExeTimeout)
	defer retry.Stop()

	numBatches := c.Int("num-batches")
	submitted := 0
	for {
		if numBatches > 0 && submitted >= numBatches {
			break
		}
		select {
		case <-ctx.Done():
			l.Info("client: interrupted", "submitted", submitted, "outstanding", dispatcher.OutstandingCount())
			return nil
		case <-retry.C:
			if err := dispatcher.RetryStale(mclock.Now().Add(-cfg.CExeTimeout)); err != nil && l != nil {
				l.Warn("client: retry failed", "err", err)
			}
		default:
		}
		batch := gen.NextBatch(cfg.BatchSize)
		if _, err := dispatcher.Submit(batch); err != nil {
			l.Warn("client: submit failed", "err", err)
		}
		submitted++
	}
	l.Info("client: done", "submitted", submitted, "outstanding", dispatcher.OutstandingCount())
	return nil
}

// buildCrypto constructs this client's Signer and Verifier. Under RSA/
// ED25519 the wire format is self-certifying (the signer's own public key
// travels in every envelope, see bftcrypto's ed25519Verifier/rsaVerifier),
// so no pre-shared key lookup table is needed and PeerKeys is left empty.
// Under CMAC each replica's shared secret has to be known in advance; this
// process reads it from the same key-dir the replica itself persisted to
// (provisioned out-of-band, a simplification of §4.3's pairwise-secret
// model documented in DESIGN.md).
func buildCrypto(keyDir string, selfID, nodeCnt uint32, method wire.CryptoMethod) (bftcrypto.Signer, bftcrypto.Verifier, error) {
	if method == wire.CryptoCMAC {
		secrets := make(map[uint32][]byte, nodeCnt)
		for i := uint32(0); i < nodeCnt; i++ {
			secret, err := keymaterial.ReadSecret(keyDir, i)
			if err != nil {
				return nil, nil, fmt.Errorf("client: %w (run cmd/replica first so every replica's secret exists under key-dir)", err)
			}
			secrets[i] = secret
		}
		signer, err := bftcrypto.NewSigner(method, secrets)
		if err != nil {
			return nil, nil, err
		}
		verifier, err := bftcrypto.NewVerifier(method, bftcrypto.PeerKeys(secrets))
		if err != nil {
			return nil, nil, err
		}
		return signer, verifier, nil
	}

	material, _, err := keymaterial.LoadOrGenerate(keyDir, selfID, method)
	if err != nil {
		return nil, nil, err
	}
	signer, err := bftcrypto.NewSigner(method, material)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := bftcrypto.NewVerifier(method, nil)
	if err != nil {
		return nil, nil, err
	}
	return signer, verifier, nil
}

// clientBootstrap is this process's own miniature mirror of
// keyexchange.Bootstrap's release barrier (§4.3, §5): it waits for a READY
// from every replica before the workload loop submits its first batch, so a
// client never races a replica that hasn't finished exchanging keys with
// its peers yet.
type clientBootstrap struct {
	mu      sync.Mutex
	pending map[uint32]struct{}
	once    sync.Once
	readyCh chan struct{}

	dispatcher *workload.Dispatcher
}

func newClientBootstrap(nodeCnt uint32) *clientBootstrap {
	pending := make(map[uint32]struct{}, nodeCnt)
	for i := uint32(0); i < nodeCnt; i++ {
		pending[i] = struct{}{}
	}
	return &clientBootstrap{pending: pending, readyCh: make(chan struct{})}
}

func (b *clientBootstrap) onReady(r wire.Ready) {
	b.mu.Lock()
	delete(b.pending, r.ReplicaID)
	done := len(b.pending) == 0
	b.mu.Unlock()
	if done {
		b.once.Do(func() { close(b.readyCh) })
	}
}

func (b *clientBootstrap) ready() <-chan struct{} { return b.readyCh }

func (b *clientBootstrap) attachDispatcher(d *workload.Dispatcher) {
	b.mu.Lock()
	b.dispatcher = d
	b.mu.Unlock()
}

func (b *clientBootstrap) onResponse(resp wire.ClientResponse) {
	b.mu.Lock()
	d := b.dispatcher
	b.mu.Unlock()
	if d == nil {
		return
	}
	d.OnViewChange(resp.View)
	d.OnResponse(resp)
}

// acceptLoop mirrors replica.Replica's own accept/read loop (§4.1, §4.4),
// trimmed to the two rtypes a client ever receives: READY during bootstrap
// and CL_RSP once the workload loop is running.
func acceptLoop(ctx context.Context, t *transport.Transport, l log.Logger, b *clientBootstrap, verifier bftcrypto.Verifier) {
	for {
		conn, err := t.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		go readLoop(ctx, conn, l, b, verifier)
	}
}

func readLoop(ctx context.Context, conn net.Conn, l log.Logger, b *clientBootstrap, verifier bftcrypto.Verifier) {
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
			switch body := env.Body.(type) {
			case wire.Ready:
				b.onReady(body)
			case wire.ClientResponse:
				if verifier != nil {
					if err := verifier.Verify(body.CanonicalString(env.Header), env.Sig, env.Key, env.ReturnNodeID, 0); err != nil {
						if l != nil {
							l.Warn("client: CL_RSP verification failed", "sender", env.ReturnNodeID, "err", err)
						}
						continue
					}
				}
				b.onResponse(body)
			}
		}
	}
}
