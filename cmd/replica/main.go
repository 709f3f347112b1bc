// Command replica runs one replica process (§5, §9): it loads config.Config
// and the SCHEMA_PATH/ifconfig.txt address book, materializes this
// replica's signing key under the configured CRYPTO_METHOD, and drives
// replica.Replica to completion or until an interrupt arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/bftcore/bftcore/blockchainlog"
	"github.com/bftcore/bftcore/config"
	"github.com/bftcore/bftcore/internal/keymaterial"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/replica"
	"github.com/bftcore/bftcore/wire"
)

func main() {
	app := &cli.App{
		Name:  "replica",
		Usage: "run one replica of the permissioned BFT replicated state machine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file; Default() values are used for anything it omits"},
			&cli.StringFlag{Name: "schema-path", Usage: "directory holding ifconfig.txt (SCHEMA_PATH)", Required: true},
			&cli.UintFlag{Name: "self-id", Usage: "this replica's id, 0-indexed into ifconfig.txt", Required: true},
			&cli.StringFlag{Name: "key-dir", Usage: "directory to persist/load this replica's signing key material", Required: true},
			&cli.StringFlag{Name: "chainlog", Usage: "if set, path to the optional append-only blockchain log (§6, §13)"},
			&cli.BoolFlag{Name: "verbose", Usage: "log at debug level instead of info"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "replica:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if _, err := maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {})); err != nil {
		return fmt.Errorf("replica: set GOMAXPROCS: %w", err)
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
	cfg.SelfID = uint32(c.Uint("self-id"))
	cfg.SchemaPath = c.String("schema-path")

	addrs, err := config.LoadIfconfig(cfg.SchemaPath)
	if err != nil {
		return err
	}
	if uint32(len(addrs)) < cfg.NodeCnt+cfg.ClientNodeCnt {
		return fmt.Errorf("replica: ifconfig.txt has %d lines, need NODE_CNT+CLIENT_NODE_CNT=%d", len(addrs), cfg.NodeCnt+cfg.ClientNodeCnt)
	}
	replicaAddrs := make(map[uint32]string, cfg.NodeCnt)
	for i := uint32(0); i < cfg.NodeCnt; i++ {
		replicaAddrs[i] = addrs[i]
	}
	if cfg.SelfID >= cfg.NodeCnt {
		return fmt.Errorf("replica: self-id %d is not < NODE_CNT=%d", cfg.SelfID, cfg.NodeCnt)
	}

	// Lines [NODE_CNT, NODE_CNT+CLIENT_NODE_CNT) are client addresses in the
	// same id order, this process's own convention since ifconfig.txt's
	// doc comment only covers replica addressing (§6, see DESIGN.md).
	clientIDs := make([]uint32, cfg.ClientNodeCnt)
	clientAddrs := make(map[uint32]string, cfg.ClientNodeCnt)
	for i := range clientIDs {
		id := cfg.NodeCnt + uint32(i)
		clientIDs[i] = id
		clientAddrs[id] = addrs[id]
	}

	method, err := cfg.CryptoMethodValue()
	if err != nil {
		return err
	}
	keyDir := c.String("key-dir")
	signingMaterial, publicKeyMaterial, err := keymaterial.LoadOrGenerate(keyDir, cfg.SelfID, method)
	if err != nil {
		return err
	}
	if method == wire.CryptoCMAC {
		// keymaterial hands back this replica's single raw secret; wrap it
		// into the per-destination map bftcrypto.NewSigner expects, using
		// the same secret for every peer (§4.3's pairwise-secret model
		// simplified to one secret per replica, broadcast as that replica's
		// PublicKeyMaterial — see DESIGN.md's keyexchange/cmd/replica entry).
		secret := signingMaterial.([]byte)
		peerSecrets := make(map[uint32][]byte, cfg.NodeCnt+cfg.ClientNodeCnt)
		for id := range replicaAddrs {
			peerSecrets[id] = secret
		}
		for _, id := range clientIDs {
			peerSecrets[id] = secret
		}
		signingMaterial = peerSecrets
	}

	var chainLog *blockchainlog.Log
	if path := c.String("chainlog"); path != "" {
		chainLog, err = blockchainlog.Open(path, l)
		if err != nil {
			return err
		}
	}

	r, err := replica.New(replica.Config{
		Core:              cfg,
		SelfID:            cfg.SelfID,
		ReplicaAddrs:      replicaAddrs,
		ClientIDs:         clientIDs,
		ClientAddrs:       clientAddrs,
		SigningMaterial:   signingMaterial,
		PublicKeyMaterial: publicKeyMaterial,
		Logger:            l,
		BlockchainLog:     chainLog,
	})
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.Info("replica: starting", "self_id", cfg.SelfID, "node_cnt", cfg.NodeCnt, "consensus", cfg.Consensus, "crypto_method", cfg.CryptoMethod)
	if err := r.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
