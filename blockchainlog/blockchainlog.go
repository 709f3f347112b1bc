// Package blockchainlog implements the optional append-only commit log
// (§6 "Persisted state... An optional append-only blockchain log stores,
// per committed batch, (txn_id, signed pre-prepare, [signed commits])").
// The core's correctness never depends on this log; it exists purely as an
// audit trail a replica operator may enable.
package blockchainlog

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bftcore/bftcore/common"
	"github.com/bftcore/bftcore/log"
	"github.com/bftcore/bftcore/wire"
)

// Entry is one committed batch's persisted record.
type Entry struct {
	TxnID         uint64
	View          uint64
	Hash          common.Hash
	PrePrepare    wire.BatchReq
	CommitSigners []uint32
	CommitSigs    [][]byte
}

func init() {
	gob.Register(Entry{})
}

// Log appends Entrys to a single file, one gob-encoded record at a time, in
// the same spirit as the teacher's own append-only freezer tables: writes
// are sequential, never rewritten in place, and a reader replays from the
// start to reconstruct state.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	log  log.Logger
}

// Open creates or appends to path.
func Open(path string, l log.Logger) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockchainlog: open %s: %w", path, err)
	}
	return &Log{f: f, w: bufio.NewWriter(f), log: l}, nil
}

// Append persists one committed batch's entry, built from the
// representative TxnManager's retained pre-prepare and commit signatures.
// The caller is expected to have already confirmed commitLocal (§4.6);
// Append does not itself check Committed().
func (lg *Log) Append(txnID, view uint64, hash common.Hash, bp wire.BatchReq, commitSigs map[uint32][]byte) error {
	signers := make([]uint32, 0, len(commitSigs))
	for s := range commitSigs {
		signers = append(signers, s)
	}
	sort.Slice(signers, func(i, j int) bool { return signers[i] < signers[j] })
	sigs := make([][]byte, len(signers))
	for i, s := range signers {
		sigs[i] = commitSigs[s]
	}
	entry := Entry{TxnID: txnID, View: view, Hash: hash, PrePrepare: bp, CommitSigners: signers, CommitSigs: sigs}

	lg.mu.Lock()
	defer lg.mu.Unlock()
	enc := gob.NewEncoder(lg.w)
	if err := enc.Encode(&entry); err != nil {
		return fmt.Errorf("blockchainlog: encode entry %d: %w", txnID, err)
	}
	if err := lg.w.Flush(); err != nil {
		return fmt.Errorf("blockchainlog: flush entry %d: %w", txnID, err)
	}
	if lg.log != nil {
		lg.log.Debug("blockchainlog: appended entry", "txn_id", txnID, "signers", len(signers))
	}
	return nil
}

// Close flushes and closes the backing file.
func (lg *Log) Close() error {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if err := lg.w.Flush(); err != nil {
		return err
	}
	return lg.f.Close()
}

// Replay reads every Entry from path in append order, for audit or
// recovery tooling outside the core's own hot path.
func Replay(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blockchainlog: open %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	dec := gob.NewDecoder(bufio.NewReader(f))
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if err.Error() == "EOF" {
				break
			}
			return entries, fmt.Errorf("blockchainlog: decode: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
