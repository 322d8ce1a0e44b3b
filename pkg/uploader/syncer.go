// Copyright 2025 Certen Protocol

package uploader

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
	"github.com/tychoproof/ton-proof-bridge/pkg/netclient"
)

// AuditRecorder persists one row per key-block handover attempt, so an
// operator can reconcile what an uploader submitted against what a
// bridge contract reports on-chain, independent of log retention.
// pkg/database.Client satisfies this with its sync_history table; it
// is optional, so tests and deployments without Postgres configured
// can leave it nil.
type AuditRecorder interface {
	RecordKeyBlockSync(ctx context.Context, pairName string, keyBlockSeqno, vsetUtimeSince uint32, messageHash []byte, syncErr string) error
}

// Uploader drives one (src, dst) key-block sync pair, per spec §4.4:
// it watches src for key blocks the bridge contract on dst has not
// yet seen, and submits Merkle-proofed handovers through its wallet.
// Grounded on original_source's sync-service main loop, which drives
// the same pair over a poll_interval with errors logged rather than
// fatal.
type Uploader struct {
	name         string
	src, dst     netclient.NetworkClient
	bridge       netclient.Account
	wallet       *Wallet
	pollInterval time.Duration
	messageValue uint64
	logger       *log.Logger
	audit        AuditRecorder
	metrics      *uploaderMetrics

	keyBlockCache map[uint32]*netclient.KeyBlockData
}

func New(name string, src, dst netclient.NetworkClient, bridge netclient.Account, wallet *Wallet, pollInterval time.Duration, messageValue uint64, logger *log.Logger) *Uploader {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), fmt.Sprintf("[uploader:%s] ", name), log.LstdFlags)
	}
	return &Uploader{
		name:          name,
		src:           src,
		dst:           dst,
		bridge:        bridge,
		wallet:        wallet,
		pollInterval:  pollInterval,
		messageValue:  messageValue,
		logger:        logger,
		keyBlockCache: make(map[uint32]*netclient.KeyBlockData),
	}
}

// SetAuditRecorder installs the optional sync-history sink. Call this
// once during construction in main.go when the audit database is
// configured; leave unset to skip recording entirely.
func (u *Uploader) SetAuditRecorder(rec AuditRecorder) {
	u.audit = rec
}

// MultiRecorder fans one handover attempt out to several
// AuditRecorders, so main.go can wire both pkg/database's Postgres
// sync_history table and pkg/firestore's real-time mirror behind the
// single AuditRecorder slot an Uploader holds. Every recorder is
// always called, even if an earlier one errors; the first error is
// returned.
type MultiRecorder []AuditRecorder

func (m MultiRecorder) RecordKeyBlockSync(ctx context.Context, pairName string, keyBlockSeqno, vsetUtimeSince uint32, messageHash []byte, syncErr string) error {
	var firstErr error
	for _, rec := range m {
		if rec == nil {
			continue
		}
		if err := rec.RecordKeyBlockSync(ctx, pairName, keyBlockSeqno, vsetUtimeSince, messageHash, syncErr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run loops syncKeyBlocks on pollInterval until ctx is cancelled.
// Errors are logged, never fatal — matching §4.4's "errors are
// logged; the loop continues".
func (u *Uploader) Run(ctx context.Context) {
	ticker := time.NewTicker(u.pollInterval)
	defer ticker.Stop()
	for {
		if err := u.syncKeyBlocks(ctx); err != nil {
			u.logger.Printf("sync_key_blocks: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// maxQueryRetries bounds how many times syncKeyBlocks retries a single
// transient failure from src/dst before giving up on this poll tick,
// closing a TODO left open in the sync loop this package is grounded
// on (its find_next_key_block/get_key_block calls retried forever).
const maxQueryRetries = 20

func (u *Uploader) syncKeyBlocks(ctx context.Context) error {
	utimeSince, err := withRetries(ctx, maxQueryRetries, func() (uint32, error) {
		return u.dst.GetBridgeVsetUtimeSince(ctx, u.bridge)
	})
	if err != nil {
		return fmt.Errorf("read current_vset_utime_since: %w", err)
	}

	candidate, err := u.findNextKeyBlock(ctx, utimeSince)
	if err != nil {
		return fmt.Errorf("find_next_key_block: %w", err)
	}
	if candidate == nil {
		return nil
	}

	sendErr := u.sendKeyBlock(ctx, candidate)
	u.recordAttempt(ctx, candidate, sendErr)
	u.metrics.observe(u.name, sendErr)
	if sendErr != nil {
		return fmt.Errorf("send_key_block(seqno=%d): %w", candidate.Seqno, sendErr)
	}

	for seqno := range u.keyBlockCache {
		if seqno < candidate.PrevKeyBlockSeqno {
			delete(u.keyBlockCache, seqno)
		}
	}
	return nil
}

// findNextKeyBlock walks src's key-block chain backward from its
// latest, looking for the most recent key block whose current vset
// epoch is strictly newer than dst's, stopping the instant it finds
// one that is not (an exact match means dst is current; an older one
// means src is behind dst and sync cannot proceed), per §4.4 step 2.
func (u *Uploader) findNextKeyBlock(ctx context.Context, currentVsetUtimeSince uint32) (*netclient.KeyBlockData, error) {
	seqno, err := withRetries(ctx, maxQueryRetries, func() (uint32, error) {
		return u.src.GetLatestKeyBlockSeqno(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("get latest key block seqno: %w", err)
	}

	var candidate *netclient.KeyBlockData
	for {
		kb, err := u.fetchKeyBlock(ctx, seqno)
		if err != nil {
			return nil, err
		}
		switch {
		case kb.CurrentVset.UtimeSince > currentVsetUtimeSince:
			if candidate == nil {
				candidate = kb
			}
			seqno = kb.PrevKeyBlockSeqno
			continue
		case kb.CurrentVset.UtimeSince < currentVsetUtimeSince:
			return nil, nil
		default:
			return candidate, nil
		}
	}
}

// recordAttempt writes one audit row for a send attempt, success or
// failure, when an AuditRecorder is installed. Audit failures are
// logged, never propagated — losing the audit trail must not turn an
// otherwise-successful handover into a retry.
func (u *Uploader) recordAttempt(ctx context.Context, candidate *netclient.KeyBlockData, sendErr error) {
	if u.audit == nil {
		return
	}
	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	}
	fileHash := candidate.BlockID.FileHash
	if err := u.audit.RecordKeyBlockSync(ctx, u.name, candidate.Seqno, candidate.CurrentVset.UtimeSince, fileHash[:], errMsg); err != nil {
		u.logger.Printf("audit: record sync seqno=%d: %v", candidate.Seqno, err)
	}
}

func (u *Uploader) fetchKeyBlock(ctx context.Context, seqno uint32) (*netclient.KeyBlockData, error) {
	if kb, ok := u.keyBlockCache[seqno]; ok {
		return kb, nil
	}
	kb, err := withRetries(ctx, maxQueryRetries, func() (*netclient.KeyBlockData, error) {
		return u.src.GetKeyBlock(ctx, seqno)
	})
	if err != nil {
		return nil, fmt.Errorf("get_key_block(%d): %w", seqno, err)
	}
	u.keyBlockCache[seqno] = kb
	return kb, nil
}

// withRetries retries fn up to attempts times with a 1-second backoff
// between tries, matching §7's Transport handling: "retryable, handled
// by the uploader with a 1-s backoff, up to a configurable limit in
// queries". The final attempt's error is returned as-is.
func withRetries[T any](ctx context.Context, attempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(time.Second)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
	return zero, lastErr
}

func (u *Uploader) sendKeyBlock(ctx context.Context, candidate *netclient.KeyBlockData) error {
	if candidate.PrevVset == nil {
		return cellkit.E(cellkit.KindInvalidData, "send_key_block", fmt.Errorf("key block %d has no previous validator set", candidate.Seqno))
	}

	proof, err := u.src.MakeKeyBlockProofToSync(candidate)
	if err != nil {
		return fmt.Errorf("make_key_block_proof_to_sync: %w", err)
	}

	sigCell, err := cellproof.PrepareSignatures(candidate.Signatures, *candidate.PrevVset)
	if err != nil {
		return fmt.Errorf("prepare_signatures: %w", err)
	}

	epochData, err := makeEpochData(candidate.CurrentVset)
	if err != nil {
		return fmt.Errorf("make epoch_data: %w", err)
	}

	libAddr, err := u.wallet.DeployVsetLib(ctx, epochData, u.messageValue, uint64(candidate.CurrentVset.UtimeSince))
	if err != nil {
		return fmt.Errorf("deploy_vset_lib: %w", err)
	}
	u.logger.Printf("epoch %d library at %d:%x", candidate.CurrentVset.UtimeSince, libAddr.Workchain, libAddr.ID)

	tx, err := u.wallet.SendKeyBlock(ctx, proof, candidate.BlockID.FileHash, sigCell, u.bridge, u.messageValue, uint64(candidate.Seqno))
	if err != nil {
		return fmt.Errorf("send_key_block: %w", err)
	}
	if tx == nil {
		return netclient.ErrMessageExpired
	}
	return nil
}

// makeEpochData builds the cell a lib_store contract carries for one
// validator-set epoch, per §4.4's epoch_data layout:
// utime_since(32) ‖ utime_until(32) ‖ main_count(16) ‖ cutoff_weight ‖
// ref<dict<u16, (public_key, weight)>>. cutoff_weight is
// total_main_weight*2/3 + 1, the same two-thirds-plus-one threshold
// pkg/cellproof.CheckSignatures enforces when verifying against this
// same vset. The dict is encoded the same count-prefixed, one-ref-per-
// entry way pkg/cellproof.PrepareSignatures encodes its index→signature
// map, rather than as a real bit-trie Hashmap — the bridge contract
// that consumes this cell only ever walks it linearly by index.
func makeEpochData(vset cellproof.ValidatorSet) (*cell.Cell, error) {
	cutoff := vset.TotalWeight*2/3 + 1

	dict := cell.BeginCell()
	if err := dict.StoreUInt(uint64(len(vset.List)), 16); err != nil {
		return nil, fmt.Errorf("epoch_data: store validator count: %w", err)
	}
	for i, v := range vset.List {
		entry := cell.BeginCell()
		if err := entry.StoreUInt(uint64(i), 16); err != nil {
			return nil, fmt.Errorf("epoch_data: store index %d: %w", i, err)
		}
		if err := entry.StoreSlice(v.PublicKey[:], 256); err != nil {
			return nil, fmt.Errorf("epoch_data: store pubkey %d: %w", i, err)
		}
		if err := entry.StoreUInt(v.Weight, 64); err != nil {
			return nil, fmt.Errorf("epoch_data: store weight %d: %w", i, err)
		}
		if err := dict.StoreRef(entry.EndCell()); err != nil {
			return nil, fmt.Errorf("epoch_data: link entry %d: %w", i, err)
		}
	}

	b := cell.BeginCell()
	if err := b.StoreUInt(uint64(vset.UtimeSince), 32); err != nil {
		return nil, err
	}
	if err := b.StoreUInt(uint64(vset.UtimeUntil), 32); err != nil {
		return nil, err
	}
	if err := b.StoreUInt(uint64(len(vset.List)), 16); err != nil {
		return nil, err
	}
	if err := b.StoreUInt(cutoff, 64); err != nil {
		return nil, err
	}
	if err := b.StoreRef(dict.EndCell()); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}
