// Copyright 2025 Certen Protocol
//
// Package subscriber implements component E: it consumes callbacks
// from a live block stream (an external collaborator per spec §1),
// persists each block to the node's own store, derives pruned/pivot
// proof artifacts and signature dictionaries through pkg/cellproof,
// hands them to pkg/proofstore, and keeps the process-wide "current
// validator set" reference the storage layer canonicalizes signatures
// against. Grounded on the shape of the teacher's subscriber-style
// callback pairs (e.g. pkg/batch.Collector's ingest/commit split, now
// gone from this tree but what this package's two-phase
// PrepareBlock/HandleBlock split is modeled after).
package subscriber

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
	"github.com/tychoproof/ton-proof-bridge/pkg/kvdb"
	"github.com/tychoproof/ton-proof-bridge/pkg/proofstore"
)

const currentVsetConfigParam uint32 = 34

// BlockEvent is everything the live block stream hands the subscriber
// for one block. PrevShard is nil for a chain's genesis block.
type BlockEvent struct {
	Root       *cell.Cell
	FileHash   [32]byte
	Shard      block.ShardIdent
	Seqno      uint32
	GenUtime   uint32
	PrevShard  *block.ShardIdent
	McSeqno    uint32 // the masterchain seqno this block is linked through
	IsKeyBlock bool
}

func (e BlockEvent) IsMasterchain() bool { return e.Shard.IsMasterchain() }

// SignatureSource loads the raw, node-id-short-keyed signature set a
// masterchain block's own proof carries. The implementation main.go
// wires in, netclient.SignatureSourceAdapter, fetches it from the
// source network client; the node store (pkg/kvdb) keeps no block
// proofs and is not read for it.
type SignatureSource interface {
	LoadMasterchainSignatures(ctx context.Context, seqno uint32) ([]cellproof.SignatureEntry, error)
}

// Subscriber wires components B/C/D together behind the two callbacks
// a live block stream invokes.
type Subscriber struct {
	nodeStore      *kvdb.Store
	proofStore     *proofstore.Store
	sigSource      SignatureSource
	archiveEnabled bool
	log            *log.Logger

	currentVset atomic.Pointer[cellproof.ValidatorSet]
}

func New(nodeStore *kvdb.Store, proofStore *proofstore.Store, sigSource SignatureSource, archiveEnabled bool, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.New(log.Writer(), "[subscriber] ", log.LstdFlags)
	}
	return &Subscriber{
		nodeStore:      nodeStore,
		proofStore:     proofStore,
		sigSource:      sigSource,
		archiveEnabled: archiveEnabled,
		log:            logger,
	}
}

// SetCurrentVset installs the validator set store_block canonicalizes
// signatures against. Call this during init with the network's
// current epoch before any live blocks arrive, so the cold-start race
// described in §5 resolves cleanly (store_block fails rather than
// silently accepting signatures against no vset).
func (s *Subscriber) SetCurrentVset(vset cellproof.ValidatorSet) {
	s.currentVset.Store(&vset)
}

// CurrentVset returns the installed validator set, or nil if none has
// been installed yet.
func (s *Subscriber) CurrentVset() *cellproof.ValidatorSet {
	return s.currentVset.Load()
}

// PrepareBlock persists block to the node store and feeds it through
// the proof-chain builder into the proof store, per §4.3's
// prepare_block contract.
func (s *Subscriber) PrepareBlock(ctx context.Context, ev BlockEvent) error {
	link := kvdb.Next1
	if ev.PrevShard != nil && block.IsRightChildOf(*ev.PrevShard, ev.Shard) {
		link = kvdb.Next2
	}

	id := block.ID{Shard: ev.Shard, Seqno: ev.Seqno, FileHash: ev.FileHash}
	copy(id.RootHash[:], ev.Root.Hash())

	if err := s.nodeStore.PutBlock(kvdb.BlockRecord{ID: id, Root: ev.Root, LinkFrom: link}); err != nil {
		return fmt.Errorf("subscriber: prepare_block: persist to node store: %w", err)
	}

	var sig *proofstore.VsetSignatures
	if ev.IsMasterchain() {
		vset := s.currentVset.Load()
		if vset == nil {
			return cellkit.E(cellkit.KindNotFound, "prepare_block", fmt.Errorf("no current validator set installed"))
		}
		entries, err := s.sigSource.LoadMasterchainSignatures(ctx, ev.Seqno)
		if err != nil {
			return fmt.Errorf("subscriber: prepare_block: load signatures: %w", err)
		}
		sig = &proofstore.VsetSignatures{Entries: entries, Vset: *vset}
	}

	err := s.proofStore.StoreBlock(proofstore.IncomingBlock{
		Root:     ev.Root,
		FileHash: ev.FileHash,
		ID:       id,
		Shard:    ev.Shard,
		Seqno:    ev.Seqno,
		GenUtime: ev.GenUtime,
	}, sig, ev.McSeqno)
	if err != nil {
		return fmt.Errorf("subscriber: prepare_block: store_block: %w", err)
	}
	return nil
}

// HandleBlock marks the block applied (and archived, if enabled), per
// §4.3's handle_block contract: masterchain blocks trigger a fresh
// proof-store read snapshot, and key blocks install their
// current_validator_set into the shared reference other PrepareBlock
// calls will canonicalize signatures against.
func (s *Subscriber) HandleBlock(ctx context.Context, ev BlockEvent) error {
	if err := s.nodeStore.MarkApplied(ev.Shard, ev.Seqno); err != nil {
		return fmt.Errorf("subscriber: handle_block: mark applied: %w", err)
	}
	if s.archiveEnabled {
		if err := s.nodeStore.Archive(ev.Shard, ev.Seqno); err != nil {
			return fmt.Errorf("subscriber: handle_block: archive: %w", err)
		}
	}

	if ev.IsMasterchain() {
		s.proofStore.UpdateSnapshot()
	}

	if ev.IsKeyBlock {
		vset, err := decodeCurrentVset(ev.Root)
		if err != nil {
			return fmt.Errorf("subscriber: handle_block: decode current vset: %w", err)
		}
		s.log.Printf("installing validator set epoch utime_since=%d list=%d", vset.UtimeSince, len(vset.List))
		s.SetCurrentVset(vset)
	}
	return nil
}

func decodeCurrentVset(root *cell.Cell) (cellproof.ValidatorSet, error) {
	view, err := block.New(root)
	if err != nil {
		return cellproof.ValidatorSet{}, err
	}
	cfg, ok, err := view.Config()
	if err != nil {
		return cellproof.ValidatorSet{}, err
	}
	if !ok {
		return cellproof.ValidatorSet{}, cellkit.E(cellkit.KindInvalidData, "decode_current_vset", fmt.Errorf("key block has no config"))
	}
	paramCell, ok, err := block.ConfigParamCell(cfg, currentVsetConfigParam)
	if err != nil {
		return cellproof.ValidatorSet{}, err
	}
	if !ok {
		return cellproof.ValidatorSet{}, cellkit.E(cellkit.KindNotFound, "decode_current_vset", fmt.Errorf("config param 34 missing"))
	}
	return cellproof.DecodeValidatorSet(paramCell)
}
