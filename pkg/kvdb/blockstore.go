// Copyright 2025 Certen Protocol
//
// Package kvdb is the node's raw block store (distinct from the proof
// store in pkg/proofstore): it persists full block cells exactly as
// received, tracks prev/next links between them, and marks which ones
// have been applied or archived. The block subscriber (pkg/subscriber)
// writes here first and only then hands derived artifacts to the proof
// store, mirroring the teacher's separation of a thin wrapper over
// CometBFT's dbm.DB from the higher-level store logic built on it.
package kvdb

import (
	"encoding/binary"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

// LinkDirection names how a block connects to its successor, per
// spec §4.3: ordinarily Next1, except across a shard split where the
// right-hand child is reached via Next2.
type LinkDirection int

const (
	Next1 LinkDirection = iota
	Next2
)

// BlockRecord is everything the node store keeps per block: its raw
// cell, file hash, forward link direction from its predecessor, and
// lifecycle flags.
type BlockRecord struct {
	ID        block.ID
	Root      *cell.Cell
	LinkFrom  LinkDirection
	Applied   bool
	Archived  bool
}

// Store wraps a cometbft-db handle with the narrow set of operations
// the subscriber needs: put, get, mark-applied, archive.
type Store struct {
	db dbm.DB
}

// Open opens (or creates) the node block store at path using the
// named cometbft-db backend ("goleveldb" in production, "memdb" for
// tests).
func Open(backend, name, path string) (*Store, error) {
	db, err := dbm.NewDB(name, dbm.BackendType(backend), path)
	if err != nil {
		return nil, fmt.Errorf("kvdb: open %s backend=%s: %w", path, backend, err)
	}
	return &Store{db: db}, nil
}

func NewFromDB(db dbm.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// PutBlock persists a full block and the direction its predecessor
// should use to reach it, keyed by (workchain, shard, seqno).
func (s *Store) PutBlock(rec BlockRecord) error {
	val, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return s.db.Set(blockKey(rec.ID.Shard, rec.ID.Seqno), val)
}

// GetBlock loads a previously stored block record, returning
// (nil, nil) if absent.
func (s *Store) GetBlock(shard block.ShardIdent, seqno uint32) (*BlockRecord, error) {
	val, err := s.db.Get(blockKey(shard, seqno))
	if err != nil {
		return nil, fmt.Errorf("kvdb: get block: %w", err)
	}
	if val == nil {
		return nil, nil
	}
	rec, err := decodeRecord(val)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkApplied flags a stored block as applied, the transition that
// lets the subscriber safely call proofstore.UpdateSnapshot and
// install new validator sets (§4.3 handle_block).
func (s *Store) MarkApplied(shard block.ShardIdent, seqno uint32) error {
	rec, err := s.GetBlock(shard, seqno)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("kvdb: mark applied: block %d:%x:%d not found", shard.Workchain, shard.Prefix, seqno)
	}
	rec.Applied = true
	return s.PutBlock(*rec)
}

// Archive flags a stored block as archived. In this single-process
// deployment archiving is a logical flag rather than a move to a
// separate cold store; a real multi-tier deployment would relocate
// the record to a compressed append-only file here instead.
func (s *Store) Archive(shard block.ShardIdent, seqno uint32) error {
	rec, err := s.GetBlock(shard, seqno)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("kvdb: archive: block %d:%x:%d not found", shard.Workchain, shard.Prefix, seqno)
	}
	rec.Archived = true
	return s.PutBlock(*rec)
}

func blockKey(shard block.ShardIdent, seqno uint32) []byte {
	key := make([]byte, 1+8+4)
	key[0] = byte(int8(shard.Workchain))
	binary.BigEndian.PutUint64(key[1:9], shard.Prefix)
	binary.BigEndian.PutUint32(key[9:13], seqno)
	return key
}

// encodeRecord/decodeRecord serialize a BlockRecord as
// file_hash(32) ‖ link(1) ‖ applied(1) ‖ archived(1) ‖ BOC, matching
// the fixed-prefix-then-BOC shape the proof store's own column
// families use (pkg/proofstore keys.go).
func encodeRecord(rec BlockRecord) ([]byte, error) {
	boc := rec.Root.ToBOC()
	out := make([]byte, 0, 32+3+len(boc))
	out = append(out, rec.ID.FileHash[:]...)
	out = append(out, byte(rec.LinkFrom))
	out = append(out, boolByte(rec.Applied))
	out = append(out, boolByte(rec.Archived))
	out = append(out, boc...)
	return out, nil
}

func decodeRecord(val []byte) (BlockRecord, error) {
	if len(val) < 35 {
		return BlockRecord{}, fmt.Errorf("kvdb: decode record: short value")
	}
	var rec BlockRecord
	copy(rec.ID.FileHash[:], val[:32])
	rec.LinkFrom = LinkDirection(val[32])
	rec.Applied = val[33] != 0
	rec.Archived = val[34] != 0
	root, err := cell.FromBOC(val[35:])
	if err != nil {
		return BlockRecord{}, fmt.Errorf("kvdb: decode record: %w", err)
	}
	rec.Root = root
	rec.ID.RootHash = hashArr(root.Hash())
	return rec, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func hashArr(h []byte) [32]byte {
	var out [32]byte
	copy(out[:], h)
	return out
}
