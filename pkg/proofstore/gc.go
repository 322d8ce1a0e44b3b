package proofstore

import (
	"fmt"

	"github.com/tecbot/gorocksdb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

// OutdatedBound is the result of find_outdated_bound: everything at or
// below GenUtime/MCSeqno is old enough to drop, and Blocks carries the
// masterchain pivot's own identity plus every shard top it referenced
// at that point, each seqno being the true per-shard cutoff rather
// than a single seqno applied uniformly — GC must never delete a shard
// pivot newer than what the masterchain pivot it hangs off actually
// points at.
type OutdatedBound struct {
	GenUtime uint32
	MCSeqno  uint32
	EndLT    uint64
	Blocks   []ShardBound
}

// ShardBound is one shard's GC cutoff: everything at or below Seqno on
// Shard is safe to drop.
type ShardBound struct {
	Shard block.ShardIdent
	Seqno uint32
}

// FindOutdatedBound implements §4.2's find_outdated_bound: scan the
// timings column family for the newest record at or before
// removeUntil, then load the masterchain pivot block stored under
// that record's seqno and call parse_latest_shard_blocks on it to
// recover the true end_lt and the per-shard seqno bounds that were in
// force at that point in history.
func (s *Store) FindOutdatedBound(removeUntil int64) (*OutdatedBound, error) {
	if removeUntil <= 0 {
		return nil, nil
	}

	it := s.db.NewIteratorCF(s.ro, s.cf(cfTimings))
	defer it.Close()

	it.SeekForPrev(timingsKey(uint32(removeUntil)))
	if !it.Valid() {
		return nil, nil
	}
	key := it.Key()
	val := it.Value()
	defer key.Free()
	defer val.Free()

	if len(key.Data()) != 4 {
		return nil, fmt.Errorf("proofstore: corrupt timings key")
	}
	genUtime, ok := decodeTimingsKey(key.Data())
	if !ok {
		return nil, fmt.Errorf("proofstore: corrupt timings key")
	}
	mcSeqno, ok := decodeTimingsValue(val.Data())
	if !ok {
		return nil, fmt.Errorf("proofstore: corrupt timings value")
	}

	mcShard := block.ShardIdent{Workchain: -1, Prefix: block.MasterchainPrefix}
	mcVal, err := s.db.GetCF(s.ro, s.cf(cfPivotBlocks), blockKey(mcShard, mcSeqno))
	if err != nil {
		return nil, fmt.Errorf("proofstore: find_outdated_bound: read mc pivot: %w", err)
	}
	defer mcVal.Free()
	if mcVal.Size() == 0 {
		// The pivot for this timings record was already GC'd by an
		// earlier cycle; nothing new to delete this time around.
		return nil, nil
	}
	bv, ok := decodeBlockValue(append([]byte(nil), mcVal.Data()...))
	if !ok {
		return nil, fmt.Errorf("proofstore: find_outdated_bound: corrupt mc pivot value")
	}
	mcRoot, err := cell.FromBOC(bv.BOC)
	if err != nil {
		return nil, fmt.Errorf("proofstore: find_outdated_bound: decode mc pivot boc: %w", err)
	}

	endLT, tops, err := block.ParseLatestShardBlocks(mcRoot)
	if err != nil {
		return nil, fmt.Errorf("proofstore: find_outdated_bound: parse_latest_shard_blocks: %w", err)
	}

	blocks := make([]ShardBound, 0, len(tops)+1)
	blocks = append(blocks, ShardBound{Shard: mcShard, Seqno: mcSeqno})
	for _, top := range tops {
		blocks = append(blocks, ShardBound{Shard: top.Shard, Seqno: top.Seqno})
	}

	return &OutdatedBound{GenUtime: genUtime, MCSeqno: mcSeqno, EndLT: endLT, Blocks: blocks}, nil
}

func decodeTimingsKey(b []byte) (uint32, bool) {
	if len(b) != 4 {
		return 0, false
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}

// appendGCDeletes queues range-deletes for every column family GC
// retires once bound is reached: timings up to and including
// bound.GenUtime, signatures up to and including bound.MCSeqno, the
// transaction index up to bound.EndLT,
// and pivot_blocks/pruned_blocks per shard up to that shard's own
// recorded seqno bound rather than a single bound applied across every
// shard.
func (s *Store) appendGCDeletes(batch *gorocksdb.WriteBatch, bound OutdatedBound) {
	batch.DeleteRangeCF(s.cf(cfTimings), []byte{0, 0, 0, 0}, timingsKey(bound.GenUtime+1))
	batch.DeleteRangeCF(s.cf(cfSignatures), []byte{0, 0, 0, 0}, signaturesKey(bound.MCSeqno+1))
	batch.DeleteRangeCF(s.cf(cfTransactions), []byte{}, txUpperBound(bound.EndLT))

	for _, b := range bound.Blocks {
		lower := shardPrefixKey(b.Shard)
		upper := blockKey(b.Shard, b.Seqno+1)
		batch.DeleteRangeCF(s.cf(cfPivotBlocks), lower, upper)
		batch.DeleteRangeCF(s.cf(cfPrunedBlocks), lower, upper)
	}
}
