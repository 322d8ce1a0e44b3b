package proofstore

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tecbot/gorocksdb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
)

// IncomingBlock bundles a decoded block with the identity fields
// store_block needs but can't derive from the cell alone.
type IncomingBlock struct {
	Root     *cell.Cell
	FileHash [32]byte
	ID       block.ID
	Shard    block.ShardIdent
	Seqno    uint32
	GenUtime uint32
}

// VsetSignatures is the masterchain-only input to store_block: raw
// signatures keyed by node-id-short, plus the validator set used to
// canonicalize them.
type VsetSignatures struct {
	Entries []cellproof.SignatureEntry
	Vset    cellproof.ValidatorSet
}

// StoreBlock implements the §4.2 store_block contract: it
// canonicalizes signatures and builds a pivot proof on the CPU
// worker pool, streams make_pruned_block to index every transaction,
// and writes everything in one atomic batch, including any GC
// range-deletes due this cycle.
func (s *Store) StoreBlock(b IncomingBlock, sig *VsetSignatures, refByMcSeqno uint32) error {
	defer s.metrics.observeIngest(time.Now())
	if _, overflow := int8ptr(b.Shard.Workchain); overflow {
		return nil // non-standard workchain: silently dropped per contract.
	}
	if int64(b.GenUtime) < time.Now().Unix()-s.cfg.MinProofTTLSec {
		return nil // older than the GC horizon: not worth indexing.
	}

	isMasterchain := b.Shard.IsMasterchain()
	if isMasterchain && sig == nil {
		return fmt.Errorf("proofstore: store_block: missing signatures for masterchain block")
	}

	var cancelled atomic.Bool

	sigResult := submitCPU(s.cpuPool, func() (*cell.Cell, error) {
		if sig == nil {
			return nil, nil
		}
		return cellproof.PrepareSignatures(sig.Entries, sig.Vset)
	})
	pivotResult := submitCPU(s.cpuPool, func() (*cell.Cell, error) {
		return cellproof.MakePivotBlockProof(isMasterchain, b.Root)
	})

	batch := gorocksdb.NewWriteBatch()
	defer batch.Destroy()

	count := 0
	prunedProof, err := cellproof.MakePrunedBlock(b.Root, func(tx cellproof.TxVisit) error {
		count++
		if count%100 == 0 && cancelled.Load() {
			return fmt.Errorf("cancelled")
		}
		val := encodeTxValue(txValue{
			Workchain:    b.Shard.Workchain,
			ShardPrefix:  b.Shard.Prefix,
			TxBlockSeqno: b.Seqno,
			RefByMcSeqno: refByMcSeqno,
		})
		batch.PutCF(s.cf(cfTransactions), txKey(tx.LT, b.Shard.Workchain, tx.Account), val)
		return nil
	})
	if err != nil {
		return fmt.Errorf("proofstore: make_pruned_block: %w", err)
	}
	prunedBOC, err := encodeBOC(prunedProof)
	if err != nil {
		return err
	}
	batch.PutCF(s.cf(cfPrunedBlocks), blockKey(b.Shard, b.Seqno),
		encodeBlockValue(blockValue{FileHash: b.FileHash, BOC: prunedBOC}))

	sigRes := <-sigResult
	if sig != nil {
		if sigRes.err != nil {
			return fmt.Errorf("proofstore: prepare_signatures: %w", sigRes.err)
		}
		sigBOC, err := encodeBOC(sigRes.val)
		if err != nil {
			return err
		}
		batch.PutCF(s.cf(cfSignatures), signaturesKey(refByMcSeqno),
			encodeSignaturesValue(sig.Vset.UtimeSince, sigBOC))
	}

	pivotRes := <-pivotResult
	if pivotRes.err != nil {
		return fmt.Errorf("proofstore: make_pivot_block_proof: %w", pivotRes.err)
	}
	pivotBOC, err := encodeBOC(pivotRes.val)
	if err != nil {
		return err
	}
	batch.PutCF(s.cf(cfPivotBlocks), blockKey(b.Shard, b.Seqno),
		encodeBlockValue(blockValue{FileHash: b.FileHash, BOC: pivotBOC}))

	var outdated *OutdatedBound
	if isMasterchain && b.Seqno%StoreTimingsStep == 0 {
		batch.PutCF(s.cf(cfTimings), timingsKey(b.GenUtime), encodeTimingsValue(b.Seqno))

		removeUntil := time.Now().Unix() - s.cfg.MinProofTTLSec
		outdated, err = s.FindOutdatedBound(removeUntil)
		if err != nil {
			return fmt.Errorf("proofstore: find_outdated_bound: %w", err)
		}
	}
	if outdated != nil {
		s.appendGCDeletes(batch, *outdated)
		s.metrics.incGCSweep()
	}

	if err := s.db.Write(s.wo, batch); err != nil {
		return fmt.Errorf("proofstore: write batch: %w", err)
	}
	return nil
}

type asyncResult[T any] struct {
	val T
	err error
}

func int8ptr(workchain int32) (int8, bool) {
	if workchain < -128 || workchain > 127 {
		return 0, true
	}
	return int8(workchain), false
}

func encodeBOC(c *cell.Cell) ([]byte, error) {
	boc := c.ToBOC()
	if boc == nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "encode_boc", nil)
	}
	return boc, nil
}
