package proofstore

import (
	"context"
	"fmt"
	"time"

	"github.com/tecbot/gorocksdb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
)

// Account identifies the transaction build_proof is asked to prove
// inclusion for: the 256-bit account hash plus whether it lives on
// the masterchain (workchain -1) or not, per spec §3.
type Account struct {
	Workchain int32
	Hash      [32]byte
}

// BuildProof implements the §4.2 build_proof contract: look up the
// transaction index entry for (account, lt), reconstruct the pruned
// block it lives in, and — unless the account is itself masterchain —
// chain that block's shard proof back up through its intermediate
// shard pivots to the masterchain pivot the transaction was reported
// under, returning the fully assembled proof chain. A nil cell with a
// nil error means the transaction is not indexed (HTTP 404).
func (s *Store) BuildProof(ctx context.Context, account Account, lt uint64) (*cell.Cell, error) {
	defer s.metrics.observeBuild(time.Now())
	ro, release := s.acquireSnapshot()
	defer release()

	txVal, err := s.db.GetCF(ro, s.cf(cfTransactions), txKey(lt, account.Workchain, account.Hash))
	if err != nil {
		return nil, fmt.Errorf("proofstore: build_proof: read tx index: %w", err)
	}
	defer txVal.Free()
	if txVal.Size() == 0 {
		return nil, nil
	}
	tv, ok := decodeTxValue(append([]byte(nil), txVal.Data()...))
	if !ok {
		return nil, fmt.Errorf("proofstore: build_proof: corrupt tx index value")
	}

	if err := ctx.Err(); err != nil {
		return nil, cellkit.E(cellkit.KindCancelled, "build_proof", err)
	}

	txShard := block.ShardIdent{Workchain: tv.Workchain, Prefix: tv.ShardPrefix}

	txBlockFileHash, txBlockCell, err := s.loadArtifact(ro, cfPrunedBlocks, txShard, tv.TxBlockSeqno)
	if err != nil {
		return nil, fmt.Errorf("proofstore: build_proof: block not found: %w", err)
	}

	virtualized, err := cellkit.Virtualize(txBlockCell)
	if err != nil {
		return nil, err
	}

	isMasterchain := account.Workchain == -1
	txProof, err := cellproof.MakeTxProof(virtualized, account.Hash, lt, isMasterchain)
	if err != nil {
		return nil, err
	}
	if txProof == nil {
		return nil, fmt.Errorf("proofstore: build_proof: tx not found in block")
	}

	sigVal, err := s.db.GetCF(ro, s.cf(cfSignatures), signaturesKey(tv.RefByMcSeqno))
	if err != nil {
		return nil, fmt.Errorf("proofstore: build_proof: read signatures: %w", err)
	}
	defer sigVal.Free()
	vsetUtimeSince, sigBOC, ok := decodeSignaturesValue(append([]byte(nil), sigVal.Data()...))
	if !ok {
		return nil, fmt.Errorf("proofstore: build_proof: signatures not found for mc_seqno=%d", tv.RefByMcSeqno)
	}
	sigCell, err := cell.FromBOC(sigBOC)
	if err != nil {
		return nil, fmt.Errorf("proofstore: build_proof: decode signatures BOC: %w", err)
	}

	if isMasterchain {
		return cellproof.MakeProofChain(txBlockFileHash, txProof, nil, vsetUtimeSince, sigCell)
	}

	if err := ctx.Err(); err != nil {
		return nil, cellkit.E(cellkit.KindCancelled, "build_proof", err)
	}

	mcFileHash, mcPivotCell, err := s.loadArtifact(ro, cfPivotBlocks, block.ShardIdent{Workchain: -1, Prefix: block.MasterchainPrefix}, tv.RefByMcSeqno)
	if err != nil {
		return nil, fmt.Errorf("proofstore: build_proof: mc pivot not found: %w", err)
	}

	mcProof, latestShardSeqno, err := cellproof.MakeMcProof(mcPivotCell, txShard)
	if err != nil {
		return nil, err
	}
	if latestShardSeqno < tv.TxBlockSeqno {
		return nil, fmt.Errorf("proofstore: build_proof: mc block %d references shard seqno %d, older than tx block %d",
			tv.RefByMcSeqno, latestShardSeqno, tv.TxBlockSeqno)
	}

	shardProofs := make([]*cell.Cell, 0, latestShardSeqno-tv.TxBlockSeqno+1)
	for seqno := latestShardSeqno; seqno > tv.TxBlockSeqno; seqno-- {
		if err := ctx.Err(); err != nil {
			return nil, cellkit.E(cellkit.KindCancelled, "build_proof", err)
		}
		_, pivotCell, err := s.loadArtifact(ro, cfPivotBlocks, txShard, seqno)
		if err != nil {
			return nil, fmt.Errorf("proofstore: build_proof: intermediate shard pivot %d not found: %w", seqno, err)
		}
		shardProofs = append(shardProofs, pivotCell)
	}
	shardProofs = append(shardProofs, txProof)

	return cellproof.MakeProofChain(mcFileHash, mcProof, shardProofs, vsetUtimeSince, sigCell)
}

// loadArtifact reads one blockValue record from cfName (pruned_blocks
// or pivot_blocks) and decodes its BOC, returning the stored file
// hash alongside the un-virtualized cell — build_proof's callers
// decide for themselves whether to virtualize.
func (s *Store) loadArtifact(ro *gorocksdb.ReadOptions, cfName string, shard block.ShardIdent, seqno uint32) ([32]byte, *cell.Cell, error) {
	val, err := s.db.GetCF(ro, s.cf(cfName), blockKey(shard, seqno))
	if err != nil {
		return [32]byte{}, nil, err
	}
	defer val.Free()
	if val.Size() == 0 {
		return [32]byte{}, nil, fmt.Errorf("not found: %s %+v seqno=%d", cfName, shard, seqno)
	}
	bv, ok := decodeBlockValue(append([]byte(nil), val.Data()...))
	if !ok {
		return [32]byte{}, nil, fmt.Errorf("corrupt block value: %s %+v seqno=%d", cfName, shard, seqno)
	}
	c, err := cell.FromBOC(bv.BOC)
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("decode boc: %w", err)
	}
	return bv.FileHash, c, nil
}
