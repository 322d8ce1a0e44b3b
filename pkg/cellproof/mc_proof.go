package cellproof

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

// MakeMcProof takes a pivot masterchain block (already pruned down to
// info + shard_hashes trie) and a target shard, and returns a proof
// that preserves only the block info and the one shard descriptor
// covering shard.Prefix, plus the highest shard seqno that descriptor
// advertises for shard — the bound used to walk the intermediate
// shard pivots in build_proof.
func MakeMcProof(pivotMcBlockRoot *cell.Cell, shard ShardIdent) (*cell.Cell, uint32, error) {
	view, err := block.New(pivotMcBlockRoot)
	if err != nil {
		return nil, 0, err
	}

	if _, err := view.LoadInfo(); err != nil {
		return nil, 0, err
	}

	descr, _, err := view.FindShardSeqno(shard.Workchain, shard.Prefix)
	if err != nil {
		return nil, 0, err
	}

	proof, err := view.Tree().BuildProof(pivotMcBlockRoot)
	if err != nil {
		return nil, 0, err
	}
	if string(cellkit.Hash(proof)) != string(pivotMcBlockRoot.Hash()) {
		return nil, 0, cellkit.E(cellkit.KindInvalidData, "make_mc_proof", nil)
	}
	return proof, descr.Seqno, nil
}
