package cellproof

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

// MakePivotBlockProof produces a very small proof used as an
// intermediate link in the proof chain. For a masterchain block it
// retains the full block info (prev-ref, master-ref, prev-vert-ref)
// and forces every shard descriptor in shard_hashes to be visited, so
// the whole binary trie of shard tops survives pruning. For a shard
// block it retains only the prev-ref subtree of info.
func MakePivotBlockProof(isMasterchain bool, blockRoot *cell.Cell) (*cell.Cell, error) {
	view, err := block.New(blockRoot)
	if err != nil {
		return nil, err
	}

	info, err := view.LoadInfo()
	if err != nil {
		return nil, err
	}
	if info.PrevRef != nil {
		info.PrevRef.Slice()
	}

	if isMasterchain {
		if info.MasterRef != nil {
			info.MasterRef.Slice()
		}
		if info.PrevVertRef != nil {
			info.PrevVertRef.Slice()
		}
		if err := view.VisitAllShardHashes(); err != nil {
			return nil, err
		}
	}

	proof, err := view.Tree().BuildProof(blockRoot)
	if err != nil {
		return nil, err
	}
	if string(cellkit.Hash(proof)) != string(blockRoot.Hash()) {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_pivot_block_proof", nil)
	}
	return proof, nil
}
