package block

import "github.com/xssnick/tonutils-go/tvm/cell"

// ParseLatestShardBlocks decodes a masterchain block's shard_hashes
// dictionary in full and returns every shard's latest referenced
// seqno plus the largest end_lt among them — the inputs
// find_outdated_bound needs to compute a GC bound, grounded on the
// same masterchain custom part make_pivot_block_proof and
// make_mc_proof already know how to reach.
func ParseLatestShardBlocks(mcBlockRoot *cell.Cell) (endLT uint64, tops []ShardTop, err error) {
	view, err := New(mcBlockRoot)
	if err != nil {
		return 0, nil, err
	}
	if _, err := view.LoadInfo(); err != nil {
		return 0, nil, err
	}
	return view.ListShardTops()
}
