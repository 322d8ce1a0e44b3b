package block

import (
	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

// shardHashes wraps the masterchain custom part's
// `shard_hashes:(HashmapE 32 ^(BinTree ShardDescr))` dictionary.
type shardHashes struct {
	root *cellkit.Tracked
}

// decodeHashmap32 walks a 32-bit-keyed Hashmap whose values are single
// cell refs (workchain id -> BinTree root), reusing the generic edge
// walker from dict.go.
func decodeHashmap32(root *cellkit.Tracked) ([]kv32Small, error) {
	var out []kv32Small
	err := walkEdge(root, nil, 32, func(key []byte, leaf *cellkit.Tracked) error {
		var k int32
		for _, b := range key {
			k = k<<8 | int32(b)
		}
		out = append(out, kv32Small{workchain: k, value: leaf})
		return nil
	})
	return out, err
}

type kv32Small struct {
	workchain int32
	value     *cellkit.Tracked
}

// visitAll touches every cell of every BinTree in the dictionary, the
// way make_pivot_block_proof needs so the full trie of shard tops
// stays in the pruned proof even though no single leaf is queried.
func (sh *shardHashes) visitAll() error {
	workchains, err := decodeHashmap32(sh.root)
	if err != nil {
		return err
	}
	for _, wc := range workchains {
		binRoot, err := wc.value.Slice().LoadRef()
		if err != nil {
			return cellkit.E(cellkit.KindCellUnderflow, "shard_hashes.bintree", err)
		}
		if err := visitBinTree(binRoot); err != nil {
			return err
		}
	}
	return nil
}

func visitBinTree(n *cellkit.Tracked) error {
	s := n.Slice()
	isFork, err := s.LoadUInt(1)
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "bintree", err)
	}
	if isFork == 0 {
		// bt_leaf$0 descr:ShardDescr — touch the descriptor body.
		_, _ = s.LoadBits(minInt(s.RestBits(), 8))
		return nil
	}
	left, err := s.LoadRef()
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "bintree.left", err)
	}
	right, err := s.LoadRef()
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "bintree.right", err)
	}
	if err := visitBinTree(left); err != nil {
		return err
	}
	return visitBinTree(right)
}

// find descends the BinTree for workchain down to the leaf covering
// prefix, mirroring original_source's find_shard_descr: each fork
// reads one `bt_fork$1` tag bit, then follows the left (prefix bit 0)
// or right (prefix bit 1) branch, consuming one prefix bit per level,
// until prefix == high-bit-only (the leaf's own address).
func (sh *shardHashes) find(workchain int32, prefix uint64) (ShardDescr, int, error) {
	if prefix == 0 {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindInvalidData, "find_shard_descr", nil)
	}
	originalPrefix := prefix

	workchains, err := decodeHashmap32(sh.root)
	if err != nil {
		return ShardDescr{}, 0, err
	}
	var binRootTracked *cellkit.Tracked
	for _, wc := range workchains {
		if wc.workchain == workchain {
			binRootTracked = wc.value
			break
		}
	}
	if binRootTracked == nil {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindCellUnderflow, "find_shard_descr", nil)
	}
	binRoot, err := binRootTracked.Slice().LoadRef()
	if err != nil {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindCellUnderflow, "find_shard_descr", err)
	}

	const highBit uint64 = 1 << 63
	node := binRoot
	for prefix != highBit {
		s := node.Slice()
		isFork, err := s.LoadUInt(1)
		if err != nil {
			return ShardDescr{}, 0, cellkit.E(cellkit.KindCellUnderflow, "find_shard_descr", err)
		}
		if isFork == 0 {
			return ShardDescr{}, 0, cellkit.E(cellkit.KindInvalidData, "find_shard_descr", nil)
		}
		idx := 0
		if prefix&highBit != 0 {
			idx = 1
		}
		ref, err := s.PeekRef(idx)
		if err != nil {
			return ShardDescr{}, 0, cellkit.E(cellkit.KindCellUnderflow, "find_shard_descr", err)
		}
		node = ref
		prefix <<= 1
	}

	s := node.Slice()
	isFork, err := s.LoadUInt(1)
	if err != nil {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindCellUnderflow, "find_shard_descr", err)
	}
	if isFork != 0 {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindInvalidData, "find_shard_descr", nil)
	}

	tag, err := s.LoadUInt(4)
	if err != nil {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindCellUnderflow, "shard_descr.tag", err)
	}
	if int(tag) != tagShardDescr && int(tag) != tagShardDescrNew {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindInvalidTag, "shard_descr.tag", nil)
	}
	seqno, err := s.LoadUInt(32)
	if err != nil {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindCellUnderflow, "shard_descr.seqno", err)
	}

	return ShardDescr{
		Shard:   ShardIdent{Workchain: workchain, Prefix: originalPrefix},
		Seqno:   uint32(seqno),
		RootRaw: node.Cell(),
	}, int(tag), nil
}

// listAll performs a full decode of every leaf in the dictionary
// (unlike find, which descends a single branch, and unlike visitAll,
// which only touches bytes for pruning). It reads through the same
// tracked handles, but its caller never builds a proof from the
// resulting usage tree. It returns
// each shard's latest referenced seqno plus the largest end_lt seen,
// the inputs find_outdated_bound needs from parse_latest_shard_blocks.
func (sh *shardHashes) listAll() (uint64, []ShardTop, error) {
	workchains, err := decodeHashmap32(sh.root)
	if err != nil {
		return 0, nil, err
	}
	var tops []ShardTop
	var maxEndLT uint64
	for _, wc := range workchains {
		binRoot, err := wc.value.Slice().LoadRef()
		if err != nil {
			return 0, nil, cellkit.E(cellkit.KindCellUnderflow, "shard_hashes.bintree", err)
		}
		if err := collectBinTree(wc.workchain, binRoot, 0, 0, &tops, &maxEndLT); err != nil {
			return 0, nil, err
		}
	}
	return maxEndLT, tops, nil
}

// collectBinTree mirrors find's descent in reverse: accum/depth carry
// the prefix bits consumed so far (0 for a left branch, 1 for a
// right branch), so a leaf can reconstruct the full shard prefix by
// appending the single terminator bit find's loop stops on.
func collectBinTree(workchain int32, n *cellkit.Tracked, accum uint64, depth int, tops *[]ShardTop, maxEndLT *uint64) error {
	s := n.Slice()
	isFork, err := s.LoadUInt(1)
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "bintree", err)
	}
	if isFork == 0 {
		tag, err := s.LoadUInt(4)
		if err != nil {
			return cellkit.E(cellkit.KindCellUnderflow, "shard_descr.tag", err)
		}
		if int(tag) != tagShardDescr && int(tag) != tagShardDescrNew {
			return cellkit.E(cellkit.KindInvalidTag, "shard_descr.tag", nil)
		}
		seqno, err := s.LoadUInt(32)
		if err != nil {
			return cellkit.E(cellkit.KindCellUnderflow, "shard_descr.seqno", err)
		}
		_, err = s.LoadUInt(32) // reg_mc_seqno
		if err != nil {
			return cellkit.E(cellkit.KindCellUnderflow, "shard_descr.reg_mc_seqno", err)
		}
		_, err = s.LoadUInt(64) // start_lt
		if err != nil {
			return cellkit.E(cellkit.KindCellUnderflow, "shard_descr.start_lt", err)
		}
		endLT, err := s.LoadUInt(64)
		if err != nil {
			return cellkit.E(cellkit.KindCellUnderflow, "shard_descr.end_lt", err)
		}
		prefix := accum | (uint64(1) << uint(63-depth))
		*tops = append(*tops, ShardTop{Shard: ShardIdent{Workchain: workchain, Prefix: prefix}, Seqno: uint32(seqno)})
		if endLT > *maxEndLT {
			*maxEndLT = endLT
		}
		return nil
	}
	left, err := s.LoadRef()
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "bintree.left", err)
	}
	right, err := s.LoadRef()
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "bintree.right", err)
	}
	if err := collectBinTree(workchain, left, accum, depth+1, tops, maxEndLT); err != nil {
		return err
	}
	return collectBinTree(workchain, right, accum|(uint64(1)<<uint(63-depth)), depth+1, tops, maxEndLT)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
