// Package block provides thin, format-specific decoders over the two
// block layouts (V1, V2) this service understands. Every decoder
// exposes the same View so the rest of the system (pkg/cellproof,
// pkg/subscriber) never branches on format version itself — see
// spec §2 component B / §4.1.
package block

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

// ShardIdent identifies a shard by workchain and binary-trie prefix,
// as defined in spec §3.
type ShardIdent struct {
	Workchain int32
	Prefix    uint64
}

// IsMasterchain reports whether this identity is the masterchain.
func (s ShardIdent) IsMasterchain() bool { return s.Workchain == -1 && s.Prefix == MasterchainPrefix }

// MasterchainPrefix is the well-known masterchain shard prefix (the
// single top-level trie node, high bit set and nothing else).
const MasterchainPrefix uint64 = 1 << 63

// ID is the (workchain, shard, seqno, root_hash, file_hash) tuple that
// globally identifies one block, per spec §3. FileHash is the hash of
// the block's serialized BOC and cannot be derived from RootCell
// alone, so callers must carry it separately (e.g. from the lite
// client response envelope).
type ID struct {
	Shard    ShardIdent
	Seqno    uint32
	RootHash [32]byte
	FileHash [32]byte
}

// Info is the subset of a block's info fields the proof-chain builder
// needs: the previous-block link(s) and the generation time used for
// GC bucketing.
type Info struct {
	Version      uint32
	GenUtime     uint32
	SeqNo        uint32
	Shard        ShardIdent
	NotMaster    bool
	KeyBlock     bool
	AfterMerge   bool
	AfterSplit   bool
	PrevRef      *cellkit.Tracked
	MasterRef    *cellkit.Tracked // nil on shardchains or when not referenced
	PrevVertRef  *cellkit.Tracked // nil unless a vertical split/merge occurred
}

// ShardTop is one leaf of the masterchain's shard_hashes trie, as
// needed by GC's parse_latest_shard_blocks rather than by proof
// building: just the shard identity and the seqno it last referenced.
type ShardTop struct {
	Shard ShardIdent
	Seqno uint32
}

// ShardDescr is one leaf descriptor from the masterchain's
// shard_hashes binary trie: the top shard block this masterchain
// block references for one leaf shard, and the raw descriptor cell
// (needed so pruning can touch exactly this descriptor, per §4.1
// make_mc_proof).
type ShardDescr struct {
	Shard   ShardIdent
	Seqno   uint32
	RootRaw *cell.Cell
}

// Extra is the subset of a block's extra fields needed to reach the
// account-blocks dictionary and, for masterchain blocks, the custom
// part (shard_hashes / config).
type Extra struct {
	AccountBlocks *cellkit.Tracked
	Custom        *cellkit.Tracked // nil on shardchain blocks
}

// View is the trait every block format decoder implements. Each
// method touches only the cells it needs to, through the owning
// UsageTree, so the caller can chain straight into make_pruned_block
// et al. without any format-specific code outside this package.
type View interface {
	Root() *cell.Cell
	Tree() *cellkit.UsageTree

	LoadInfo() (*Info, error)
	LoadExtra() (*Extra, error)
	LoadAccountBlocks() (*AccountBlocks, error)

	// VisitAllShardHashes touches every shard descriptor in the
	// masterchain's shard_hashes dictionary, preserving the whole
	// binary trie of shard tops — required by make_pivot_block_proof.
	VisitAllShardHashes() error

	// FindShardSeqno walks the shard_hashes trie down to the leaf
	// covering prefix and returns its descriptor, touching only the
	// path from the workchain root to that leaf — required by
	// make_mc_proof. tag is the descriptor's 4-bit leading tag
	// (0xa=shard_descr, 0xb=shard_descr with additional fields);
	// anything else is InvalidTag.
	FindShardSeqno(workchain int32, prefix uint64) (descr ShardDescr, tag int, err error)

	// Config returns the blockchain config dict cell (masterchain
	// key blocks only); ok is false on shardchain blocks or
	// non-key masterchain blocks.
	Config() (cfg *cellkit.Tracked, ok bool, err error)

	// ListShardTops fully decodes shard_hashes (no usage-tree pruning
	// — this is GC bookkeeping, not proof material) and returns every
	// shard's latest seqno plus the largest end_lt among them.
	ListShardTops() (endLT uint64, tops []ShardTop, err error)
}

// New decodes root as either V1 or V2 depending on its leading block
// info tag, the way a real TON-family node picks a TLB constructor
// based on the tag it reads. Both formats are network-observed in
// practice because of the slow rollout of the newer block layout
// across shards.
func New(root *cell.Cell) (View, error) {
	tree := cellkit.NewUsageTree()
	tracked := tree.Track(root)
	slice := tracked.Slice()

	tag, err := slice.LoadUInt(32)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "block.New", err)
	}

	switch uint32(tag) {
	case tagBlockV1:
		return newV1(tree, root, slice)
	case tagBlockV2:
		return newV2(tree, root, slice)
	default:
		return nil, cellkit.E(cellkit.KindInvalidTag, "block.New", nil)
	}
}
