package block

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

const (
	// tagBlockV1 is the original block# constructor tag.
	tagBlockV1 uint32 = 0x11ef55bb
	// tagBlockV2 is the newer block# constructor tag, used once a
	// shard has finished migrating (spec §2 component B).
	tagBlockV2 uint32 = 0x11ef55bc

	tagBlockExtra    uint32 = 0x4a33f6fc
	tagMcBlockExtra  int    = 0xcca5
	tagAccountBlock  int    = 5
	tagShardDescr    int    = 0xa
	tagShardDescrNew int    = 0xb

	// config param slots referenced by make_key_block_proof.
	configParamCurrentVset  uint32 = 34
	configParamPreviousVset uint32 = 32
)

// base holds the fields both V1 and V2 decoders share once the
// version-specific prefix has been consumed.
type base struct {
	tree *cellkit.UsageTree
	root *cell.Cell
	info *cellkit.Tracked
	// The value_flow and state_update refs are touched by the decoders
	// (so their hashes remain covered by the proof's root-hash check)
	// but never parsed or kept here.
	extraRef *cellkit.Tracked
}

func (b *base) Root() *cell.Cell           { return b.root }
func (b *base) Tree() *cellkit.UsageTree   { return b.tree }

func loadInfoCommon(tracked *cellkit.Tracked) (*Info, error) {
	s := tracked.Slice()

	version, err := s.LoadUInt(32)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	notMaster, err := s.LoadUInt(1)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	afterMerge, err := s.LoadUInt(1)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	// before_split, after_split, want_split, want_merge, key_block,
	// vert_seqno_incr, flags: skip the bits we don't act on but keep
	// reading sequentially since they are part of the same cell.
	_, _ = s.LoadUInt(1) // before_split
	afterSplit, err := s.LoadUInt(1)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	_, _ = s.LoadUInt(1) // want_split
	_, _ = s.LoadUInt(1) // want_merge
	keyBlock, err := s.LoadUInt(1)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	_, _ = s.LoadUInt(1) // vert_seqno_incr
	_, _ = s.LoadUInt(8) // flags

	seqno, err := s.LoadUInt(32)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	_, _ = s.LoadUInt(32) // vert_seqno
	shardPrefixBits, err := s.LoadUInt(6)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	workchain, err := s.LoadUInt(32)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	shardPrefix, err := s.LoadBigInt(64)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	genUtime, err := s.LoadUInt(32)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info", err)
	}
	_, _ = s.LoadUInt(64) // start_lt
	_, _ = s.LoadUInt(64) // end_lt
	_, _ = s.LoadUInt(32) // gen_validator_list_hash_short
	_, _ = s.LoadUInt(32) // gen_catchain_seqno
	_, _ = s.LoadUInt(32) // min_ref_mc_seqno
	_, _ = s.LoadUInt(32) // prev_key_block_seqno
	_ = shardPrefixBits

	prevRef, err := s.LoadRef()
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info.prev_ref", err)
	}

	var masterRef *cellkit.Tracked
	if notMaster != 0 {
		masterRef, err = s.LoadRef()
		if err != nil {
			return nil, cellkit.E(cellkit.KindCellUnderflow, "load_info.master_ref", err)
		}
	}

	var prevVertRef *cellkit.Tracked
	// prev_vert_ref / prev_vert_alt_ref are only present on vertical
	// seqno increments, signalled by the vert_seqno_incr bit we
	// skipped above; this is a rare edge case, so we treat a trailing
	// ref (if any bits remain) as optional and load it defensively.
	if s.RestBits() >= 1 {
		prevVertRef, _ = s.LoadRef()
	}

	return &Info{
		Version:     uint32(version),
		GenUtime:    uint32(genUtime),
		SeqNo:       uint32(seqno),
		Shard:       ShardIdent{Workchain: int32(int32(workchain)), Prefix: shardPrefix.Uint64()},
		NotMaster:   notMaster != 0,
		KeyBlock:    keyBlock != 0,
		AfterMerge:  afterMerge != 0,
		AfterSplit:  afterSplit != 0,
		PrevRef:     prevRef,
		MasterRef:   masterRef,
		PrevVertRef: prevVertRef,
	}, nil
}

func loadExtraCommon(extraRef *cellkit.Tracked) (*Extra, error) {
	s := extraRef.Slice()

	tag, err := s.LoadUInt(32)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_extra", err)
	}
	if uint32(tag) != tagBlockExtra {
		return nil, cellkit.E(cellkit.KindInvalidTag, "load_extra", nil)
	}

	_, err = s.LoadRef() // in_msg_description
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_extra.in_msg", err)
	}
	_, err = s.LoadRef() // out_msg_description
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_extra.out_msg", err)
	}
	accountBlocks, err := s.LoadRef()
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_extra.account_blocks", err)
	}
	if _, err := s.LoadBits(256); err != nil { // rand_seed
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_extra.rand_seed", err)
	}
	if _, err := s.LoadBits(256); err != nil { // created_by
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_extra.created_by", err)
	}

	hasCustom, err := s.LoadUInt(1)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "load_extra.custom_flag", err)
	}

	var custom *cellkit.Tracked
	if hasCustom != 0 {
		custom, err = s.LoadRef()
		if err != nil {
			return nil, cellkit.E(cellkit.KindCellUnderflow, "load_extra.custom", err)
		}
	}

	return &Extra{AccountBlocks: accountBlocks, Custom: custom}, nil
}

// AccountBlocks thinly wraps the account_blocks AugDict root so
// callers can iterate (account, lt) pairs in ascending key order
// without re-deriving the TLB layout at every call site.
type AccountBlocks struct {
	root *cellkit.Tracked
}

func loadAccountBlocksCommon(root *cellkit.Tracked) *AccountBlocks {
	return &AccountBlocks{root: root}
}

// Entry is one (account, lt, tx cell) triple visited while iterating
// an account_blocks dictionary.
type Entry struct {
	Account [32]byte
	LT       uint64
	Tx       *cellkit.Tracked
}

// Walk visits every transaction in ascending (account, lt) order, the
// iteration order required by make_pruned_block's on_tx contract.
// Each account's own transactions sub-dictionary is tracked through
// the same usage tree as root so touching a transaction cell also
// keeps its account-block spine in the proof.
func (d *AccountBlocks) Walk(tree *cellkit.UsageTree, visit func(Entry) error) error {
	accounts, err := decodeHashmapAug(d.root)
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		accSlice := acc.value.Slice()
		tag, err := accSlice.LoadUInt(4)
		if err != nil {
			return cellkit.E(cellkit.KindCellUnderflow, "account_block", err)
		}
		if int(tag) != tagAccountBlock {
			return cellkit.E(cellkit.KindInvalidTag, "account_block", nil)
		}
		if _, err := accSlice.LoadBits(256); err != nil { // account_addr
			return cellkit.E(cellkit.KindCellUnderflow, "account_block.addr", err)
		}
		txRoot, err := accSlice.LoadRef()
		if err != nil {
			return cellkit.E(cellkit.KindCellUnderflow, "account_block.transactions", err)
		}
		txs, err := decodeHashmapAugU64(txRoot)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			if err := visit(Entry{Account: acc.key, LT: tx.key, Tx: tx.value}); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindAccount returns the transactions sub-dictionary for account, or
// ok=false if the account has no entry in this block. It descends a
// single branch of the account_blocks trie rather than enumerating
// every account, so only that branch's cells are touched — required
// for make_tx_proof's single-branch proof.
func (d *AccountBlocks) FindAccount(account [32]byte) (tree *cellkit.Tracked, ok bool, err error) {
	leaf, found, err := descendToKey(d.root, keyBitsU256(account), 256)
	if err != nil || !found {
		return nil, false, err
	}
	accSlice := leaf.Slice()
	if _, err := accSlice.LoadUInt(4); err != nil {
		return nil, false, cellkit.E(cellkit.KindCellUnderflow, "account_block", err)
	}
	if _, err := accSlice.LoadBits(256); err != nil {
		return nil, false, cellkit.E(cellkit.KindCellUnderflow, "account_block.addr", err)
	}
	txRoot, err := accSlice.LoadRef()
	if err != nil {
		return nil, false, cellkit.E(cellkit.KindCellUnderflow, "account_block.transactions", err)
	}
	return txRoot, true, nil
}

// FindTxByLT reports whether the transactions sub-dictionary returned
// by FindAccount contains an entry for lt, touching only the branch
// down to that leaf.
func FindTxByLT(txRoot *cellkit.Tracked, lt uint64) (bool, error) {
	_, found, err := descendToKey(txRoot, keyBitsU64(lt), 64)
	return found, err
}
