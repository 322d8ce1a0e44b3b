package block

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

// v1 decodes the original block# layout: global_id, info, value_flow,
// state_update, extra, each as a single ref.
type v1 struct {
	base
	globalID int32
}

func newV1(tree *cellkit.UsageTree, root *cell.Cell, s *cellkit.TrackedSlice) (*v1, error) {
	globalID, err := s.LoadUInt(32)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v1.load", err)
	}
	info, err := s.LoadRef()
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v1.load.info", err)
	}
	if _, err := s.LoadRef(); err != nil { // value_flow
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v1.load.value_flow", err)
	}
	if _, err := s.LoadRef(); err != nil { // state_update
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v1.load.state_update", err)
	}
	extra, err := s.LoadRef()
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v1.load.extra", err)
	}

	return &v1{
		base: base{tree: tree, root: root, info: info, extraRef: extra},
		globalID: int32(globalID),
	}, nil
}

func (b *v1) LoadInfo() (*Info, error)   { return loadInfoCommon(b.info) }
func (b *v1) LoadExtra() (*Extra, error) { return loadExtraCommon(b.extraRef) }

func (b *v1) loadCustom() (*cellkit.Tracked, bool, error) {
	extra, err := b.LoadExtra()
	if err != nil {
		return nil, false, err
	}
	return extra.Custom, extra.Custom != nil, nil
}

func (b *v1) mcExtra() (keyBlock bool, shardHashesRoot *cellkit.Tracked, configRoot *cellkit.Tracked, hasConfig bool, err error) {
	custom, ok, err := b.loadCustom()
	if err != nil || !ok {
		return false, nil, nil, false, err
	}
	s := custom.Slice()
	tag, err := s.LoadUInt(16)
	if err != nil {
		return false, nil, nil, false, cellkit.E(cellkit.KindCellUnderflow, "mc_extra.tag", err)
	}
	if int(tag) != tagMcBlockExtra {
		return false, nil, nil, false, cellkit.E(cellkit.KindInvalidTag, "mc_extra.tag", nil)
	}
	kb, err := s.LoadUInt(1)
	if err != nil {
		return false, nil, nil, false, cellkit.E(cellkit.KindCellUnderflow, "mc_extra.key_block", err)
	}
	shardHashesRoot, err = s.LoadRef()
	if err != nil {
		return false, nil, nil, false, cellkit.E(cellkit.KindCellUnderflow, "mc_extra.shard_hashes", err)
	}
	// config_addr (256) + config dict ref follow only when key_block.
	if kb != 0 {
		if _, err := s.LoadBits(256); err != nil {
			return false, nil, nil, false, cellkit.E(cellkit.KindCellUnderflow, "mc_extra.config_addr", err)
		}
		cfg, err := s.LoadRef()
		if err != nil {
			return false, nil, nil, false, cellkit.E(cellkit.KindCellUnderflow, "mc_extra.config", err)
		}
		return kb != 0, shardHashesRoot, cfg, true, nil
	}
	return kb != 0, shardHashesRoot, nil, false, nil
}

func (b *v1) LoadAccountBlocks() (*AccountBlocks, error) {
	extra, err := b.LoadExtra()
	if err != nil {
		return nil, err
	}
	return loadAccountBlocksCommon(extra.AccountBlocks), nil
}

func (b *v1) VisitAllShardHashes() error {
	_, shRoot, _, _, err := b.mcExtra()
	if err != nil {
		return err
	}
	if shRoot == nil {
		return nil
	}
	return (&shardHashes{root: shRoot}).visitAll()
}

func (b *v1) FindShardSeqno(workchain int32, prefix uint64) (ShardDescr, int, error) {
	_, shRoot, _, _, err := b.mcExtra()
	if err != nil {
		return ShardDescr{}, 0, err
	}
	if shRoot == nil {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindCellUnderflow, "find_shard_seqno", nil)
	}
	return (&shardHashes{root: shRoot}).find(workchain, prefix)
}

func (b *v1) Config() (*cellkit.Tracked, bool, error) {
	_, _, cfg, ok, err := b.mcExtra()
	return cfg, ok, err
}
