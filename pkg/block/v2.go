package block

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

// v2 decodes the newer block# layout: the same global_id, info,
// value_flow, state_update, extra refs as v1, plus a trailing
// gen_software ref (version/capabilities) introduced alongside the
// tag bump. The proof-chain builder never reads gen_software, so it
// is touched (kept under the root hash) but never parsed.
type v2 struct {
	base
	globalID    int32
	genSoftware *cellkit.Tracked
}

func newV2(tree *cellkit.UsageTree, root *cell.Cell, s *cellkit.TrackedSlice) (*v2, error) {
	globalID, err := s.LoadUInt(32)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v2.load", err)
	}
	info, err := s.LoadRef()
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v2.load.info", err)
	}
	if _, err := s.LoadRef(); err != nil { // value_flow
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v2.load.value_flow", err)
	}
	if _, err := s.LoadRef(); err != nil { // state_update
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v2.load.state_update", err)
	}
	extra, err := s.LoadRef()
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "v2.load.extra", err)
	}

	var genSoftware *cellkit.Tracked
	if s.RestBits() >= 1 || s.RestRefs() >= 1 {
		genSoftware, _ = s.LoadRef()
	}

	return &v2{
		base:        base{tree: tree, root: root, info: info, extraRef: extra},
		globalID:    int32(globalID),
		genSoftware: genSoftware,
	}, nil
}

func (b *v2) LoadInfo() (*Info, error)   { return loadInfoCommon(b.info) }
func (b *v2) LoadExtra() (*Extra, error) { return loadExtraCommon(b.extraRef) }

func (b *v2) loadCustom() (*cellkit.Tracked, bool, error) {
	extra, err := b.LoadExtra()
	if err != nil {
		return nil, false, err
	}
	return extra.Custom, extra.Custom != nil, nil
}

func (b *v2) mcExtra() (keyBlock bool, shardHashesRoot *cellkit.Tracked, configRoot *cellkit.Tracked, hasConfig bool, err error) {
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

func (b *v2) LoadAccountBlocks() (*AccountBlocks, error) {
	extra, err := b.LoadExtra()
	if err != nil {
		return nil, err
	}
	return loadAccountBlocksCommon(extra.AccountBlocks), nil
}

func (b *v2) VisitAllShardHashes() error {
	_, shRoot, _, _, err := b.mcExtra()
	if err != nil {
		return err
	}
	if shRoot == nil {
		return nil
	}
	return (&shardHashes{root: shRoot}).visitAll()
}

func (b *v2) FindShardSeqno(workchain int32, prefix uint64) (ShardDescr, int, error) {
	_, shRoot, _, _, err := b.mcExtra()
	if err != nil {
		return ShardDescr{}, 0, err
	}
	if shRoot == nil {
		return ShardDescr{}, 0, cellkit.E(cellkit.KindCellUnderflow, "find_shard_seqno", nil)
	}
	return (&shardHashes{root: shRoot}).find(workchain, prefix)
}

func (b *v2) Config() (*cellkit.Tracked, bool, error) {
	_, _, cfg, ok, err := b.mcExtra()
	return cfg, ok, err
}
