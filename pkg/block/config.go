package block

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

// FindConfigParam descends the single branch of a block's
// `config:^(Hashmap 32 ^Cell)` dictionary down to param's leaf and
// touches the referenced parameter cell, so only that one parameter's
// subtree survives pruning. ok is false if param has no entry.
func FindConfigParam(cfg *cellkit.Tracked, param uint32) (bool, error) {
	leaf, found, err := descendToKey(cfg, keyBitsU32(param), 32)
	if err != nil || !found {
		return false, err
	}
	if _, err := leaf.Slice().LoadRef(); err != nil {
		return false, cellkit.E(cellkit.KindCellUnderflow, "config_param", err)
	}
	return true, nil
}

// ConfigParamCell descends to param's leaf the same way
// FindConfigParam does, but returns the referenced parameter cell
// itself rather than just touching it — for callers (the block
// subscriber installing a new validator set, the uploader decoding a
// key block) that need to actually decode the parameter's contents
// rather than merely preserve it in a Merkle proof.
func ConfigParamCell(cfg *cellkit.Tracked, param uint32) (*cell.Cell, bool, error) {
	leaf, found, err := descendToKey(cfg, keyBitsU32(param), 32)
	if err != nil || !found {
		return nil, false, err
	}
	ref, err := leaf.Slice().LoadRef()
	if err != nil {
		return nil, false, cellkit.E(cellkit.KindCellUnderflow, "config_param", err)
	}
	return ref.Cell(), true, nil
}

func keyBitsU32(key uint32) []bool {
	bits := make([]bool, 32)
	for i := 0; i < 32; i++ {
		bits[i] = key&(1<<uint(31-i)) != 0
	}
	return bits
}
