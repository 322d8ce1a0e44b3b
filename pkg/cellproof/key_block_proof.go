package cellproof

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

const (
	configParamCurrentVset  uint32 = 34
	configParamPreviousVset uint32 = 32
)

// MakeKeyBlockProof produces a proof retaining block info and the
// current_validator_set config parameter (slot 34), plus
// previous_validator_set (slot 32) when withPrevVset is set. This is
// what the key-block uploader (G) hands across to the destination
// network.
func MakeKeyBlockProof(blockRoot *cell.Cell, withPrevVset bool) (*cell.Cell, error) {
	view, err := block.New(blockRoot)
	if err != nil {
		return nil, err
	}

	if _, err := view.LoadInfo(); err != nil {
		return nil, err
	}

	cfg, ok, err := view.Config()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_key_block_proof", nil)
	}

	if err := touchConfigParam(cfg, configParamCurrentVset); err != nil {
		return nil, err
	}
	if withPrevVset {
		if err := touchConfigParam(cfg, configParamPreviousVset); err != nil {
			return nil, err
		}
	}

	proof, err := view.Tree().BuildProof(blockRoot)
	if err != nil {
		return nil, err
	}
	if string(cellkit.Hash(proof)) != string(blockRoot.Hash()) {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_key_block_proof", nil)
	}
	return proof, nil
}

// touchConfigParam descends the single branch of the config's
// Hashmap<32, ^Cell> down to the leaf for param, keeping only that
// parameter's subtree in the eventual proof.
func touchConfigParam(cfg *cellkit.Tracked, param uint32) error {
	ok, err := block.FindConfigParam(cfg, param)
	if err != nil {
		return err
	}
	if !ok {
		return cellkit.E(cellkit.KindNotFound, "config_param", nil)
	}
	return nil
}
