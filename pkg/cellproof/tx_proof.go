package cellproof

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

// MakeTxProof operates on a pruned block (produced by MakePrunedBlock
// and then virtualized). It builds a proof preserving the single
// branch from the block root down to the transaction cell for
// (account, lt). A nil, nil return means the account or lt is absent
// — not an error. If includeInfo is set, info.PrevRef is additionally
// preserved.
func MakeTxProof(prunedBlockRoot *cell.Cell, account [32]byte, lt uint64, includeInfo bool) (*cell.Cell, error) {
	view, err := block.New(prunedBlockRoot)
	if err != nil {
		return nil, err
	}

	if includeInfo {
		info, err := view.LoadInfo()
		if err != nil {
			return nil, err
		}
		if info.PrevRef != nil {
			info.PrevRef.Slice()
		}
	}

	accountBlocks, err := view.LoadAccountBlocks()
	if err != nil {
		return nil, err
	}

	txRoot, ok, err := accountBlocks.FindAccount(account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	found, err := block.FindTxByLT(txRoot, lt)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	proof, err := view.Tree().BuildProof(prunedBlockRoot)
	if err != nil {
		return nil, err
	}
	if string(cellkit.Hash(proof)) != string(prunedBlockRoot.Hash()) {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_tx_proof", nil)
	}
	return proof, nil
}
