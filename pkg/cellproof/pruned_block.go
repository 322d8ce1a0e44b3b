package cellproof

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

// TxVisit is one transaction touched while pruning a block, handed to
// the on_tx callback in ascending (account, lt) order.
type TxVisit struct {
	Account [32]byte
	LT      uint64
}

// MakePrunedBlock produces a Merkle-proof whose root hash equals
// blockRoot's but which retains only the block info (masterchain
// blocks only), the structure of the account-blocks dictionary, and
// the presence of every transaction cell. onTx is invoked once per
// transaction, in ascending (account, lt) order; returning an error
// from onTx aborts the walk and that error is returned wrapped in
// KindCancelled.
func MakePrunedBlock(blockRoot *cell.Cell, onTx func(TxVisit) error) (*cell.Cell, error) {
	view, err := block.New(blockRoot)
	if err != nil {
		return nil, err
	}

	extra, err := view.LoadExtra()
	if err != nil {
		return nil, err
	}

	if extra.Custom != nil {
		info, err := view.LoadInfo()
		if err != nil {
			return nil, err
		}
		// Touch prev_ref (and master_ref / prev_vert_ref when present)
		// so their data stays under the root hash for masterchain
		// blocks, mirroring make_pruned_block's info inclusion rule.
		if info.PrevRef != nil {
			info.PrevRef.Slice()
		}
		if info.MasterRef != nil {
			info.MasterRef.Slice()
		}
		if info.PrevVertRef != nil {
			info.PrevVertRef.Slice()
		}
	}

	accountBlocks, err := view.LoadAccountBlocks()
	if err != nil {
		return nil, err
	}

	err = accountBlocks.Walk(view.Tree(), func(e block.Entry) error {
		if onTx == nil {
			return nil
		}
		return onTx(TxVisit{Account: e.Account, LT: e.LT})
	})
	if err != nil {
		return nil, cellkit.E(cellkit.KindCancelled, "make_pruned_block", err)
	}

	proof, err := view.Tree().BuildProof(blockRoot)
	if err != nil {
		return nil, err
	}
	if string(cellkit.Hash(proof)) != string(blockRoot.Hash()) {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_pruned_block", nil)
	}
	return proof, nil
}
