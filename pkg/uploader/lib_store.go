package uploader

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/pkg/netclient"
)

// MakeLibStoreStateInit builds the StateInit of a tiny holder contract
// whose sole job is to keep a validator-set epoch's library cell alive
// on-chain long enough for the bridge contract to read it during
// send_key_block. Its data identifies the epoch (owner wallet address
// plus a caller-chosen id) so re-deploying the same epoch always lands
// on the same address instead of silently duplicating storage.
func MakeLibStoreStateInit(code *cell.Cell, owner netclient.Account, id uint64) (*cell.Cell, error) {
	data := cell.BeginCell()
	if err := data.StoreInt(int64(int8(owner.Workchain)), 8); err != nil {
		return nil, err
	}
	if err := data.StoreSlice(owner.ID[:], 256); err != nil {
		return nil, err
	}
	if err := data.StoreUInt(id, 64); err != nil {
		return nil, err
	}

	b := cell.BeginCell()
	if err := b.StoreUInt(0, 1); err != nil { // split_depth: none
		return nil, err
	}
	if err := b.StoreUInt(0, 1); err != nil { // special: none
		return nil, err
	}
	if err := b.StoreUInt(1, 1); err != nil { // code: present
		return nil, err
	}
	if err := b.StoreRef(code); err != nil {
		return nil, err
	}
	if err := b.StoreUInt(1, 1); err != nil { // data: present
		return nil, err
	}
	if err := b.StoreRef(data.EndCell()); err != nil {
		return nil, err
	}
	if err := b.StoreUInt(0, 1); err != nil { // libraries: empty dict
		return nil, err
	}
	return b.EndCell(), nil
}
