// Package netclient defines the capability set a key-block uploader
// or block subscriber needs from a TON-family network: fetch key
// blocks and account state, submit external messages, and poll for
// the transaction a submitted message produced. Two implementations
// are provided — a lite-client binary client and a JSON-RPC gateway
// client — mirroring the pair of backends the sync service in
// original_source supports.
package netclient

import (
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
)

// KeyBlockData is everything get_key_block needs to hand back to the
// uploader: the block's identity, its root cell (already virtualized
// out of the proof it arrived wrapped in), the validator sets either
// side of it, and the signatures the previous set produced over it.
type KeyBlockData struct {
	BlockID            cellproof.BlockID
	Seqno               uint32
	Root                *cell.Cell
	PrevKeyBlockSeqno   uint32
	CurrentVset         cellproof.ValidatorSet
	PrevVset            *cellproof.ValidatorSet
	Signatures          []cellproof.SignatureEntry
}

// Timings is the gen_utime/gen_lt pair a gateway reports alongside
// account state, used by FindTransaction to detect message expiry.
type Timings struct {
	GenUtime uint32
	GenLT    uint64
}

// LastTransactionID identifies the newest transaction an account
// state response saw at the time it was taken.
type LastTransactionID struct {
	LT   uint64
	Hash [32]byte
}

// AccountStateStatus distinguishes the three account_state_response
// shapes get_account_state can return.
type AccountStateStatus int

const (
	AccountNotExists AccountStateStatus = iota
	AccountUnchanged
	AccountExists
)

// AccountStateResponse mirrors the Rust AccountStateResponse enum:
// Exists carries the account's last transaction id, Unchanged and
// NotExists do not (the caller already knows there's nothing new).
type AccountStateResponse struct {
	Status            AccountStateStatus
	Timings           Timings
	LastTransactionID LastTransactionID
	Balance           uint64
	Frozen            bool
}

// TxRecord is one parsed transaction as returned by get_transactions:
// just the fields find_transaction needs to walk the prev_trans_lt
// chain and recognize the in-message it is looking for.
type TxRecord struct {
	LT           uint64
	Hash         [32]byte
	PrevTransLT  uint64
	PrevTransHash [32]byte
	InMsgHash    *[32]byte
	Raw          *cell.Cell
}

// Account is a resolved std address: workchain plus account id.
type Account struct {
	Workchain int32
	ID        [32]byte
}

func (a Account) TonAddress() *address.Address {
	return address.NewAddress(0, byte(a.Workchain), a.ID[:])
}
