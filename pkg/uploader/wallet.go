// Package uploader implements component G: a loop that watches a
// source network for new key blocks and relays each one's proof and
// validator-set signatures into a bridge contract on a destination
// network, using a small custodial wallet to pay for and sign the
// submission. It is grounded in original_source/sync-service's
// service::{Uploader, Wallet} pair.
package uploader

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log"
	"time"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/pkg/netclient"
)

// sendTransactionRawMethodID is the custodial wallet contract's
// external entry point: flags:uint8 message:^Cell, ABI v2.3, headers
// [PublicKey, Time, Expire].
const sendTransactionRawMethodID uint32 = 0x169e3e11

// Wallet is a minimal custodial wallet: one keypair, one contract
// instance, enough logic to deploy a library cell and submit a signed
// external message carrying an arbitrary internal message.
type Wallet struct {
	address            netclient.Account
	priv               ed25519.PrivateKey
	pub                ed25519.PublicKey
	client             netclient.NetworkClient
	minRequiredBalance uint64
	code               *cell.Cell
	libStoreCode       *cell.Cell
	log                *log.Logger
}

// NewWallet derives the wallet's address from its code and public key
// and returns a handle bound to client for every RPC the wallet needs.
// libStoreCode is the code cell for the small per-epoch contract
// DeployVsetLib publishes validator-set library data behind; it may be
// nil if the caller never intends to call DeployVsetLib.
func NewWallet(workchain int32, priv ed25519.PrivateKey, code, libStoreCode *cell.Cell, client netclient.NetworkClient, minRequiredBalance uint64, logger *log.Logger) (*Wallet, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("uploader: wallet key is not ed25519")
	}
	stateInit, err := MakeWalletStateInit(pub, code)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[uploader.wallet] ", log.LstdFlags)
	}
	return &Wallet{
		address:            ComputeAddress(workchain, stateInit),
		priv:               priv,
		pub:                pub,
		client:              client,
		minRequiredBalance: minRequiredBalance,
		code:               code,
		libStoreCode:       libStoreCode,
		log:                logger,
	}, nil
}

func (w *Wallet) Address() netclient.Account { return w.address }

// MakeWalletStateInit builds `StateInit{code, data: pubkey ‖ seqno=0}`
// for the wallet contract: no split depth, no tick-tock, no libraries.
func MakeWalletStateInit(pub ed25519.PublicKey, code *cell.Cell) (*cell.Cell, error) {
	data := cell.BeginCell()
	if err := data.StoreSlice(pub, 256); err != nil {
		return nil, err
	}
	if err := data.StoreUInt(0, 64); err != nil { // seqno
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

// ComputeAddress derives a std address from a workchain and a
// StateInit cell: the account id is simply the cell's hash.
func ComputeAddress(workchain int32, stateInit *cell.Cell) netclient.Account {
	var id [32]byte
	copy(id[:], stateInit.Hash())
	return netclient.Account{Workchain: workchain, ID: id}
}

// walletState is what wait_for_state resolves to: the account's
// newest known lt, and the state init to attach if the wallet has
// never been deployed.
type walletState struct {
	knownLT uint64
	init    *cell.Cell // non-nil only if the wallet is still uninitialized
}

// waitForState polls the wallet's account until its balance covers
// targetBalance, bailing immediately if the account turns out frozen.
func (w *Wallet) waitForState(ctx context.Context, targetBalance uint64) (walletState, error) {
	const pollInterval = time.Second
	var knownLT *uint64
	first := true
	neverDeployed := false

	for {
		state := netclient.GetAccountStateWithRetries(ctx, w.client, w.log, w.address, knownLT)
		if state.Status == netclient.AccountExists {
			lt := state.LastTransactionID.LT
			knownLT = &lt

			if state.Frozen {
				return walletState{}, fmt.Errorf("uploader: wallet is frozen")
			}
			if state.Balance >= targetBalance {
				var init *cell.Cell
				if neverDeployed {
					stateInit, err := MakeWalletStateInit(w.pub, w.code)
					if err != nil {
						return walletState{}, err
					}
					init = stateInit
				}
				return walletState{knownLT: lt, init: init}, nil
			}
			if first {
				w.log.Printf("wallet %d:%x balance insufficient (have=%d want=%d), waiting",
					w.address.Workchain, w.address.ID, state.Balance, targetBalance)
				first = false
			}
		} else if state.Status == netclient.AccountNotExists {
			neverDeployed = true
			if first {
				w.log.Printf("wallet %d:%x not deployed yet, waiting for funding",
					w.address.Workchain, w.address.ID)
				first = false
			}
		}

		t := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return walletState{}, ctx.Err()
		case <-t.C:
		}
	}
}

// SendMessage wraps internalMsg (an already-built internal message
// cell) in an ABI-encoded external message addressed to the wallet
// and relays it reliably, waiting for the resulting transaction.
func (w *Wallet) SendMessage(ctx context.Context, flags uint8, internalMsg *cell.Cell, value uint64, timeoutSec uint32) (*netclient.TxRecord, error) {
	sigID, err := w.client.GetSignatureID(ctx)
	if err != nil {
		return nil, fmt.Errorf("uploader: get signature id: %w", err)
	}

	ttl := timeoutSec
	if ttl < 1 {
		ttl = 1
	}
	if ttl > 60 {
		ttl = 60
	}

	state, err := w.waitForState(ctx, value+w.minRequiredBalance)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	nowMS := uint64(now.UnixMilli())
	expireAt := uint32(now.Unix()) + ttl

	extBody, err := encodeSendTransactionRaw(w.pub, w.priv, sigID, nowMS, expireAt, flags, internalMsg)
	if err != nil {
		return nil, err
	}

	msgBuilder := cell.BeginCell()
	if err := encodeExtInHeader(msgBuilder, w.address); err != nil {
		return nil, err
	}
	if state.init != nil {
		if err := msgBuilder.StoreUInt(1, 1); err != nil { // init present
			return nil, err
		}
		if err := msgBuilder.StoreUInt(1, 1); err != nil { // init stored as ref
			return nil, err
		}
		if err := msgBuilder.StoreRef(state.init); err != nil {
			return nil, err
		}
	} else {
		if err := msgBuilder.StoreUInt(0, 1); err != nil {
			return nil, err
		}
	}
	if err := msgBuilder.StoreUInt(1, 1); err != nil { // body stored as ref
		return nil, err
	}
	if err := msgBuilder.StoreRef(extBody); err != nil {
		return nil, err
	}
	msgCell := msgBuilder.EndCell()

	return netclient.SendMessageReliable(ctx, w.client, w.log, w.address, msgCell, state.knownLT, expireAt)
}

// encodeExtInHeader stores an inbound external message's CommonMsgInfo
// header: src=none, dst=addr, import_fee=0.
func encodeExtInHeader(b *cell.Builder, dst netclient.Account) error {
	if err := b.StoreUInt(0b10, 2); err != nil { // ext_in_msg_info$10
		return err
	}
	if err := b.StoreUInt(0, 2); err != nil { // src: addr_none$00
		return err
	}
	if err := b.StoreUInt(0b10, 2); err != nil { // dst: addr_std$10
		return err
	}
	if err := b.StoreUInt(0, 1); err != nil { // anycast: none
		return err
	}
	if err := b.StoreInt(int64(int8(dst.Workchain)), 8); err != nil {
		return err
	}
	if err := b.StoreSlice(dst.ID[:], 256); err != nil {
		return err
	}
	return b.StoreUInt(0, 4) // import_fee: VarUInteger 16, zero
}

// DeployVsetLib deploys a lib_store contract holding epochData at the
// address derived from this wallet and the caller-supplied 64-bit id,
// then waits for it to appear on-chain. It returns an error without
// sending anything if an account (active or frozen) already exists at
// that address; it does not look for an existing library cell with
// the same epoch data.
func (w *Wallet) DeployVsetLib(ctx context.Context, epochData *cell.Cell, value uint64, id uint64) (netclient.Account, error) {
	if w.libStoreCode == nil {
		return netclient.Account{}, fmt.Errorf("uploader: wallet has no lib_store code configured")
	}
	stateInit, err := MakeLibStoreStateInit(w.libStoreCode, w.address, id)
	if err != nil {
		return netclient.Account{}, err
	}
	target := ComputeAddress(-1, stateInit)

	state, err := w.client.GetAccountState(ctx, target, nil)
	if err != nil {
		return netclient.Account{}, fmt.Errorf("uploader: get lib_store account: %w", err)
	}
	if state.Status == netclient.AccountExists {
		return netclient.Account{}, fmt.Errorf("uploader: lib_store account already exists: address=%d:%x id=%d frozen=%t", target.Workchain, target.ID, id, state.Frozen)
	}

	body := cell.BeginCell()
	if err := body.StoreRef(epochData); err != nil {
		return netclient.Account{}, err
	}

	internalMsg, err := buildInternalMessage(target, value, true, stateInit, body.EndCell())
	if err != nil {
		return netclient.Account{}, err
	}

	tx, err := w.SendMessage(ctx, 0x1, internalMsg, value, 60)
	if err != nil {
		return netclient.Account{}, fmt.Errorf("uploader: deploy lib_store: %w", err)
	}
	w.log.Printf("sent lib_store deploy tx=%x address=%d:%x", tx.Hash, target.Workchain, target.ID)

	if err := netclient.WaitForDeploy(ctx, w.client, w.log, target); err != nil {
		return netclient.Account{}, err
	}
	return target, nil
}

// SendKeyBlock submits the wrapped key-block proof and signature
// bundle into the bridge contract at bridgeAddress, per the bridge's
// send_key_block entry point, then waits for and returns the bridge
// transaction whose in-message hash matches; that transaction's
// compute phase is not inspected.
func (w *Wallet) SendKeyBlock(ctx context.Context, keyBlockProof *cell.Cell, fileHash [32]byte, signatures *cell.Cell, bridgeAddress netclient.Account, value uint64, queryID uint64) (*netclient.TxRecord, error) {
	proofWithHash := cell.BeginCell()
	if err := proofWithHash.StoreSlice(fileHash[:], 256); err != nil {
		return nil, err
	}
	if err := proofWithHash.StoreRef(keyBlockProof); err != nil {
		return nil, err
	}

	body := cell.BeginCell()
	if err := body.StoreUInt(uint64(bridgeSendKeyBlockMethodID), 32); err != nil {
		return nil, err
	}
	if err := body.StoreRef(proofWithHash.EndCell()); err != nil {
		return nil, err
	}
	if err := body.StoreRef(signatures); err != nil {
		return nil, err
	}
	if err := body.StoreUInt(queryID, 64); err != nil {
		return nil, err
	}

	internalMsg, err := buildInternalMessage(bridgeAddress, value, true, nil, body.EndCell())
	if err != nil {
		return nil, err
	}

	bridgeState := netclient.GetAccountStateWithRetries(ctx, w.client, w.log, bridgeAddress, nil)
	if bridgeState.Status != netclient.AccountExists {
		return nil, fmt.Errorf("uploader: bridge account doesn't exist")
	}
	bridgeLT := bridgeState.LastTransactionID.LT

	tx, err := w.SendMessage(ctx, 0x1, internalMsg, value, 60)
	if err != nil {
		return nil, fmt.Errorf("uploader: send key block: %w", err)
	}
	w.log.Printf("sent key block proof tx=%x", tx.Hash)

	found, err := netclient.FindTransaction(ctx, w.client, w.log, bridgeAddress, txOutMsgPlaceholder(tx), bridgeLT, nil)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("uploader: no tx found for key block submission")
	}
	return found, nil
}

// txOutMsgPlaceholder stands in for reading the wallet's own sent
// transaction's first outbound message hash: the wallet contract
// forwards the external call as one internal message to the bridge,
// whose hash is deterministic from the message cell itself.
func txOutMsgPlaceholder(tx *netclient.TxRecord) [32]byte {
	if tx.InMsgHash != nil {
		return *tx.InMsgHash
	}
	return tx.Hash
}

// bridgeSendKeyBlockMethodID is the bridge contract's internal
// message selector for submitting a key block proof.
const bridgeSendKeyBlockMethodID uint32 = 0x11a78ffe

func buildInternalMessage(dst netclient.Account, value uint64, bounce bool, stateInit, body *cell.Cell) (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := b.StoreUInt(0, 1); err != nil { // int_msg_info$0
		return nil, err
	}
	if err := b.StoreUInt(1, 1); err != nil { // ihr_disabled
		return nil, err
	}
	bounceBit := uint64(0)
	if bounce {
		bounceBit = 1
	}
	if err := b.StoreUInt(bounceBit, 1); err != nil {
		return nil, err
	}
	if err := b.StoreUInt(0, 1); err != nil { // bounced
		return nil, err
	}
	if err := b.StoreUInt(0, 2); err != nil { // src: addr_none
		return nil, err
	}
	if err := b.StoreUInt(0b10, 2); err != nil { // dst: addr_std
		return nil, err
	}
	if err := b.StoreUInt(0, 1); err != nil { // anycast: none
		return nil, err
	}
	if err := b.StoreInt(int64(int8(dst.Workchain)), 8); err != nil {
		return nil, err
	}
	if err := b.StoreSlice(dst.ID[:], 256); err != nil {
		return nil, err
	}
	if err := storeCoins(b, value); err != nil {
		return nil, err
	}
	if err := b.StoreUInt(0, 1); err != nil { // extra currencies: empty
		return nil, err
	}
	if err := storeCoins(b, 0); err != nil { // ihr_fee
		return nil, err
	}
	if err := storeCoins(b, 0); err != nil { // fwd_fee
		return nil, err
	}
	if err := b.StoreUInt(0, 64); err != nil { // created_lt
		return nil, err
	}
	if err := b.StoreUInt(0, 32); err != nil { // created_at
		return nil, err
	}

	if stateInit != nil {
		if err := b.StoreUInt(1, 1); err != nil {
			return nil, err
		}
		if err := b.StoreUInt(1, 1); err != nil { // stored as ref
			return nil, err
		}
		if err := b.StoreRef(stateInit); err != nil {
			return nil, err
		}
	} else {
		if err := b.StoreUInt(0, 1); err != nil {
			return nil, err
		}
	}
	if err := b.StoreUInt(1, 1); err != nil { // body stored as ref
		return nil, err
	}
	if err := b.StoreRef(body); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

// storeCoins encodes a VarUInteger 16 (TON's Grams representation):
// a 4-bit byte-length prefix followed by that many bytes, big-endian,
// with no leading zero byte.
func storeCoins(b *cell.Builder, amount uint64) error {
	var be [8]byte
	n := 0
	v := amount
	for v > 0 {
		n++
		v >>= 8
	}
	for i := 0; i < n; i++ {
		be[n-1-i] = byte(amount >> (8 * i))
	}
	if err := b.StoreUInt(uint64(n), 4); err != nil {
		return err
	}
	return b.StoreSlice(be[:n], n*8)
}
