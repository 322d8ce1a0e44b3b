package uploader

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// encodeSendTransactionRaw builds and signs the wallet contract's
// sendTransactionRaw external call body: ABI v2.3 with header fields
// [PublicKey, Time, Expire], function id sendTransactionRawMethodID,
// and a single input (flags:uint8, message:^Cell).
//
// Layout (matching the wallet contract's own ABI, not a generic
// encoder — there is no ABI v2.3 library in this module's dependency
// set, so the wire format is built directly with tvm/cell the same
// way the rest of this codebase hand-builds TLB records):
//
//	signature:bits512 pubkey:bits256 time:uint64 expire:uint32
//	function_id:uint32 flags:uint8 message:^Cell
func encodeSendTransactionRaw(pub ed25519.PublicKey, priv ed25519.PrivateKey, signatureID *int32, timeMS uint64, expireAt uint32, flags uint8, message *cell.Cell) (*cell.Cell, error) {
	payload := cell.BeginCell()
	if err := writeSendTransactionRawPayload(payload, pub, timeMS, expireAt, flags, message); err != nil {
		return nil, err
	}
	payloadCell := payload.EndCell()

	sig := ed25519.Sign(priv, signingHash(signatureID, payloadCell.Hash()))

	b := cell.BeginCell()
	if err := b.StoreSlice(sig, 512); err != nil {
		return nil, err
	}
	if err := writeSendTransactionRawPayload(b, pub, timeMS, expireAt, flags, message); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func writeSendTransactionRawPayload(b *cell.Builder, pub ed25519.PublicKey, timeMS uint64, expireAt uint32, flags uint8, message *cell.Cell) error {
	if err := b.StoreSlice(pub, 256); err != nil {
		return err
	}
	if err := b.StoreUInt(timeMS, 64); err != nil {
		return err
	}
	if err := b.StoreUInt(uint64(expireAt), 32); err != nil {
		return err
	}
	if err := b.StoreUInt(uint64(sendTransactionRawMethodID), 32); err != nil {
		return err
	}
	if err := b.StoreUInt(uint64(flags), 8); err != nil {
		return err
	}
	return b.StoreRef(message)
}

// signingHash is the message body hash a wallet signs: prefixed with
// the network's signature id when CapSignatureWithId is active, so a
// signature produced on one chain can't be replayed on a fork that
// shares the same validator keys.
func signingHash(signatureID *int32, bodyHash []byte) []byte {
	if signatureID == nil {
		return bodyHash
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(*signatureID))
	return append(prefix[:], bodyHash...)
}
