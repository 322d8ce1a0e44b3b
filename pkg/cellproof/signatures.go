package cellproof

import (
	"crypto/sha256"
	"sort"

	cmted25519 "github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

// tlSchemeEd25519 is the TL constructor id of `pub.ed25519 key:int256
// = PublicKey`. node_id_short is sha256 of this 4-byte little-endian
// id followed by the raw 32-byte public key — the same short id TON
// liteservers report for a validator.
const tlSchemeEd25519 uint32 = 0x4813b4c6

// nodeIDShort computes the short id TON uses to address a validator
// by its public key.
func nodeIDShort(pubKey [32]byte) [32]byte {
	buf := make([]byte, 4+32)
	buf[0] = byte(tlSchemeEd25519)
	buf[1] = byte(tlSchemeEd25519 >> 8)
	buf[2] = byte(tlSchemeEd25519 >> 16)
	buf[3] = byte(tlSchemeEd25519 >> 24)
	copy(buf[4:], pubKey[:])
	return sha256.Sum256(buf)
}

// dataToSign is the 64-byte message validators sign for a block: the
// concatenation of its root hash and file hash.
func dataToSign(id BlockID) []byte {
	buf := make([]byte, 64)
	copy(buf[:32], id.RootHash[:])
	copy(buf[32:], id.FileHash[:])
	return buf
}

// PrepareSignatures canonicalizes a node-id-short-keyed signature map
// into a cell holding an ordered dict<u16 index into vset.List, bare
// 512-bit signature>, sorted by index ascending. A signature whose
// node-id-short matches no validator, or that duplicates an index
// already assigned, is rejected with InvalidData. The result must be
// non-empty.
func PrepareSignatures(signatures []SignatureEntry, vset ValidatorSet) (*cell.Cell, error) {
	byNodeID := make(map[[32]byte]int, len(vset.List))
	for i, v := range vset.List {
		byNodeID[nodeIDShort(v.PublicKey)] = i
	}

	type indexed struct {
		index int
		sig   [64]byte
	}
	seen := make(map[int]bool, len(signatures))
	ordered := make([]indexed, 0, len(signatures))

	for _, s := range signatures {
		idx, ok := byNodeID[s.NodeIDShort]
		if !ok {
			return nil, cellkit.E(cellkit.KindInvalidData, "prepare_signatures", nil)
		}
		if seen[idx] {
			return nil, cellkit.E(cellkit.KindInvalidData, "prepare_signatures", nil)
		}
		seen[idx] = true
		ordered = append(ordered, indexed{index: idx, sig: s.Signature})
	}
	if len(ordered) == 0 {
		return nil, cellkit.E(cellkit.KindEmptyProof, "prepare_signatures", nil)
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	b := cell.BeginCell()
	if err := b.StoreUInt(uint64(len(ordered)), 16); err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "prepare_signatures", err)
	}
	for _, e := range ordered {
		entry := cell.BeginCell()
		if err := entry.StoreUInt(uint64(e.index), 16); err != nil {
			return nil, cellkit.E(cellkit.KindInvalidData, "prepare_signatures", err)
		}
		if err := entry.StoreSlice(e.sig[:], 512); err != nil {
			return nil, cellkit.E(cellkit.KindInvalidData, "prepare_signatures", err)
		}
		if err := b.StoreRef(entry.EndCell()); err != nil {
			return nil, cellkit.E(cellkit.KindInvalidData, "prepare_signatures", err)
		}
	}
	return b.EndCell(), nil
}

// DecodedSignature is one entry of a PrepareSignatures cell decoded
// back into (validator index, signature) form, used by CheckSignatures
// and by the storage layer when re-reading a stored signatures cell.
type DecodedSignature struct {
	Index int
	Sig   [64]byte
}

// DecodeSignatures reverses PrepareSignatures' cell encoding.
func DecodeSignatures(signatures *cell.Cell) ([]DecodedSignature, error) {
	s := signatures.BeginParse()
	count, err := s.LoadUInt(16)
	if err != nil {
		return nil, cellkit.E(cellkit.KindCellUnderflow, "decode_signatures", err)
	}
	out := make([]DecodedSignature, 0, count)
	for i := uint64(0); i < count; i++ {
		entryRef, err := s.LoadRef()
		if err != nil {
			return nil, cellkit.E(cellkit.KindCellUnderflow, "decode_signatures", err)
		}
		idx, err := entryRef.LoadUInt(16)
		if err != nil {
			return nil, cellkit.E(cellkit.KindCellUnderflow, "decode_signatures", err)
		}
		sigBytes, err := entryRef.LoadSlice(512)
		if err != nil {
			return nil, cellkit.E(cellkit.KindCellUnderflow, "decode_signatures", err)
		}
		var sig [64]byte
		copy(sig[:], sigBytes)
		out = append(out, DecodedSignature{Index: int(idx), Sig: sig})
	}
	return out, nil
}

// CheckSignatures verifies every decoded signature against the
// validator it claims to belong to, accumulates the signing weight,
// and requires every provided signature to correspond to some
// validator in vset (no leftovers) and the accumulated weight to pass
// the classic BFT threshold (strictly more than 2/3 of total weight).
func CheckSignatures(id BlockID, signatures []DecodedSignature, vset ValidatorSet) error {
	msg := dataToSign(id)

	seen := make(map[int]bool, len(signatures))
	var accumulated uint64
	for _, s := range signatures {
		if s.Index < 0 || s.Index >= len(vset.List) {
			return cellkit.E(cellkit.KindInvalidData, "check_signatures", nil)
		}
		if seen[s.Index] {
			return cellkit.E(cellkit.KindInvalidData, "check_signatures", nil)
		}
		seen[s.Index] = true
		v := vset.List[s.Index]
		if !cmted25519.PubKey(v.PublicKey[:]).VerifySignature(msg, s.Sig[:]) {
			return cellkit.E(cellkit.KindInvalidData, "check_signatures", nil)
		}
		accumulated += v.Weight
	}

	if accumulated*3 <= vset.TotalWeight*2 {
		return cellkit.E(cellkit.KindInvalidData, "check_signatures", nil)
	}
	return nil
}
