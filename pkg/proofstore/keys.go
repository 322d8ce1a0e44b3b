package proofstore

import (
	"encoding/binary"

	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

// blockKey is the 13-byte key shared by pruned_blocks and
// pivot_blocks: workchain(1) ‖ shard_prefix(8 BE) ‖ seqno(4 BE). Only
// i8 workchains are ever ingested (store_block drops anything else),
// so workchain always fits in one signed byte.
func blockKey(shard block.ShardIdent, seqno uint32) []byte {
	key := make([]byte, 13)
	key[0] = byte(int8(shard.Workchain))
	binary.BigEndian.PutUint64(key[1:9], shard.Prefix)
	binary.BigEndian.PutUint32(key[9:13], seqno)
	return key
}

// shardPrefixKey is the 9-byte prefix of blockKey, used as a
// range-delete bound during GC.
func shardPrefixKey(shard block.ShardIdent) []byte {
	key := make([]byte, 9)
	key[0] = byte(int8(shard.Workchain))
	binary.BigEndian.PutUint64(key[1:9], shard.Prefix)
	return key
}

// blockValue is the value stored alongside blockKey in pruned_blocks
// and pivot_blocks: the file hash (not derivable from the root cell
// alone) followed by the BOC-encoded cell.
type blockValue struct {
	FileHash [32]byte
	BOC      []byte
}

func encodeBlockValue(v blockValue) []byte {
	out := make([]byte, 32+len(v.BOC))
	copy(out[:32], v.FileHash[:])
	copy(out[32:], v.BOC)
	return out
}

func decodeBlockValue(b []byte) (blockValue, bool) {
	if len(b) < 32 {
		return blockValue{}, false
	}
	var v blockValue
	copy(v.FileHash[:], b[:32])
	v.BOC = b[32:]
	return v, true
}

// txKey is the 41-byte transactions key: lt(8 BE) ‖ workchain(1) ‖
// account(32).
func txKey(lt uint64, workchain int32, account [32]byte) []byte {
	key := make([]byte, 41)
	binary.BigEndian.PutUint64(key[0:8], lt)
	key[8] = byte(int8(workchain))
	copy(key[9:41], account[:])
	return key
}

// txUpperBound returns the 41-byte key that is the exclusive upper
// bound of every transactions key with lt ≤ lt — i.e. the smallest
// key with lt' = lt+1, used by GC's range-delete.
func txUpperBound(lt uint64) []byte {
	key := make([]byte, 41)
	binary.BigEndian.PutUint64(key[0:8], lt+1)
	return key
}

// txValue is the 17-byte value stored at a transactions key:
// workchain(1) ‖ shard_prefix(8 BE) ‖ seqno(4 BE) ‖
// ref_by_mc_seqno(4 LE).
type txValue struct {
	Workchain    int32
	ShardPrefix  uint64
	TxBlockSeqno uint32
	RefByMcSeqno uint32
}

func encodeTxValue(v txValue) []byte {
	buf := make([]byte, 17)
	buf[0] = byte(int8(v.Workchain))
	binary.BigEndian.PutUint64(buf[1:9], v.ShardPrefix)
	binary.BigEndian.PutUint32(buf[9:13], v.TxBlockSeqno)
	binary.LittleEndian.PutUint32(buf[13:17], v.RefByMcSeqno)
	return buf
}

func decodeTxValue(b []byte) (txValue, bool) {
	if len(b) != 17 {
		return txValue{}, false
	}
	return txValue{
		Workchain:    int32(int8(b[0])),
		ShardPrefix:  binary.BigEndian.Uint64(b[1:9]),
		TxBlockSeqno: binary.BigEndian.Uint32(b[9:13]),
		RefByMcSeqno: binary.LittleEndian.Uint32(b[13:17]),
	}, true
}

func signaturesKey(mcSeqno uint32) []byte { return putUint32BE(mcSeqno) }

// signaturesValue is vset_utime_since(4 LE) ‖ BOC(signatures_dict).
func encodeSignaturesValue(vsetUtimeSince uint32, boc []byte) []byte {
	out := make([]byte, 4+len(boc))
	binary.LittleEndian.PutUint32(out[:4], vsetUtimeSince)
	copy(out[4:], boc)
	return out
}

func decodeSignaturesValue(b []byte) (utimeSince uint32, boc []byte, ok bool) {
	if len(b) < 4 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(b[:4]), b[4:], true
}

func timingsKey(genUtime uint32) []byte { return putUint32BE(genUtime) }

func encodeTimingsValue(mcSeqno uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, mcSeqno)
	return b
}

func decodeTimingsValue(b []byte) (uint32, bool) {
	if len(b) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}
