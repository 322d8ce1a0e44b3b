package proofstore

import (
	"bytes"
	"testing"

	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

func TestBlockKeyRoundTrip(t *testing.T) {
	shard := block.ShardIdent{Workchain: -1, Prefix: block.MasterchainPrefix}
	key := blockKey(shard, 12345)
	if len(key) != 13 {
		t.Fatalf("blockKey length = %d, want 13", len(key))
	}
	if int8(key[0]) != -1 {
		t.Errorf("workchain byte = %d, want -1", int8(key[0]))
	}

	prefix := shardPrefixKey(shard)
	if !bytes.Equal(key[:9], prefix) {
		t.Errorf("shardPrefixKey %x is not a prefix of blockKey %x", prefix, key)
	}
}

func TestBlockKeyOrdering(t *testing.T) {
	shard := block.ShardIdent{Workchain: 0, Prefix: 1 << 63}
	a := blockKey(shard, 10)
	b := blockKey(shard, 11)
	if bytes.Compare(a, b) >= 0 {
		t.Errorf("blockKey(seqno=10) should sort before blockKey(seqno=11)")
	}
}

func TestBlockValueRoundTrip(t *testing.T) {
	var fh [32]byte
	for i := range fh {
		fh[i] = byte(i)
	}
	boc := []byte{0xde, 0xad, 0xbe, 0xef}

	enc := encodeBlockValue(blockValue{FileHash: fh, BOC: boc})
	dec, ok := decodeBlockValue(enc)
	if !ok {
		t.Fatal("decodeBlockValue reported failure on well-formed input")
	}
	if dec.FileHash != fh {
		t.Errorf("file hash mismatch: got %x want %x", dec.FileHash, fh)
	}
	if !bytes.Equal(dec.BOC, boc) {
		t.Errorf("boc mismatch: got %x want %x", dec.BOC, boc)
	}

	if _, ok := decodeBlockValue(make([]byte, 10)); ok {
		t.Error("decodeBlockValue accepted a value shorter than the file hash")
	}
}

func TestTxKeyLayoutAndOrdering(t *testing.T) {
	var account [32]byte
	account[0] = 0xaa

	k1 := txKey(100, 0, account)
	k2 := txKey(101, 0, account)
	if len(k1) != 41 {
		t.Fatalf("txKey length = %d, want 41", len(k1))
	}
	if bytes.Compare(k1, k2) >= 0 {
		t.Errorf("txKey(lt=100) should sort before txKey(lt=101)")
	}

	upper := txUpperBound(100)
	if bytes.Compare(k1, upper) >= 0 {
		t.Errorf("txUpperBound(100) must exceed every key with lt=100")
	}
	k3 := txKey(101, -128, account)
	if bytes.Compare(k3, upper) < 0 {
		t.Errorf("txUpperBound(100) must not exceed a key with lt=101")
	}
}

func TestTxValueRoundTrip(t *testing.T) {
	v := txValue{Workchain: -1, ShardPrefix: block.MasterchainPrefix, TxBlockSeqno: 42, RefByMcSeqno: 7}
	enc := encodeTxValue(v)
	if len(enc) != 17 {
		t.Fatalf("encodeTxValue length = %d, want 17", len(enc))
	}
	dec, ok := decodeTxValue(enc)
	if !ok {
		t.Fatal("decodeTxValue reported failure on well-formed input")
	}
	if dec != v {
		t.Errorf("round-trip mismatch: got %+v want %+v", dec, v)
	}

	if _, ok := decodeTxValue(make([]byte, 16)); ok {
		t.Error("decodeTxValue accepted a short value")
	}
}

func TestSignaturesValueRoundTrip(t *testing.T) {
	boc := []byte{1, 2, 3}
	enc := encodeSignaturesValue(999, boc)
	since, gotBOC, ok := decodeSignaturesValue(enc)
	if !ok {
		t.Fatal("decodeSignaturesValue reported failure on well-formed input")
	}
	if since != 999 {
		t.Errorf("vset_utime_since = %d, want 999", since)
	}
	if !bytes.Equal(gotBOC, boc) {
		t.Errorf("boc mismatch: got %x want %x", gotBOC, boc)
	}
}

func TestTimingsValueRoundTrip(t *testing.T) {
	enc := encodeTimingsValue(555)
	dec, ok := decodeTimingsValue(enc)
	if !ok {
		t.Fatal("decodeTimingsValue reported failure")
	}
	if dec != 555 {
		t.Errorf("mc_seqno = %d, want 555", dec)
	}

	if _, ok := decodeTimingsValue([]byte{1, 2, 3}); ok {
		t.Error("decodeTimingsValue accepted a mis-sized value")
	}
}

func TestTimingsKeySortsByGenUtime(t *testing.T) {
	a := timingsKey(100)
	b := timingsKey(200)
	if bytes.Compare(a, b) >= 0 {
		t.Errorf("timingsKey(100) should sort before timingsKey(200)")
	}
	gotUtime, ok := decodeTimingsKey(b)
	if !ok || gotUtime != 200 {
		t.Errorf("decodeTimingsKey(timingsKey(200)) = (%d, %v), want (200, true)", gotUtime, ok)
	}
}
