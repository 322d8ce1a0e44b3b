package block

import (
	"bytes"
	"testing"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

func TestBitsToBytesRoundTripsWithKeyBitsU64(t *testing.T) {
	for _, key := range []uint64{0, 1, 0xdeadbeef, 0xffffffffffffffff} {
		bits := keyBitsU64(key)
		if len(bits) != 64 {
			t.Fatalf("keyBitsU64(%d) produced %d bits, want 64", key, len(bits))
		}
		got := beBytesToUint64(bitsToBytes(bits), 64)
		if got != key {
			t.Errorf("round-trip through bitsToBytes/beBytesToUint64: got %d, want %d", got, key)
		}
	}
}

func TestKeyBitsU256MatchesByteOrder(t *testing.T) {
	var key [32]byte
	key[0] = 0x80 // high bit of the first byte set
	bits := keyBitsU256(key)
	if !bits[0] {
		t.Error("keyBitsU256's first bit should be the MSB of the first byte")
	}
	for i := 1; i < 8; i++ {
		if bits[i] {
			t.Errorf("bit %d should be 0 (rest of first byte is zero)", i)
		}
	}
	roundTripped := bitsToBytes(bits)
	if !bytes.Equal(roundTripped, key[:]) {
		t.Errorf("bitsToBytes(keyBitsU256(key)) = %x, want %x", roundTripped, key)
	}
}

func TestBitLenForMatchesCeilLog2(t *testing.T) {
	cases := []struct {
		remaining int
		want      int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{255, 8},
		{256, 9},
	}
	for _, c := range cases {
		if got := bitLenFor(c.remaining); got != c.want {
			t.Errorf("bitLenFor(%d) = %d, want %d", c.remaining, got, c.want)
		}
	}
}

// singleLeafDict builds the simplest possible edge-labeled binary
// trie: one hml_short label that covers the whole key width, with the
// leaf cell holding a single marker byte. This is the degenerate case
// of the Hashmap grammar walkEdge/descendToKey both need to handle
// (a dictionary with exactly one entry, no forks at all).
func singleLeafDict(t *testing.T, key []bool, marker byte) *cell.Cell {
	t.Helper()
	b := cell.BeginCell()
	if err := b.StoreUInt(0, 1); err != nil { // hml_short$0
		t.Fatalf("store hml_short tag: %v", err)
	}
	for i := 0; i < len(key); i++ { // unary(n): n ones then a zero
		if err := b.StoreUInt(1, 1); err != nil {
			t.Fatalf("store unary bit: %v", err)
		}
	}
	if err := b.StoreUInt(0, 1); err != nil {
		t.Fatalf("store unary terminator: %v", err)
	}
	for _, bit := range key {
		v := uint64(0)
		if bit {
			v = 1
		}
		if err := b.StoreUInt(v, 1); err != nil {
			t.Fatalf("store label bit: %v", err)
		}
	}
	if err := b.StoreUInt(uint64(marker), 8); err != nil {
		t.Fatalf("store leaf marker: %v", err)
	}
	return b.EndCell()
}

func TestWalkEdgeSingleLeaf(t *testing.T) {
	key := keyBitsU64(0x1234)
	root := singleLeafDict(t, key, 0x99)

	tree := cellkit.NewUsageTree()
	tracked := tree.Track(root)

	var gotKey uint64
	var found int
	err := walkEdge(tracked, nil, 64, func(k []byte, leaf *cellkit.Tracked) error {
		found++
		gotKey = beBytesToUint64(k, 64)
		return nil
	})
	if err != nil {
		t.Fatalf("walkEdge: %v", err)
	}
	if found != 1 {
		t.Fatalf("walkEdge visited %d leaves, want 1", found)
	}
	if gotKey != 0x1234 {
		t.Errorf("walkEdge decoded key = %#x, want %#x", gotKey, 0x1234)
	}
}

func TestDescendToKeySingleLeafFound(t *testing.T) {
	key := keyBitsU64(0xabcd)
	root := singleLeafDict(t, key, 0x42)

	tree := cellkit.NewUsageTree()
	tracked := tree.Track(root)

	leaf, ok, err := descendToKey(tracked, key, 64)
	if err != nil {
		t.Fatalf("descendToKey: %v", err)
	}
	if !ok {
		t.Fatal("descendToKey did not find the only key in the dictionary")
	}
	s := leaf.Slice()
	marker, err := s.LoadUInt(8)
	if err != nil {
		t.Fatalf("load leaf marker: %v", err)
	}
	if marker != 0x42 {
		t.Errorf("leaf marker = %#x, want 0x42", marker)
	}
}

func TestDescendToKeyMissingKeyNotFound(t *testing.T) {
	key := keyBitsU64(0xabcd)
	root := singleLeafDict(t, key, 0x42)

	tree := cellkit.NewUsageTree()
	tracked := tree.Track(root)

	otherKey := keyBitsU64(0xffff)
	_, ok, err := descendToKey(tracked, otherKey, 64)
	if err != nil {
		t.Fatalf("descendToKey: %v", err)
	}
	if ok {
		t.Error("descendToKey reported found for a key not present in the dictionary")
	}
}
