package block

import (
	"math/big"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

// kv32 and kv64 are decoded (key, value) pairs from a 256-bit-keyed or
// 64-bit-keyed TON dictionary (Hashmap/HashmapAug), respectively.
// in-order trie descent visits keys in ascending order by
// construction, so callers never need to re-sort.
type kv32 struct {
	key   [32]byte
	value *cellkit.Tracked
}

type kv64 struct {
	key   uint64
	value *cellkit.Tracked
}

// decodeHashmapAug walks a 256-bit-keyed edge-labeled binary trie
// (account_blocks is a HashmapAugE<256, ...>; the augmentation value
// is account-block currency, which the proof-chain builder never
// reads, so it is skipped rather than decoded).
func decodeHashmapAug(root *cellkit.Tracked) ([]kv32, error) {
	var out []kv32
	err := walkEdge(root, nil, 256, func(key []byte, leaf *cellkit.Tracked) error {
		var k [32]byte
		copy(k[:], key)
		out = append(out, kv32{key: k, value: leaf})
		return nil
	})
	return out, err
}

// decodeHashmapAugU64 walks a 64-bit-keyed trie (a single account's
// transactions: HashmapAugE<64, ...>, keyed by lt).
func decodeHashmapAugU64(root *cellkit.Tracked) ([]kv64, error) {
	var out []kv64
	err := walkEdge(root, nil, 64, func(key []byte, leaf *cellkit.Tracked) error {
		out = append(out, kv64{key: beBytesToUint64(key, 64), value: leaf})
		return nil
	})
	return out, err
}

func beBytesToUint64(bits []byte, bitLen int) uint64 {
	v := new(big.Int).SetBytes(bits)
	return v.Uint64()
}

// walkEdge recursively descends a hm_edge node, accumulating the key
// prefix in prefix and calling onLeaf once remaining reaches zero.
// This mirrors the `hm_edge#_ {n:#} {X:Type} label:(HmLabel ~n m)
// {n = (~m) + l} node:(HashmapNode m X) = Hashmap n X` grammar: a
// label (possibly empty) followed by either a leaf or a fork.
func walkEdge(n *cellkit.Tracked, prefix []bool, remaining int, onLeaf func(key []byte, leaf *cellkit.Tracked) error) error {
	s := n.Slice()

	label, consumed, err := loadHmLabel(s, remaining)
	if err != nil {
		return err
	}
	prefix = append(prefix, label...)
	remaining -= consumed

	if remaining == 0 {
		return onLeaf(bitsToBytes(prefix), n)
	}

	left, err := s.LoadRef()
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "hashmap.fork", err)
	}
	right, err := s.LoadRef()
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "hashmap.fork", err)
	}

	leftPrefix := append(append([]bool{}, prefix...), false)
	if err := walkEdge(left, leftPrefix, remaining-1, onLeaf); err != nil {
		return err
	}
	rightPrefix := append(append([]bool{}, prefix...), true)
	return walkEdge(right, rightPrefix, remaining-1, onLeaf)
}

// loadHmLabel decodes one of the three HmLabel encodings
// (hml_short$0, hml_long$10, hml_same$11) against at most `remaining`
// bits, returning the decoded bits and how many key bits they cover.
func loadHmLabel(s *cellkit.TrackedSlice, remaining int) ([]bool, int, error) {
	bit0, err := s.LoadUInt(1)
	if err != nil {
		return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hm_label", err)
	}
	if bit0 == 0 {
		// hml_short$0 {m:#} {n:#} len:(Unary ~n) s:(n * Bit) = HmLabel ~n m;
		n, err := loadUnary(s)
		if err != nil {
			return nil, 0, err
		}
		bits := make([]bool, n)
		for i := 0; i < n; i++ {
			b, err := s.LoadUInt(1)
			if err != nil {
				return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_short.bits", err)
			}
			bits[i] = b != 0
		}
		return bits, n, nil
	}

	bit1, err := s.LoadUInt(1)
	if err != nil {
		return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hm_label", err)
	}
	sizeBits := bitLenFor(remaining)
	if bit1 == 0 {
		// hml_long$10 {m:#} n:(#<= m) s:(n * Bit) = HmLabel ~n m;
		n64, err := s.LoadUInt(sizeBits)
		if err != nil {
			return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_long.n", err)
		}
		n := int(n64)
		bits := make([]bool, n)
		for i := 0; i < n; i++ {
			b, err := s.LoadUInt(1)
			if err != nil {
				return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_long.bits", err)
			}
			bits[i] = b != 0
		}
		return bits, n, nil
	}

	// hml_same$11 {m:#} v:Bit n:(#<= m) = HmLabel ~n m;
	v, err := s.LoadUInt(1)
	if err != nil {
		return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_same.v", err)
	}
	n64, err := s.LoadUInt(sizeBits)
	if err != nil {
		return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_same.n", err)
	}
	n := int(n64)
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = v != 0
	}
	return bits, n, nil
}

func loadUnary(s *cellkit.TrackedSlice) (int, error) {
	n := 0
	for {
		b, err := s.LoadUInt(1)
		if err != nil {
			return 0, cellkit.E(cellkit.KindCellUnderflow, "unary", err)
		}
		if b == 0 {
			return n, nil
		}
		n++
	}
}

// bitLenFor returns ceil(log2(remaining+1)), the number of bits used
// to encode a length up to `remaining` in hml_long/hml_same.
func bitLenFor(remaining int) int {
	n := 0
	for (1 << n) <= remaining {
		n++
	}
	return n
}

// descendToKey walks a single branch of an edge-labeled binary trie
// down to the leaf for key (key's high bit first, totalBits long),
// touching only the cells on that one path — unlike walkEdge, which
// enumerates every leaf. This is what make_tx_proof and FindAccount
// need: a proof that preserves one branch, not the whole dictionary.
func descendToKey(n *cellkit.Tracked, key []bool, totalBits int) (*cellkit.Tracked, bool, error) {
	s := n.Slice()

	label, consumed, err := loadHmLabel(s, totalBits)
	if err != nil {
		return nil, false, err
	}
	if len(key) < consumed {
		return nil, false, cellkit.E(cellkit.KindInvalidData, "descend_to_key", nil)
	}
	for i := 0; i < consumed; i++ {
		if label[i] != key[i] {
			return nil, false, nil
		}
	}
	remaining := totalBits - consumed
	rest := key[consumed:]

	if remaining == 0 {
		return n, true, nil
	}

	next := rest[0]
	// A fork is a fixed (left=0, right=1) pair of refs; load only the
	// ref on the key's side by index, so its sibling is never
	// dereferenced and stays pruned.
	idx := 0
	if next {
		idx = 1
	}
	child, err := s.PeekRef(idx)
	if err != nil {
		return nil, false, cellkit.E(cellkit.KindCellUnderflow, "descend_to_key", err)
	}
	return descendToKey(child, rest[1:], remaining-1)
}

func keyBitsU256(key [32]byte) []bool {
	bits := make([]bool, 256)
	for i := 0; i < 256; i++ {
		byteIdx := i / 8
		bitIdx := 7 - uint(i%8)
		bits[i] = key[byteIdx]&(1<<bitIdx) != 0
	}
	return bits
}

func keyBitsU64(key uint64) []bool {
	bits := make([]bool, 64)
	for i := 0; i < 64; i++ {
		bits[i] = key&(1<<uint(63-i)) != 0
	}
	return bits
}

func bitsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}
