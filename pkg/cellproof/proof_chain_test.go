package cellproof

import (
	"bytes"
	"testing"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// leafCell returns a small non-exotic cell carrying a single byte of
// data, distinguishable from every other leaf used in a test by tag.
func leafCell(t *testing.T, tag byte) *cell.Cell {
	t.Helper()
	b := cell.BeginCell()
	if err := b.StoreUInt(uint64(tag), 8); err != nil {
		t.Fatalf("build leaf: %v", err)
	}
	return b.EndCell()
}

func TestMakeProofChainMasterchainHasNoShardProofs(t *testing.T) {
	mcProof := leafCell(t, 1)
	signatures := leafCell(t, 2)

	chain, err := MakeProofChain([32]byte{0xaa}, mcProof, nil, 12345, signatures)
	if err != nil {
		t.Fatalf("MakeProofChain: %v", err)
	}

	body, err := chain.UnwrapProof()
	if err != nil {
		t.Fatalf("UnwrapProof: %v", err)
	}
	if body.RefsNum() != 2 {
		t.Fatalf("masterchain proof body has %d refs, want 2 (mc_proof, signatures)", body.RefsNum())
	}
}

func TestMakeProofChainShardBodyHasThreeRefs(t *testing.T) {
	mcProof := leafCell(t, 1)
	signatures := leafCell(t, 2)
	shardProofs := []*cell.Cell{leafCell(t, 10)}

	chain, err := MakeProofChain([32]byte{0xbb}, mcProof, shardProofs, 999, signatures)
	if err != nil {
		t.Fatalf("MakeProofChain: %v", err)
	}
	body, err := chain.UnwrapProof()
	if err != nil {
		t.Fatalf("UnwrapProof: %v", err)
	}
	if body.RefsNum() != 3 {
		t.Fatalf("shard proof body has %d refs, want 3 (mc_proof, signatures, shard_proof[0])", body.RefsNum())
	}
}

func TestMakeProofChainOuterCellIsExoticMerkleProof(t *testing.T) {
	mcProof := leafCell(t, 1)
	signatures := leafCell(t, 2)

	chain, err := MakeProofChain([32]byte{0xcc}, mcProof, nil, 1, signatures)
	if err != nil {
		t.Fatalf("MakeProofChain: %v", err)
	}

	s := chain.BeginParse()
	tag, err := s.LoadUInt(8)
	if err != nil {
		t.Fatalf("load exotic tag: %v", err)
	}
	if tag != 3 {
		t.Errorf("outer cell exotic tag = %d, want 3 (Merkle proof)", tag)
	}
}

func TestPackShardProofChainOrderingExactMultipleOfThree(t *testing.T) {
	// shard_proofs[0] is handled by the caller; rest has 3 entries,
	// packed into a single group with no remainder child.
	rest := []*cell.Cell{leafCell(t, 1), leafCell(t, 2), leafCell(t, 3)}
	chainCell, err := packShardProofChain(rest)
	if err != nil {
		t.Fatalf("packShardProofChain: %v", err)
	}
	if chainCell.RefsNum() != 3 {
		t.Fatalf("got %d refs, want 3 (no remainder child)", chainCell.RefsNum())
	}
	// Spec: group written as sc[i+2], sc[i+1], sc[i] -> rest[2], rest[1], rest[0].
	want := []byte{3, 2, 1}
	for i, w := range want {
		ref, err := chainCell.PeekRef(i)
		if err != nil {
			t.Fatalf("peek ref %d: %v", i, err)
		}
		got, err := ref.BeginParse().LoadUInt(8)
		if err != nil {
			t.Fatalf("load ref %d tag: %v", i, err)
		}
		if byte(got) != w {
			t.Errorf("ref[%d] tag = %d, want %d", i, got, w)
		}
	}
}

func TestPackShardProofChainWithRemainder(t *testing.T) {
	// n=4, r=1: deepest child holds rest[3] alone, then one group of
	// three (rest[2], rest[1], rest[0]) plus a ref to that child.
	rest := []*cell.Cell{leafCell(t, 1), leafCell(t, 2), leafCell(t, 3), leafCell(t, 4)}
	top, err := packShardProofChain(rest)
	if err != nil {
		t.Fatalf("packShardProofChain: %v", err)
	}
	if top.RefsNum() != 4 {
		t.Fatalf("top cell has %d refs, want 4 (3 packed + 1 child)", top.RefsNum())
	}
	childRef, err := top.PeekRef(3)
	if err != nil {
		t.Fatalf("peek child ref: %v", err)
	}
	if childRef.RefsNum() != 1 {
		t.Fatalf("remainder child has %d refs, want 1", childRef.RefsNum())
	}
	leaf, err := childRef.PeekRef(0)
	if err != nil {
		t.Fatalf("peek remainder leaf: %v", err)
	}
	tag, err := leaf.BeginParse().LoadUInt(8)
	if err != nil {
		t.Fatalf("load remainder leaf tag: %v", err)
	}
	if tag != 4 {
		t.Errorf("remainder leaf tag = %d, want 4", tag)
	}
}

func TestPackShardProofChainEmpty(t *testing.T) {
	c, err := packShardProofChain(nil)
	if err != nil {
		t.Fatalf("packShardProofChain(nil): %v", err)
	}
	if c != nil {
		t.Errorf("packShardProofChain(nil) = %v, want nil", c)
	}
}

func TestMakeProofChainBodyFieldsLayout(t *testing.T) {
	mcProof := leafCell(t, 1)
	signatures := leafCell(t, 2)
	var fh [32]byte
	copy(fh[:], bytes.Repeat([]byte{0x42}, 32))

	chain, err := MakeProofChain(fh, mcProof, nil, 0xdeadbeef, signatures)
	if err != nil {
		t.Fatalf("MakeProofChain: %v", err)
	}
	body, err := chain.UnwrapProof()
	if err != nil {
		t.Fatalf("UnwrapProof: %v", err)
	}
	s := body.BeginParse()
	gotFH, err := s.LoadSlice(256)
	if err != nil {
		t.Fatalf("load file hash: %v", err)
	}
	if !bytes.Equal(gotFH, fh[:]) {
		t.Errorf("file hash mismatch: got %x want %x", gotFH, fh)
	}
	gotVset, err := s.LoadUInt(32)
	if err != nil {
		t.Fatalf("load vset_utime_since: %v", err)
	}
	if gotVset != 0xdeadbeef {
		t.Errorf("vset_utime_since = %x, want deadbeef", gotVset)
	}
}
