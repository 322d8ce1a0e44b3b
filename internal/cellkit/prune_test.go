package cellkit

import (
	"bytes"
	"testing"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// buildTwoChildTree returns a root cell with two distinct child
// cells, useful for exercising UsageTree without any block-specific
// decoding.
func buildTwoChildTree(t *testing.T) (root, childA, childB *cell.Cell) {
	t.Helper()
	a := cell.BeginCell()
	if err := a.StoreUInt(0xA, 8); err != nil {
		t.Fatalf("build child A: %v", err)
	}
	childA = a.EndCell()

	b := cell.BeginCell()
	if err := b.StoreUInt(0xB, 8); err != nil {
		t.Fatalf("build child B: %v", err)
	}
	childB = b.EndCell()

	r := cell.BeginCell()
	if err := r.StoreUInt(1, 8); err != nil {
		t.Fatalf("build root: %v", err)
	}
	if err := r.StoreRef(childA); err != nil {
		t.Fatalf("link child A: %v", err)
	}
	if err := r.StoreRef(childB); err != nil {
		t.Fatalf("link child B: %v", err)
	}
	root = r.EndCell()
	return
}

// TestBuildProofPreservesRootHash covers testable property #1:
// hash(make_pruned_block(B, noop)) == hash(B), generalized to any
// usage-tree-driven pruning, not just the block-specific transform.
func TestBuildProofPreservesRootHash(t *testing.T) {
	root, childA, _ := buildTwoChildTree(t)

	tree := NewUsageTree()
	tracked := tree.Track(root)
	s := tracked.Slice()
	if _, err := s.LoadUInt(8); err != nil {
		t.Fatalf("load root tag: %v", err)
	}
	// Only touch child A; child B is never dereferenced and should
	// end up pruned in the proof.
	if _, err := s.LoadRef(); err != nil {
		t.Fatalf("load ref to child A: %v", err)
	}

	proof, err := tree.BuildProof(root)
	if err != nil {
		t.Fatalf("BuildProof: %v", err)
	}
	if !bytes.Equal(proof.Hash(), root.Hash()) {
		t.Errorf("pruned proof hash %x != original root hash %x", proof.Hash(), root.Hash())
	}

	// The proof is a Merkle-proof exotic cell; virtualizing it must
	// still report the original root's hash, and the touched child's
	// subtree must survive intact while the untouched one is pruned.
	virtual, err := Virtualize(proof)
	if err != nil {
		t.Fatalf("Virtualize: %v", err)
	}
	if !bytes.Equal(virtual.Hash(), root.Hash()) {
		t.Errorf("virtualized proof hash %x != original root hash %x", virtual.Hash(), root.Hash())
	}
	if virtual.RefsNum() != 2 {
		t.Fatalf("virtualized root has %d refs, want 2", virtual.RefsNum())
	}

	keptChild, err := virtual.PeekRef(0)
	if err != nil {
		t.Fatalf("peek kept child: %v", err)
	}
	if !bytes.Equal(keptChild.Hash(), childA.Hash()) {
		t.Errorf("touched child's hash changed under pruning: got %x want %x", keptChild.Hash(), childA.Hash())
	}
}

func TestBuildProofWithNothingTouchedStillMatchesRootHash(t *testing.T) {
	root, _, _ := buildTwoChildTree(t)
	tree := NewUsageTree()
	tree.Track(root) // root itself is always marked; nothing else touched.

	proof, err := tree.BuildProof(root)
	if err != nil {
		t.Fatalf("BuildProof: %v", err)
	}
	if !bytes.Equal(proof.Hash(), root.Hash()) {
		t.Errorf("fully-pruned proof hash %x != original root hash %x", proof.Hash(), root.Hash())
	}
}

func TestWrapMerkleProofRoundTrip(t *testing.T) {
	body := cell.BeginCell()
	if err := body.StoreUInt(0x77, 8); err != nil {
		t.Fatalf("build body: %v", err)
	}
	bodyCell := body.EndCell()

	wrapped, err := WrapMerkleProof(bodyCell)
	if err != nil {
		t.Fatalf("WrapMerkleProof: %v", err)
	}
	virtual, err := Virtualize(wrapped)
	if err != nil {
		t.Fatalf("Virtualize: %v", err)
	}
	if !bytes.Equal(virtual.Hash(), bodyCell.Hash()) {
		t.Errorf("virtualized wrapped cell hash %x != body hash %x", virtual.Hash(), bodyCell.Hash())
	}
}
