package cellkit

import (
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// BuildProof compresses root into a Merkle-proof cell that preserves
// every cell recorded as touched on t (and their ancestors on the path
// from root), replacing every other subtree with a pruned-branch cell
// carrying the original hash and depth. The returned cell's own hash
// equals root.Hash() — this is the library invariant make_pruned_block
// et al. check before returning.
func (t *UsageTree) BuildProof(root *cell.Cell) (*cell.Cell, error) {
	skeleton := cell.CreateProofSkeleton()
	t.fillSkeleton(root, skeleton)

	proof, err := root.CreateProof(skeleton)
	if err != nil {
		return nil, E(KindInvalidData, "build_proof", err)
	}
	return proof, nil
}

// fillSkeleton walks root, marking every ref that leads to a touched
// descendant as "keep" on the skeleton. Refs with no touched
// descendant are left unmarked, i.e. pruned.
func (t *UsageTree) fillSkeleton(c *cell.Cell, skeleton *cell.ProofSkeleton) {
	refs := c.RefsNum()
	for i := 0; i < int(refs); i++ {
		child, err := c.PeekRef(i)
		if err != nil {
			continue
		}
		if !t.touched(child) {
			continue
		}
		childSkeleton := skeleton.ProofRef(i)
		t.fillSkeleton(child, childSkeleton)
	}
}

// Virtualize turns a Merkle-proof exotic cell into a regular cell a
// parser can descend into, asserting its reported hash matches the
// proof's embedded hash. This is the "virtualize" step referenced
// throughout spec §3/§4 before build_proof can feed a stored pruned
// block into make_tx_proof.
func Virtualize(proof *cell.Cell) (*cell.Cell, error) {
	v, err := proof.UnwrapProof()
	if err != nil {
		return nil, E(KindInvalidData, "virtualize", err)
	}
	return v, nil
}

// WrapMerkleProof wraps body in an exotic Merkle-proof cell asserting
// body's hash and depth — the final step of make_proof_chain and
// make_key_block_proof's Arc wrapping in the uploader.
func WrapMerkleProof(body *cell.Cell) (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := b.StoreUInt(3, 8); err != nil { // exotic Merkle-proof tag
		return nil, E(KindInvalidData, "wrap_merkle_proof", err)
	}
	if err := b.StoreSlice(body.Hash(), 256); err != nil {
		return nil, E(KindInvalidData, "wrap_merkle_proof", err)
	}
	if err := b.StoreUInt(uint64(body.Depth()), 16); err != nil {
		return nil, E(KindInvalidData, "wrap_merkle_proof", err)
	}
	if err := b.StoreRef(body); err != nil {
		return nil, E(KindInvalidData, "wrap_merkle_proof", err)
	}
	out, err := b.EndCell().MakeExotic()
	if err != nil {
		return nil, E(KindInvalidData, "wrap_merkle_proof", err)
	}
	return out, nil
}

// Hash is a small forwarding helper kept so call sites in pkg/cellproof
// never need to import tvm/cell directly for this one operation.
func Hash(c *cell.Cell) []byte { return c.Hash() }
