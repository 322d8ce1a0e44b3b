package cellproof

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

// MakeProofChain assembles the final artifact a client receives. The
// outer cell body holds 256 bits of mcFileHash and 32 bits of
// vsetUtimeSince, then references in order: mcProof, signatures and,
// when shardProofs is non-empty, shardProofs[0] followed by a
// recursive triplet-packed chain of the remaining shard proofs
// (packed three at a time, deepest first). The whole thing is wrapped
// in an exotic Merkle-proof cell.
func MakeProofChain(mcFileHash [32]byte, mcProof *cell.Cell, shardProofs []*cell.Cell, vsetUtimeSince uint32, signatures *cell.Cell) (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := b.StoreSlice(mcFileHash[:], 256); err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
	}
	if err := b.StoreUInt(uint64(vsetUtimeSince), 32); err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
	}
	if err := b.StoreRef(mcProof); err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
	}
	if err := b.StoreRef(signatures); err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
	}

	if len(shardProofs) > 0 {
		tail, err := packShardProofChain(shardProofs[1:])
		if err != nil {
			return nil, err
		}

		if err := b.StoreRef(shardProofs[0]); err != nil {
			return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
		}
		if tail != nil {
			if err := b.StoreRef(tail); err != nil {
				return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
			}
		}
	}

	body := b.EndCell()

	out := cell.BeginCell()
	if err := out.StoreUInt(3, 8); err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
	}
	if err := out.StoreSlice(body.Hash(), 256); err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
	}
	if err := out.StoreUInt(uint64(body.Depth()), 16); err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
	}
	if err := out.StoreRef(body); err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
	}
	exotic, err := out.EndCell().MakeExotic()
	if err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "make_proof_chain", err)
	}
	return exotic, nil
}

// packShardProofChain packs rest — shardProofs[1:] in caller order,
// i.e. rest[i] corresponds to shard_proofs[i+1] — into the recursive
// triplet-packed cell chain described by make_proof_chain: the
// deepest child holds the remainder (len(rest) mod 3) proofs in
// reverse order, then groups of three pack from the tail inward,
// each group's cell holding its three proofs (reversed) plus a ref to
// the previously built (deeper) child.
func packShardProofChain(rest []*cell.Cell) (*cell.Cell, error) {
	n := len(rest)
	if n == 0 {
		return nil, nil
	}

	r := n % 3
	var child *cell.Cell
	i := 0
	if r != 0 {
		b := cell.BeginCell()
		for k := 0; k < r; k++ {
			idx := n - 1 - k
			if err := b.StoreRef(rest[idx]); err != nil {
				return nil, cellkit.E(cellkit.KindInvalidData, "pack_shard_proof_chain", err)
			}
		}
		child = b.EndCell()
		i = r
	}

	for i < n {
		group := rest[n-i-3 : n-i]
		b := cell.BeginCell()
		for k := 2; k >= 0; k-- {
			if err := b.StoreRef(group[k]); err != nil {
				return nil, cellkit.E(cellkit.KindInvalidData, "pack_shard_proof_chain", err)
			}
		}
		if child != nil {
			if err := b.StoreRef(child); err != nil {
				return nil, cellkit.E(cellkit.KindInvalidData, "pack_shard_proof_chain", err)
			}
		}
		child = b.EndCell()
		i += 3
	}

	return child, nil
}
