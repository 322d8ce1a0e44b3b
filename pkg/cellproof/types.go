// Package cellproof implements the pure, deterministic cell transforms
// that turn a full TON-family block into the Merkle-pruned artifacts a
// third-party verifier can check: pruned blocks, pivot blocks,
// masterchain proofs, transaction proofs, key-block proofs, and the
// final proof chain that bundles all of them under a validator-set
// signature.
//
// Every function here is safe to run on a CPU worker pool: none of
// them touch a clock, a socket, or a mutex.
package cellproof

import (
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
)

// ValidatorDescr is one entry of a validator set: a public key and its
// signing weight.
type ValidatorDescr struct {
	PublicKey [32]byte
	Weight    uint64
}

// ValidatorSet is the ordered list of validators active during
// [UtimeSince, UtimeUntil), along with their total weight.
type ValidatorSet struct {
	List        []ValidatorDescr
	UtimeSince  uint32
	UtimeUntil  uint32
	TotalWeight uint64
}

// SignatureEntry is one raw signature as received from a block's
// signature set, keyed by the short hash of the signing validator's
// public key rather than by its index in the set.
type SignatureEntry struct {
	NodeIDShort [32]byte
	Signature   [64]byte
}

// BlockID identifies the block whose signatures check_signatures
// verifies against: the 256-bit root hash and file hash pair that
// validators actually sign.
type BlockID struct {
	RootHash [32]byte
	FileHash [32]byte
}

// ShardIdent re-exports block.ShardIdent so callers never need to
// import both packages for a single type.
type ShardIdent = block.ShardIdent
