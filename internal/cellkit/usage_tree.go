package cellkit

import (
	"encoding/hex"
	"math/big"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// UsageTree is a side channel attached to a root cell that records
// every cell touched while the root is being parsed. BuildProof() then
// turns the root into a Merkle-proof cell in which every untouched
// subtree is replaced by a pruned-branch stub carrying that subtree's
// original hash and depth — see spec §9's "usage-tree-driven pruning"
// design note.
//
// tonutils-go's cell package exposes pruning through an explicit
// ProofSkeleton rather than an ambient tracker, so UsageTree plays the
// role of recording accesses and compiling them into a skeleton right
// when BuildProof is called.
type UsageTree struct {
	visited map[string]struct{}
	root    *cell.Cell
}

// NewUsageTree creates an empty usage tree.
func NewUsageTree() *UsageTree {
	return &UsageTree{visited: make(map[string]struct{})}
}

// Track marks root as the tree's root and returns a Tracked handle
// through which parsing code should read the cell. Only cells reached
// through a Tracked handle's Slice()/Ref() calls are recorded.
func (t *UsageTree) Track(root *cell.Cell) *Tracked {
	t.root = root
	t.mark(root)
	return &Tracked{tree: t, c: root}
}

func (t *UsageTree) mark(c *cell.Cell) {
	t.visited[cellKey(c)] = struct{}{}
}

func (t *UsageTree) touched(c *cell.Cell) bool {
	_, ok := t.visited[cellKey(c)]
	return ok
}

func cellKey(c *cell.Cell) string {
	return hex.EncodeToString(c.Hash())
}

// Tracked wraps a *cell.Cell so that every ref dereferenced through it
// is recorded in the owning UsageTree before being handed back to the
// caller, also wrapped.
type Tracked struct {
	tree *UsageTree
	c    *cell.Cell
}

// Cell returns the untracked cell, e.g. to pass to on_tx callbacks
// that must not perturb the usage tree (spec §4.1: "Handle tx without
// affecting the usage tree").
func (tc *Tracked) Cell() *cell.Cell { return tc.c }

// Slice begins parsing the tracked cell's data bits. Refs loaded
// through the returned TrackedSlice are recorded automatically.
func (tc *Tracked) Slice() *TrackedSlice {
	return &TrackedSlice{tree: tc.tree, s: tc.c.BeginParse()}
}

// TrackedSlice mirrors cell.Slice but records every ref it loads.
type TrackedSlice struct {
	tree *UsageTree
	s    *cell.Slice
}

func (ts *TrackedSlice) Raw() *cell.Slice { return ts.s }

func (ts *TrackedSlice) LoadUInt(sz int) (uint64, error) {
	return ts.s.LoadUInt(uint(sz))
}

func (ts *TrackedSlice) LoadBigInt(sz int) (*big.Int, error) {
	return ts.s.LoadBigInt(uint(sz))
}

func (ts *TrackedSlice) LoadBits(sz int) ([]byte, error) {
	return ts.s.LoadSlice(uint(sz))
}

// LoadRef loads the next reference and marks the resulting cell as
// touched, returning a Tracked handle so further parsing through it
// keeps contributing to the same usage tree.
func (ts *TrackedSlice) LoadRef() (*Tracked, error) {
	refSlice, err := ts.s.LoadRef()
	if err != nil {
		return nil, err
	}
	refCell, err := refSlice.ToCell()
	if err != nil {
		return nil, err
	}
	ts.tree.mark(refCell)
	return &Tracked{tree: ts.tree, c: refCell}, nil
}

// PeekRef returns the ref cell at index i without advancing the
// slice's cursor, marking it touched. Used by transforms that need to
// inspect a ref's data but keep reading other fields afterwards (e.g.
// shard_hashes lookups that recurse into the binary trie).
func (ts *TrackedSlice) PeekRef(i int) (*Tracked, error) {
	refCell, err := ts.s.RefAt(i)
	if err != nil {
		return nil, err
	}
	ts.tree.mark(refCell)
	return &Tracked{tree: ts.tree, c: refCell}, nil
}

func (ts *TrackedSlice) RestBits() int { return int(ts.s.BitsLeft()) }

// RestRefs reports how many child refs remain unread on this slice,
// used by v2's trailing gen_software ref, which is optional depending
// on how far a given network has rolled the field out.
func (ts *TrackedSlice) RestRefs() int { return ts.s.RefsNum() }
