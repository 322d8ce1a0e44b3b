package block

import "testing"

func TestLeftRightChildCoverFullRange(t *testing.T) {
	parent := ShardIdent{Workchain: 0, Prefix: 1 << 63}
	left := LeftChild(parent)
	right := RightChild(parent)

	if left == right {
		t.Fatal("LeftChild and RightChild returned the same shard")
	}
	if left.Workchain != parent.Workchain || right.Workchain != parent.Workchain {
		t.Error("split children must keep the parent's workchain")
	}

	// The delimiter bit moves one position lower; left clears the
	// vacated bit, right sets it.
	vacated := parent.Prefix
	if left.Prefix&vacated != 0 {
		t.Errorf("left child vacated bit set unexpectedly: %#x", left.Prefix)
	}
	if right.Prefix&vacated == 0 {
		t.Errorf("right child vacated bit not set: %#x", right.Prefix)
	}
}

func TestIsRightChildOf(t *testing.T) {
	parent := ShardIdent{Workchain: 0, Prefix: 1 << 63}
	right := RightChild(parent)
	left := LeftChild(parent)

	if !IsRightChildOf(parent, right) {
		t.Error("IsRightChildOf(parent, RightChild(parent)) should be true")
	}
	if IsRightChildOf(parent, left) {
		t.Error("IsRightChildOf(parent, LeftChild(parent)) should be false")
	}
	if IsRightChildOf(parent, parent) {
		t.Error("a shard cannot be a right child of itself")
	}
}

func TestIsRightChildOfDifferentWorkchain(t *testing.T) {
	parent := ShardIdent{Workchain: 0, Prefix: 1 << 63}
	other := RightChild(parent)
	other.Workchain = 1
	if IsRightChildOf(parent, other) {
		t.Error("IsRightChildOf must not match across different workchains")
	}
}

func TestTwoLevelSplitYieldsDistinctShards(t *testing.T) {
	parent := ShardIdent{Workchain: 0, Prefix: 1 << 63}
	grandchildLeft := LeftChild(LeftChild(parent))
	grandchildRight := RightChild(LeftChild(parent))

	if grandchildLeft == grandchildRight {
		t.Fatal("two-level split must still yield distinct shards")
	}
}

func TestMasterchainPrefixIsMasterchain(t *testing.T) {
	mc := ShardIdent{Workchain: -1, Prefix: MasterchainPrefix}
	if !mc.IsMasterchain() {
		t.Error("the well-known masterchain shard identity must report IsMasterchain() == true")
	}
	notMC := ShardIdent{Workchain: 0, Prefix: MasterchainPrefix}
	if notMC.IsMasterchain() {
		t.Error("workchain 0 must never be reported as masterchain regardless of prefix")
	}
}
