package uploader

import (
	"context"
	"errors"
	"testing"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
	"github.com/tychoproof/ton-proof-bridge/pkg/netclient"
)

// fakeSrcClient implements just enough of netclient.NetworkClient for
// findNextKeyBlock to walk a chain of key blocks by seqno, the way a
// real lite-client/JSON-RPC backend would hand them back one at a
// time via GetKeyBlock.
type fakeSrcClient struct {
	latest    uint32
	keyBlocks map[uint32]*netclient.KeyBlockData
}

func (f *fakeSrcClient) Name() string { return "fake-src" }
func (f *fakeSrcClient) GetSignatureID(ctx context.Context) (*int32, error) { return nil, nil }
func (f *fakeSrcClient) GetLatestKeyBlockSeqno(ctx context.Context) (uint32, error) {
	return f.latest, nil
}
func (f *fakeSrcClient) GetBlockchainConfig(ctx context.Context) (*cell.Cell, error) { return nil, nil }
func (f *fakeSrcClient) GetKeyBlock(ctx context.Context, seqno uint32) (*netclient.KeyBlockData, error) {
	kb, ok := f.keyBlocks[seqno]
	if !ok {
		return nil, errors.New("no such key block")
	}
	return kb, nil
}
func (f *fakeSrcClient) GetBlockSignatures(ctx context.Context, seqno uint32) ([]cellproof.SignatureEntry, error) {
	return nil, nil
}
func (f *fakeSrcClient) GetAccountState(ctx context.Context, account netclient.Account, lastTransactionLT *uint64) (*netclient.AccountStateResponse, error) {
	return nil, nil
}
func (f *fakeSrcClient) GetTransactions(ctx context.Context, account netclient.Account, lt uint64, hash [32]byte, count uint8) ([]netclient.TxRecord, error) {
	return nil, nil
}
func (f *fakeSrcClient) SendMessage(ctx context.Context, message *cell.Cell) error { return nil }
func (f *fakeSrcClient) MakeKeyBlockProofToSync(data *netclient.KeyBlockData) (*cell.Cell, error) {
	return nil, nil
}
func (f *fakeSrcClient) GetBridgeVsetUtimeSince(ctx context.Context, bridge netclient.Account) (uint32, error) {
	return 0, nil
}

func kbWithEpoch(seqno, prevSeqno, utimeSince uint32) *netclient.KeyBlockData {
	return &netclient.KeyBlockData{
		Seqno:             seqno,
		PrevKeyBlockSeqno: prevSeqno,
		CurrentVset:       cellproof.ValidatorSet{UtimeSince: utimeSince},
	}
}

// TestFindNextKeyBlockReturnsHandoverCandidate covers spec E6: src is
// at epoch E2, dst is stuck at E0, and src's chain walks back through
// E2 (seqno 30) to E1 (seqno 20) to E0 (seqno 10). find_next_key_block
// must return the most recent block whose epoch is strictly newer
// than dst's (seqno 30, epoch E2), not the one matching dst exactly.
func TestFindNextKeyBlockReturnsHandoverCandidate(t *testing.T) {
	u := &Uploader{
		src: &fakeSrcClient{
			latest: 30,
			keyBlocks: map[uint32]*netclient.KeyBlockData{
				30: kbWithEpoch(30, 20, 2000), // E2
				20: kbWithEpoch(20, 10, 1000), // E1
				10: kbWithEpoch(10, 0, 0),     // E0
			},
		},
		keyBlockCache: make(map[uint32]*netclient.KeyBlockData),
	}

	candidate, err := u.findNextKeyBlock(context.Background(), 0)
	if err != nil {
		t.Fatalf("findNextKeyBlock: %v", err)
	}
	if candidate == nil {
		t.Fatal("findNextKeyBlock returned nil, want the epoch-E2 candidate")
	}
	if candidate.Seqno != 30 {
		t.Errorf("candidate seqno = %d, want 30 (most recent key block strictly newer than dst)", candidate.Seqno)
	}
}

func TestFindNextKeyBlockNoOpWhenDstIsCurrent(t *testing.T) {
	u := &Uploader{
		src: &fakeSrcClient{
			latest: 10,
			keyBlocks: map[uint32]*netclient.KeyBlockData{
				10: kbWithEpoch(10, 0, 1000),
			},
		},
		keyBlockCache: make(map[uint32]*netclient.KeyBlockData),
	}

	candidate, err := u.findNextKeyBlock(context.Background(), 1000)
	if err != nil {
		t.Fatalf("findNextKeyBlock: %v", err)
	}
	if candidate != nil {
		t.Errorf("findNextKeyBlock returned a candidate while dst's epoch already matches src's latest")
	}
}

func TestFindNextKeyBlockSrcBehindDst(t *testing.T) {
	u := &Uploader{
		src: &fakeSrcClient{
			latest: 10,
			keyBlocks: map[uint32]*netclient.KeyBlockData{
				10: kbWithEpoch(10, 0, 500),
			},
		},
		keyBlockCache: make(map[uint32]*netclient.KeyBlockData),
	}

	candidate, err := u.findNextKeyBlock(context.Background(), 1000)
	if err != nil {
		t.Fatalf("findNextKeyBlock: %v", err)
	}
	if candidate != nil {
		t.Error("findNextKeyBlock must return nil when src's chain is behind dst's recorded epoch")
	}
}

func TestFindNextKeyBlockCachesVisitedBlocks(t *testing.T) {
	src := &fakeSrcClient{
		latest: 20,
		keyBlocks: map[uint32]*netclient.KeyBlockData{
			20: kbWithEpoch(20, 10, 2000),
			10: kbWithEpoch(10, 0, 0),
		},
	}
	u := &Uploader{src: src, keyBlockCache: make(map[uint32]*netclient.KeyBlockData)}

	if _, err := u.findNextKeyBlock(context.Background(), 0); err != nil {
		t.Fatalf("findNextKeyBlock: %v", err)
	}
	if len(u.keyBlockCache) != 2 {
		t.Errorf("keyBlockCache has %d entries, want 2 (every visited seqno cached)", len(u.keyBlockCache))
	}

	// Removing the block from the fake backend must not matter now
	// that it is cached; a second call should still succeed.
	delete(src.keyBlocks, 20)
	if _, err := u.findNextKeyBlock(context.Background(), 0); err != nil {
		t.Errorf("second findNextKeyBlock call should hit the cache, got error: %v", err)
	}
}

func TestMakeEpochDataCutoffWeight(t *testing.T) {
	vset := cellproof.ValidatorSet{
		UtimeSince:  100,
		UtimeUntil:  200,
		TotalWeight: 9,
		List: []cellproof.ValidatorDescr{
			{Weight: 3}, {Weight: 3}, {Weight: 3},
		},
	}
	c, err := makeEpochData(vset)
	if err != nil {
		t.Fatalf("makeEpochData: %v", err)
	}
	s := c.BeginParse()
	gotSince, err := s.LoadUInt(32)
	if err != nil || gotSince != 100 {
		t.Errorf("utime_since = %d, err=%v, want 100", gotSince, err)
	}
	gotUntil, err := s.LoadUInt(32)
	if err != nil || gotUntil != 200 {
		t.Errorf("utime_until = %d, err=%v, want 200", gotUntil, err)
	}
	gotCount, err := s.LoadUInt(16)
	if err != nil || gotCount != 3 {
		t.Errorf("main_count = %d, err=%v, want 3", gotCount, err)
	}
	gotCutoff, err := s.LoadUInt(64)
	if err != nil {
		t.Fatalf("load cutoff: %v", err)
	}
	// total_main_weight * 2 / 3 + 1 = 9*2/3+1 = 7.
	if gotCutoff != 7 {
		t.Errorf("cutoff_weight = %d, want 7 (9*2/3 + 1)", gotCutoff)
	}
}

func TestWithRetriesSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := withRetries(context.Background(), 3, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("withRetries: %v", err)
	}
	if got != 42 {
		t.Errorf("withRetries result = %d, want 42", got)
	}
	if calls != 3 {
		t.Errorf("withRetries made %d calls, want 3", calls)
	}
}

func TestWithRetriesGivesUpAfterAttemptsExhausted(t *testing.T) {
	wantErr := errors.New("persistent failure")
	calls := 0
	_, err := withRetries(context.Background(), 2, func() (int, error) {
		calls++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("withRetries error = %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Errorf("withRetries made %d calls, want 2 (bounded by attempts)", calls)
	}
}
