package netclient

import (
	"context"
	"fmt"

	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
)

// LiteClient speaks the ADNL lite-server binary protocol through
// tonutils-go, the same library internal/cellkit builds on for cell
// primitives. It is the Go analogue of original_source's TonClient,
// which wraps ton_lite_client::LiteClient.
type LiteClient struct {
	name string
	api  ton.APIClientWrapped
}

// NewLiteClient dials every liteserver in a TON global config file and
// wraps the resulting connection pool with retries, matching
// TonClient::new's use of ton_lite_client::LiteClient with a default
// retry policy.
func NewLiteClient(ctx context.Context, name, globalConfigPath string) (*LiteClient, error) {
	pool := liteclient.NewConnectionPool()
	if err := pool.AddConnectionsFromConfigFile(globalConfigPath); err != nil {
		return nil, fmt.Errorf("netclient: load global config for %s: %w", name, err)
	}
	api := ton.NewAPIClient(pool, ton.ProofCheckPolicyFast).WithRetry(3)
	return &LiteClient{name: name, api: api}, nil
}

func (c *LiteClient) Name() string { return c.name }

func (c *LiteClient) GetSignatureID(ctx context.Context) (*int32, error) {
	cfgCell, err := c.GetBlockchainConfig(ctx)
	if err != nil {
		return nil, err
	}
	has, err := configHasSignatureIDCapability(cfgCell)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	info, err := c.api.GetMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("netclient: get masterchain info: %w", err)
	}
	id := info.Workchain
	return &id, nil
}

func (c *LiteClient) GetLatestKeyBlockSeqno(ctx context.Context) (uint32, error) {
	info, err := c.api.GetMasterchainInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("netclient: get masterchain info: %w", err)
	}
	block, err := c.api.LookupBlock(ctx, info.Workchain, info.Shard, uint32(info.SeqNo))
	if err != nil {
		return 0, fmt.Errorf("netclient: lookup block: %w", err)
	}
	return block.SeqNo, nil
}

func (c *LiteClient) GetBlockchainConfig(ctx context.Context) (*cell.Cell, error) {
	info, err := c.api.GetMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("netclient: get masterchain info: %w", err)
	}
	cfg, err := c.api.GetBlockchainConfig(ctx, info, false)
	if err != nil {
		return nil, fmt.Errorf("netclient: get blockchain config: %w", err)
	}
	return cfg.Config.BeginParse().MustLoadRef().MustToCell(), nil
}

func (c *LiteClient) GetKeyBlock(ctx context.Context, seqno uint32) (*KeyBlockData, error) {
	info, err := c.api.GetMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("netclient: get masterchain info: %w", err)
	}
	blockID, err := c.api.LookupBlock(ctx, info.Workchain, info.Shard, seqno)
	if err != nil {
		return nil, fmt.Errorf("netclient: lookup key block %d: %w", seqno, err)
	}
	proof, err := c.api.GetBlockProof(ctx, blockID, nil)
	if err != nil {
		return nil, fmt.Errorf("netclient: get block proof %d: %w", seqno, err)
	}
	set := proof.SignatureSets[0]
	proofCell, err := cell.FromBOC(set.Proof)
	if err != nil {
		return nil, cellkit.E(cellkit.KindInvalidData, "get_key_block", err)
	}
	sigs := make([]cellproof.SignatureEntry, 0, len(set.Signatures))
	for _, sig := range set.Signatures {
		var entry cellproof.SignatureEntry
		copy(entry.NodeIDShort[:], sig.NodeIDShort)
		copy(entry.Signature[:], sig.Signature)
		sigs = append(sigs, entry)
	}
	return decodeKeyBlockProof(seqno, proofCell, sigs)
}

func (c *LiteClient) GetBlockSignatures(ctx context.Context, seqno uint32) ([]cellproof.SignatureEntry, error) {
	info, err := c.api.GetMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("netclient: get masterchain info: %w", err)
	}
	blockID, err := c.api.LookupBlock(ctx, info.Workchain, info.Shard, seqno)
	if err != nil {
		return nil, fmt.Errorf("netclient: lookup block %d: %w", seqno, err)
	}
	proof, err := c.api.GetBlockProof(ctx, blockID, nil)
	if err != nil {
		return nil, fmt.Errorf("netclient: get block proof %d: %w", seqno, err)
	}
	if len(proof.SignatureSets) == 0 {
		return nil, cellkit.E(cellkit.KindNotFound, "get_block_signatures", fmt.Errorf("seqno=%d", seqno))
	}
	set := proof.SignatureSets[0]
	sigs := make([]cellproof.SignatureEntry, 0, len(set.Signatures))
	for _, sig := range set.Signatures {
		var entry cellproof.SignatureEntry
		copy(entry.NodeIDShort[:], sig.NodeIDShort)
		copy(entry.Signature[:], sig.Signature)
		sigs = append(sigs, entry)
	}
	return sigs, nil
}

func (c *LiteClient) GetAccountState(ctx context.Context, account Account, lastTransactionLT *uint64) (*AccountStateResponse, error) {
	info, err := c.api.GetMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("netclient: get masterchain info: %w", err)
	}
	acc, err := c.api.GetAccount(ctx, info, account.TonAddress())
	if err != nil {
		return nil, fmt.Errorf("netclient: get account: %w", err)
	}

	// BlockIDExt carries no gen_utime of its own; expiry checks against
	// a lite-server backend fall back to wall-clock time in
	// FindTransaction rather than the block timestamp a gateway would
	// report.
	res := &AccountStateResponse{}
	if !acc.IsActive {
		res.Status = AccountNotExists
		return res, nil
	}
	if lastTransactionLT != nil && acc.LastTxLT == *lastTransactionLT {
		res.Status = AccountUnchanged
		return res, nil
	}
	res.Status = AccountExists
	res.LastTransactionID = LastTransactionID{LT: acc.LastTxLT}
	copy(res.LastTransactionID.Hash[:], acc.LastTxHash)
	if acc.State != nil {
		res.Balance = acc.State.Balance.Nano().Uint64()
	}
	res.Frozen = acc.Status == "frozen"
	return res, nil
}

func (c *LiteClient) GetTransactions(ctx context.Context, account Account, lt uint64, hash [32]byte, count uint8) ([]TxRecord, error) {
	txs, err := c.api.ListTransactions(ctx, account.TonAddress(), count, lt, hash[:])
	if err != nil {
		return nil, fmt.Errorf("netclient: list transactions: %w", err)
	}
	out := make([]TxRecord, 0, len(txs))
	for i, tx := range txs {
		rec, err := decodeTransaction(tx.ToCell())
		if err != nil {
			return nil, err
		}
		if i == 0 && rec.Hash != hash {
			return nil, fmt.Errorf("netclient: latest tx hash mismatch")
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *LiteClient) SendMessage(ctx context.Context, message *cell.Cell) error {
	if err := c.api.SendExternalMessage(ctx, message); err != nil {
		return fmt.Errorf("netclient: send external message: %w", err)
	}
	return nil
}

func (c *LiteClient) MakeKeyBlockProofToSync(data *KeyBlockData) (*cell.Cell, error) {
	includePrev := data.PrevVset != nil && data.CurrentVset.UtimeSince != data.PrevVset.UtimeUntil
	return cellproof.MakeKeyBlockProof(data.Root, includePrev)
}

func (c *LiteClient) GetBridgeVsetUtimeSince(ctx context.Context, bridge Account) (uint32, error) {
	info, err := c.api.GetMasterchainInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("netclient: get masterchain info: %w", err)
	}
	res, err := c.api.RunGetMethod(ctx, info, bridge.TonAddress(), "get_state_short")
	if err != nil {
		return 0, fmt.Errorf("netclient: run get_state_short: %w", err)
	}
	val, err := res.Int(0)
	if err != nil {
		return 0, fmt.Errorf("netclient: get_state_short: decode stack: %w", err)
	}
	return uint32(val.Uint64()), nil
}
