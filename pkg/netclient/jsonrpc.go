package netclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
)

// JRPCClient talks to a tycho-style JSON-RPC gateway over plain HTTP,
// the same wire shape original_source's util::jrpc_client speaks:
// POST a {"jsonrpc":"2.0","id":1,"method":...,"params":...} envelope,
// expect back either {"result": ...} or {"error": ...}.
type JRPCClient struct {
	name    string
	baseURL string
	http    *http.Client
}

// NewJRPCClient builds a client against baseURL, matching the Rust
// client's default 30-second HTTP timeout.
func NewJRPCClient(name, baseURL string) (*JRPCClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("netclient: invalid rpc url: %w", err)
	}
	return &JRPCClient{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *JRPCClient) Name() string { return c.name }

type jrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jrpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func (c *JRPCClient) post(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(jrpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("netclient: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("netclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("netclient: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env jrpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("netclient: %s: invalid jrpc response: %w", method, err)
	}
	if len(env.Error) > 0 {
		return fmt.Errorf("netclient: %s: rpc error: %s", method, env.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("netclient: %s: decode result: %w", method, err)
	}
	return nil
}

type configResponse struct {
	GlobalID int32  `json:"globalId"`
	Seqno    uint32 `json:"seqno"`
	Config   string `json:"config"`
}

func (c *JRPCClient) getLatestConfig(ctx context.Context) (configResponse, *cell.Cell, error) {
	var res configResponse
	if err := c.post(ctx, "getBlockchainConfig", struct{}{}, &res); err != nil {
		return configResponse{}, nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(res.Config)
	if err != nil {
		return configResponse{}, nil, fmt.Errorf("netclient: decode config boc: %w", err)
	}
	cfgCell, err := cell.FromBOC(raw)
	if err != nil {
		return configResponse{}, nil, fmt.Errorf("netclient: parse config cell: %w", err)
	}
	return res, cfgCell, nil
}

// GetSignatureID reports the network's global id when it requires
// signatures to include it (the CapSignatureWithId bit, capSignatureWithID),
// matching the Rust client's use of get_global_version.
func (c *JRPCClient) GetSignatureID(ctx context.Context) (*int32, error) {
	res, cfgCell, err := c.getLatestConfig(ctx)
	if err != nil {
		return nil, err
	}
	hasCap, err := configHasSignatureIDCapability(cfgCell)
	if err != nil {
		return nil, err
	}
	if !hasCap {
		return nil, nil
	}
	id := res.GlobalID
	return &id, nil
}

func (c *JRPCClient) GetLatestKeyBlockSeqno(ctx context.Context) (uint32, error) {
	res, _, err := c.getLatestConfig(ctx)
	if err != nil {
		return 0, err
	}
	return res.Seqno, nil
}

func (c *JRPCClient) GetBlockchainConfig(ctx context.Context) (*cell.Cell, error) {
	_, cfgCell, err := c.getLatestConfig(ctx)
	return cfgCell, err
}

type signatureWire struct {
	NodeIDShort string `json:"nodeIdShort"` // base64, 32 bytes
	Signature   string `json:"signature"`   // base64, 64 bytes
}

type keyBlockProofResponse struct {
	BlockID    string          `json:"blockId"`
	Proof      string          `json:"proof"`
	Signatures []signatureWire `json:"signatures"`
}

func (c *JRPCClient) GetKeyBlock(ctx context.Context, seqno uint32) (*KeyBlockData, error) {
	var res keyBlockProofResponse
	if err := c.post(ctx, "getKeyBlockProof", map[string]uint32{"seqno": seqno}, &res); err != nil {
		return nil, err
	}
	if res.Proof == "" {
		return nil, fmt.Errorf("netclient: key block not found: seqno=%d", seqno)
	}
	raw, err := base64.StdEncoding.DecodeString(res.Proof)
	if err != nil {
		return nil, fmt.Errorf("netclient: decode key block proof: %w", err)
	}
	proofCell, err := cell.FromBOC(raw)
	if err != nil {
		return nil, fmt.Errorf("netclient: parse key block proof: %w", err)
	}
	sigs := make([]cellproof.SignatureEntry, 0, len(res.Signatures))
	for _, wire := range res.Signatures {
		nodeID, err := base64.StdEncoding.DecodeString(wire.NodeIDShort)
		if err != nil {
			return nil, fmt.Errorf("netclient: decode signature node id: %w", err)
		}
		sig, err := base64.StdEncoding.DecodeString(wire.Signature)
		if err != nil {
			return nil, fmt.Errorf("netclient: decode signature: %w", err)
		}
		var entry cellproof.SignatureEntry
		copy(entry.NodeIDShort[:], nodeID)
		copy(entry.Signature[:], sig)
		sigs = append(sigs, entry)
	}
	return decodeKeyBlockProof(seqno, proofCell, sigs)
}

type accountStateResponseWire struct {
	Type              string `json:"type"`
	GenUtime          uint32 `json:"genUtime"`
	GenLT             string `json:"genLt"`
	LastTransactionLT string `json:"lastTransactionId,omitempty"`
	LastTransactionHash string `json:"lastTransactionHash,omitempty"`
	Balance           string `json:"balance,omitempty"`
	Frozen            bool   `json:"frozen,omitempty"`
}

func (c *JRPCClient) GetBlockSignatures(ctx context.Context, seqno uint32) ([]cellproof.SignatureEntry, error) {
	var res keyBlockProofResponse
	if err := c.post(ctx, "getBlockSignatures", map[string]uint32{"seqno": seqno}, &res); err != nil {
		return nil, err
	}
	sigs := make([]cellproof.SignatureEntry, 0, len(res.Signatures))
	for _, wire := range res.Signatures {
		nodeID, err := base64.StdEncoding.DecodeString(wire.NodeIDShort)
		if err != nil {
			return nil, fmt.Errorf("netclient: decode signature node id: %w", err)
		}
		sig, err := base64.StdEncoding.DecodeString(wire.Signature)
		if err != nil {
			return nil, fmt.Errorf("netclient: decode signature: %w", err)
		}
		var entry cellproof.SignatureEntry
		copy(entry.NodeIDShort[:], nodeID)
		copy(entry.Signature[:], sig)
		sigs = append(sigs, entry)
	}
	return sigs, nil
}

func (c *JRPCClient) GetAccountState(ctx context.Context, account Account, lastTransactionLT *uint64) (*AccountStateResponse, error) {
	params := map[string]any{"address": encodeStdAddr(account)}
	if lastTransactionLT != nil {
		params["lastTransactionLt"] = strconv.FormatUint(*lastTransactionLT, 10)
	}
	var wire accountStateResponseWire
	if err := c.post(ctx, "getContractState", params, &wire); err != nil {
		return nil, err
	}

	out := &AccountStateResponse{
		Timings: Timings{GenUtime: wire.GenUtime},
		Frozen:  wire.Frozen,
	}
	if wire.GenLT != "" {
		lt, err := strconv.ParseUint(wire.GenLT, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("netclient: invalid genLt: %w", err)
		}
		out.Timings.GenLT = lt
	}
	switch wire.Type {
	case "notExists":
		out.Status = AccountNotExists
	case "unchanged":
		out.Status = AccountUnchanged
	case "exists":
		out.Status = AccountExists
		lt, err := strconv.ParseUint(wire.LastTransactionLT, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("netclient: invalid lastTransactionId: %w", err)
		}
		hashBytes, err := base64.StdEncoding.DecodeString(wire.LastTransactionHash)
		if err != nil || len(hashBytes) != 32 {
			return nil, fmt.Errorf("netclient: invalid lastTransactionHash")
		}
		out.LastTransactionID.LT = lt
		copy(out.LastTransactionID.Hash[:], hashBytes)
		if wire.Balance != "" {
			bal, err := strconv.ParseUint(wire.Balance, 10, 64)
			if err == nil {
				out.Balance = bal
			}
		}
	default:
		return nil, fmt.Errorf("netclient: unknown account state type %q", wire.Type)
	}
	return out, nil
}

func (c *JRPCClient) GetTransactions(ctx context.Context, account Account, lt uint64, hash [32]byte, count uint8) ([]TxRecord, error) {
	params := map[string]any{
		"account":           encodeStdAddr(account),
		"lastTransactionLt": strconv.FormatUint(lt, 10),
		"limit":             count,
	}
	var raws []string
	if err := c.post(ctx, "getTransactionsList", params, &raws); err != nil {
		return nil, err
	}
	out := make([]TxRecord, 0, len(raws))
	for i, b64 := range raws {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("netclient: decode transaction: %w", err)
		}
		txCell, err := cell.FromBOC(raw)
		if err != nil {
			return nil, fmt.Errorf("netclient: parse transaction: %w", err)
		}
		rec, err := decodeTransaction(txCell)
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

func (c *JRPCClient) SendMessage(ctx context.Context, message *cell.Cell) error {
	boc := message.ToBOC()
	if boc == nil {
		return cellkit.E(cellkit.KindInvalidData, "send_message", nil)
	}
	params := map[string]string{"message": base64.StdEncoding.EncodeToString(boc)}
	return c.post(ctx, "sendMessage", params, nil)
}

// MakeKeyBlockProofToSync re-wraps the already-virtualized key block
// root in a Merkle-proof, including the previous validator set's
// dictionary cell only when the current set is genuinely a rotation
// (current.UtimeSince != prev.UtimeUntil), matching the Rust client's
// make_key_block_proof argument.
func (c *JRPCClient) MakeKeyBlockProofToSync(data *KeyBlockData) (*cell.Cell, error) {
	includePrev := data.PrevVset != nil && data.CurrentVset.UtimeSince != data.PrevVset.UtimeUntil
	return cellproof.MakeKeyBlockProof(data.Root, includePrev)
}

type runGetMethodResponse struct {
	Success bool     `json:"success"`
	Stack   []string `json:"stack"`
}

// GetBridgeVsetUtimeSince asks the gateway to execute get_state_short
// against its own current chain state and config, mirroring
// ExecutionContextBuilder::run_getter in original_source — the gateway
// plays the role the local VM executor plays there, since a JSON-RPC
// backend does not hand out raw account state cells to build one
// client-side.
func (c *JRPCClient) GetBridgeVsetUtimeSince(ctx context.Context, bridge Account) (uint32, error) {
	params := map[string]any{
		"address": encodeStdAddr(bridge),
		"method":  "get_state_short",
		"stack":   []any{},
	}
	var res runGetMethodResponse
	if err := c.post(ctx, "runGetMethod", params, &res); err != nil {
		return 0, err
	}
	if !res.Success {
		return 0, fmt.Errorf("netclient: get_state_short: getter failed")
	}
	if len(res.Stack) == 0 {
		return 0, fmt.Errorf("netclient: get_state_short: empty stack")
	}
	val, err := strconv.ParseUint(res.Stack[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("netclient: get_state_short: invalid stack value %q: %w", res.Stack[0], err)
	}
	return uint32(val), nil
}

func encodeStdAddr(a Account) string {
	return fmt.Sprintf("%d:%x", a.Workchain, a.ID)
}
