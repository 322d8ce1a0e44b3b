package netclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
)

// pollInterval and retryInterval match the sync loop's cadence in
// original_source: one second for both polling a chain for state
// changes and retrying a client call that failed transiently.
const (
	pollInterval  = time.Second
	retryInterval = time.Second
	findTxBatch   = 10
)

// NetworkClient is the capability set a block subscriber or uploader
// needs out of a TON-family network, independent of whether it talks
// to a lite-server over the ADNL binary protocol or to a JSON-RPC
// gateway in front of a node.
type NetworkClient interface {
	Name() string

	GetSignatureID(ctx context.Context) (*int32, error)
	GetLatestKeyBlockSeqno(ctx context.Context) (uint32, error)
	GetBlockchainConfig(ctx context.Context) (*cell.Cell, error)
	GetKeyBlock(ctx context.Context, seqno uint32) (*KeyBlockData, error)

	// GetBlockSignatures fetches the raw, node-id-short-keyed signature
	// set a masterchain block's own proof carries. The block subscriber
	// (pkg/subscriber) uses this to fill prepare_block's
	// signatures_by_node_id_short input for every masterchain block it
	// ingests, per spec §4.3 — not just key blocks, which only
	// GetKeyBlock's caller needs.
	GetBlockSignatures(ctx context.Context, seqno uint32) ([]cellproof.SignatureEntry, error)

	GetAccountState(ctx context.Context, account Account, lastTransactionLT *uint64) (*AccountStateResponse, error)
	GetTransactions(ctx context.Context, account Account, lt uint64, hash [32]byte, count uint8) ([]TxRecord, error)
	SendMessage(ctx context.Context, message *cell.Cell) error

	// MakeKeyBlockProofToSync wraps data.Root in the Merkle-proof
	// envelope a downstream syncer expects, including the previous
	// validator set's final cell when the vset actually rotated.
	MakeKeyBlockProofToSync(data *KeyBlockData) (*cell.Cell, error)

	// GetBridgeVsetUtimeSince runs the bridge contract's get_state_short
	// getter and returns the u32 it reports on the stack, the uploader's
	// equivalent of original_source's ExecutionContext-based getter call
	// against a locally-seeded VM: here, executed by the backend node
	// itself against its own current blockchain config.
	GetBridgeVsetUtimeSince(ctx context.Context, bridge Account) (uint32, error)
}

var ErrMessageExpired = errors.New("netclient: message expired before it was found on-chain")

// SendMessageReliable submits msg and polls the account's transaction
// history until the transaction it produced is found, or until
// expireAt (a unix gen_utime) has passed with nothing to show for it.
func SendMessageReliable(ctx context.Context, c NetworkClient, logger *log.Logger, account Account, msg *cell.Cell, knownLT uint64, expireAt uint32) (*TxRecord, error) {
	msgHash := msg.Hash()
	var msgHash32 [32]byte
	copy(msgHash32[:], msgHash)

	if err := c.SendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("netclient: send message: %w", err)
	}

	tx, err := FindTransaction(ctx, c, logger, account, msgHash32, knownLT, &expireAt)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrMessageExpired
	}
	return tx, nil
}

// WaitForDeploy blocks until account's state transitions to Exists,
// polling once a second.
func WaitForDeploy(ctx context.Context, c NetworkClient, logger *log.Logger, account Account) error {
	for {
		state := GetAccountStateWithRetries(ctx, c, logger, account, nil)
		if state.Status == AccountExists {
			return nil
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

// GetAccountStateWithRetries calls GetAccountState, retrying once a
// second on any transport error rather than surfacing it — the
// uploader loop is long-running and transient RPC failures are
// expected over its lifetime.
func GetAccountStateWithRetries(ctx context.Context, c NetworkClient, logger *log.Logger, account Account, knownLT *uint64) AccountStateResponse {
	for {
		res, err := c.GetAccountState(ctx, account, knownLT)
		if err == nil {
			return *res
		}
		if logger != nil {
			logger.Printf("client=%s failed to get contract state: %v", c.Name(), err)
		}
		if sleepErr := sleep(ctx, retryInterval); sleepErr != nil {
			return AccountStateResponse{}
		}
	}
}

// FindTransaction walks an account's transaction history looking for
// the one whose in-message matches msgHash, starting from the account's
// latest known transaction and following prev_trans_lt/hash backwards
// until knownLT is reached. If expireAt is non-nil, the search gives
// up (returning nil, nil) once the account's gen_utime passes it, or
// wall-clock time does when the backend reports no gen_utime.
func FindTransaction(ctx context.Context, c NetworkClient, logger *log.Logger, account Account, msgHash [32]byte, knownLT uint64, expireAt *uint32) (*TxRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state := GetAccountStateWithRetries(ctx, c, logger, account, &knownLT)

		switch state.Status {
		case AccountExists:
			if state.LastTransactionID.LT > knownLT {
				tx, err := walkTransactions(ctx, c, logger, account, msgHash, state.LastTransactionID, knownLT)
				if err != nil {
					return nil, err
				}
				if tx != nil {
					return tx, nil
				}
				knownLT = state.LastTransactionID.LT
			}
		}

		now := state.Timings.GenUtime
		if now == 0 {
			now = uint32(time.Now().Unix())
		}
		if expireAt != nil && now > *expireAt {
			return nil, nil
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// walkTransactions pages backwards from last in batches of
// findTxBatch, looking for a transaction whose in-message hash equals
// msgHash, stopping once it walks back past knownLT.
func walkTransactions(ctx context.Context, c NetworkClient, logger *log.Logger, account Account, msgHash [32]byte, last LastTransactionID, knownLT uint64) (*TxRecord, error) {
	for {
		txs, err := getTransactionsWithRetries(ctx, c, logger, account, last)
		if err != nil {
			return nil, err
		}
		if len(txs) == 0 {
			return nil, fmt.Errorf("netclient: got empty transactions response")
		}

		for i, tx := range txs {
			if i == 0 && tx.Hash != last.Hash {
				return nil, fmt.Errorf("netclient: last tx hash mismatch")
			}
			if tx.LT != last.LT {
				return nil, fmt.Errorf("netclient: last tx lt mismatch")
			}
			if tx.InMsgHash != nil && *tx.InMsgHash == msgHash {
				return &tx, nil
			}
			last = LastTransactionID{LT: tx.PrevTransLT, Hash: tx.PrevTransHash}
			if tx.PrevTransLT <= knownLT {
				return nil, nil
			}
		}

		if last.LT <= knownLT {
			return nil, nil
		}
	}
}

func getTransactionsWithRetries(ctx context.Context, c NetworkClient, logger *log.Logger, account Account, last LastTransactionID) ([]TxRecord, error) {
	for {
		txs, err := c.GetTransactions(ctx, account, last.LT, last.Hash, findTxBatch)
		if err == nil {
			return txs, nil
		}
		if logger != nil {
			logger.Printf("client=%s failed to process transactions: %v", c.Name(), err)
		}
		if sleepErr := sleep(ctx, retryInterval); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
