package database

import (
	"context"
	"fmt"
)

// SyncRecord is one row of the sync_history table: a record of an
// uploader's attempt to hand a key block's validator-set proof to a
// bridge contract, successful or not.
type SyncRecord struct {
	PairName       string
	KeyBlockSeqno  uint32
	VsetUtimeSince uint32
	MessageHash    []byte
	Err            string
}

// RecordSync inserts one sync_history row. Called by pkg/uploader
// after every send_key_block attempt, success or failure, so an
// operator can reconstruct the handover timeline independent of log
// retention.
func (c *Client) RecordSync(ctx context.Context, rec SyncRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sync_history (pair_name, key_block_seqno, vset_utime_since, message_hash, error)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, rec.PairName, rec.KeyBlockSeqno, rec.VsetUtimeSince, rec.MessageHash, rec.Err)
	if err != nil {
		return fmt.Errorf("database: record sync: %w", err)
	}
	return nil
}

// RecordKeyBlockSync adapts RecordSync to the flat argument shape
// pkg/uploader.AuditRecorder expects, so uploader never needs to
// import this package's SyncRecord type (uploader stays a leaf the
// same way pkg/netclient duplicates config.NetworkConfig instead of
// importing pkg/config).
func (c *Client) RecordKeyBlockSync(ctx context.Context, pairName string, keyBlockSeqno, vsetUtimeSince uint32, messageHash []byte, syncErr string) error {
	return c.RecordSync(ctx, SyncRecord{
		PairName:       pairName,
		KeyBlockSeqno:  keyBlockSeqno,
		VsetUtimeSince: vsetUtimeSince,
		MessageHash:    messageHash,
		Err:            syncErr,
	})
}

// LastSyncedSeqno returns the highest key_block_seqno successfully
// recorded (error IS NULL) for a pair, or 0 if none exists.
func (c *Client) LastSyncedSeqno(ctx context.Context, pairName string) (uint32, error) {
	var seqno uint32
	err := c.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(key_block_seqno), 0) FROM sync_history
		WHERE pair_name = $1 AND error IS NULL
	`, pairName).Scan(&seqno)
	if err != nil {
		return 0, fmt.Errorf("database: last synced seqno: %w", err)
	}
	return seqno, nil
}
