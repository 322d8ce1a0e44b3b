// Copyright 2025 Certen Protocol

package firestore

import "time"

// EpochSyncEvent is one row of the real-time mirror: a single attempt
// by an uploader (component G) to hand a key block's validator-set
// proof to a destination bridge contract, successful or not. It
// carries the same facts pkg/database.SyncRecord persists to Postgres
// for audit, shaped for a document store instead of a relational one.
type EpochSyncEvent struct {
	PairName       string    `firestore:"pairName"`
	KeyBlockSeqno  uint32    `firestore:"keyBlockSeqno"`
	VsetUtimeSince uint32    `firestore:"vsetUtimeSince"`
	MessageHash    string    `firestore:"messageHash"` // hex-encoded
	Success        bool      `firestore:"success"`
	ErrorMessage   string    `firestore:"errorMessage,omitempty"`
	ObservedAt     time.Time `firestore:"observedAt"`
}
