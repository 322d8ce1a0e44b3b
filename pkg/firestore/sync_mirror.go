// Copyright 2025 Certen Protocol
//
// Sync Mirror
// Mirrors uploader key-block handover attempts to Firestore for a
// real-time operator dashboard, independent of the Postgres audit
// trail in pkg/database.

package firestore

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"
)

// SyncMirror writes one EpochSyncEvent document per (pair, seqno),
// with document id {pairName}_{seqno} in the configured collection; a
// later attempt for the same key block overwrites it. It satisfies
// pkg/uploader.AuditRecorder's RecordKeyBlockSync method so main.go
// can hand it to an Uploader directly, or fan it out alongside the
// Postgres recorder via uploader.MultiRecorder.
type SyncMirror struct {
	client     *Client
	collection string
	logger     *log.Logger

	// dedupeCache suppresses redundant writes when Run's retry loop
	// re-attempts the same (pair, seqno) within dedupeTTL of a prior
	// successful mirror, the same short-lived cache idiom the teacher
	// used to avoid refetching recently-seen lookups.
	dedupeCache map[string]time.Time
	dedupeTTL   time.Duration
	mu          sync.Mutex
}

// SyncMirrorConfig configures a SyncMirror.
type SyncMirrorConfig struct {
	Client     *Client
	Collection string // defaults to "epochSyncEvents"
	Logger     *log.Logger
	DedupeTTL  time.Duration // defaults to 30s
}

// NewSyncMirror builds a SyncMirror over an already-constructed Client.
func NewSyncMirror(cfg SyncMirrorConfig) (*SyncMirror, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("firestore: sync mirror requires a client")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "epochSyncEvents"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[firestore-sync] ", log.LstdFlags)
	}
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SyncMirror{
		client:      cfg.Client,
		collection:  collection,
		logger:      logger,
		dedupeCache: make(map[string]time.Time),
		dedupeTTL:   ttl,
	}, nil
}

// RecordKeyBlockSync mirrors one handover attempt to Firestore. It is
// a no-op when the underlying client is disabled (tests, local dev),
// and it never returns an error for telemetry write failures once the
// attempt itself has been logged — losing a dashboard update must not
// turn an otherwise-successful handover into an uploader retry.
func (m *SyncMirror) RecordKeyBlockSync(ctx context.Context, pairName string, keyBlockSeqno, vsetUtimeSince uint32, messageHash []byte, syncErr string) error {
	if !m.client.IsEnabled() {
		return nil
	}

	key := fmt.Sprintf("%s/%d", pairName, keyBlockSeqno)
	now := time.Now()
	m.mu.Lock()
	if last, ok := m.dedupeCache[key]; ok && syncErr == "" && now.Sub(last) < m.dedupeTTL {
		m.mu.Unlock()
		return nil
	}
	if syncErr == "" {
		m.dedupeCache[key] = now
	}
	for k, t := range m.dedupeCache {
		if now.Sub(t) > m.dedupeTTL {
			delete(m.dedupeCache, k)
		}
	}
	m.mu.Unlock()

	event := EpochSyncEvent{
		PairName:       pairName,
		KeyBlockSeqno:  keyBlockSeqno,
		VsetUtimeSince: vsetUtimeSince,
		MessageHash:    hex.EncodeToString(messageHash),
		Success:        syncErr == "",
		ErrorMessage:   syncErr,
		ObservedAt:     now,
	}

	col := m.client.Collection(m.collection)
	if col == nil {
		return nil
	}
	docID := fmt.Sprintf("%s_%d", pairName, keyBlockSeqno)
	if _, err := col.Doc(docID).Set(ctx, event); err != nil {
		m.logger.Printf("mirror key block sync pair=%s seqno=%d: %v", pairName, keyBlockSeqno, err)
	}
	return nil
}
