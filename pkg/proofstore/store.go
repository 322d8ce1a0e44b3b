// Copyright 2025 Certen Protocol
//
// Package proofstore is the embedded, column-partitioned proof store
// (component D): pruned blocks, pivot blocks, a transaction index,
// signature bundles, and GC timing markers, all held in one RocksDB
// instance opened with one column family per artifact family. It
// serves build_proof queries against a consistent read snapshot while
// ingest keeps writing, the same separation pkg/kvdb.Store draws
// between a narrow KV interface and the store logic above it.
package proofstore

import (
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tecbot/gorocksdb"
)

// Column family names, matching the four artifact families plus the
// transaction index and GC timing markers from the storage layout.
const (
	cfState         = "state"
	cfPrunedBlocks  = "pruned_blocks"
	cfPivotBlocks   = "pivot_blocks"
	cfTransactions  = "transactions"
	cfSignatures    = "signatures"
	cfTimings       = "timings"

	dbName        = "proofs"
	dbVersionMaj  = 1
	dbVersionMin  = 0
	dbVersionPat  = 0

	// STORE_TIMINGS_STEP is how often (in masterchain seqnos) a
	// timings record is written and GC is re-evaluated.
	StoreTimingsStep = 100
)

var cfNames = []string{
	"default", cfState, cfPrunedBlocks, cfPivotBlocks, cfTransactions, cfSignatures, cfTimings,
}

// Migration upgrades the on-disk schema from the version named by its
// From fields straight to the current version.
// Registering zero migrations means only the exact expected version
// is accepted when opening an existing store.
type Migration struct {
	FromMajor, FromMinor, FromPatch int
	Apply                           func(*Store) error
}

// Config configures how the store opens its RocksDB instance.
type Config struct {
	Path                string
	LRUCapacityBytes    int64
	EnableMetrics       bool
	MinProofTTLSec      int64
	CompactionInterval  time.Duration
	Migrations          []Migration
	Logger              *log.Logger

	// CPUWorkers sizes the pool store_block dispatches pivot/signature
	// transforms onto; clamped to [2, 8] by newCPUPool regardless of
	// what's passed here.
	CPUWorkers int

	// Registerer collects store_block/build_proof latency and GC sweep
	// counters when non-nil and EnableMetrics is set; main.go hands it
	// the same registry pkg/server exposes on GET /metrics.
	Registerer prometheus.Registerer
}

// Store is the embedded proof store described by §4.2.
type Store struct {
	db  *gorocksdb.DB
	cfs map[string]*gorocksdb.ColumnFamilyHandle
	ro  *gorocksdb.ReadOptions
	wo  *gorocksdb.WriteOptions

	cfg     Config
	log     *log.Logger
	metrics *storeMetrics
	cpuPool *cpuPool

	snapshot atomic.Pointer[snapshotRef]

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens (creating if absent) the RocksDB instance at cfg.Path
// with one column family per artifact family, verifies or migrates
// __db_name/__db_version in the state column family, takes the
// initial read snapshot, and starts the background compaction loop.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[proofstore] ", log.LstdFlags)
	}

	blockCache := gorocksdb.NewLRUCache(cfg.LRUCapacityBytes)
	cfOpts := buildColumnFamilyOptions(blockCache)

	dbOpts := gorocksdb.NewDefaultOptions()
	dbOpts.SetCreateIfMissing(true)
	dbOpts.SetCreateIfMissingColumnFamilies(true)
	if cfg.EnableMetrics {
		dbOpts.EnableStatistics()
	}

	db, handles, err := gorocksdb.OpenDbColumnFamilies(dbOpts, cfg.Path, cfNames, cfOpts)
	if err != nil {
		return nil, fmt.Errorf("proofstore: open: %w", err)
	}

	cfs := make(map[string]*gorocksdb.ColumnFamilyHandle, len(cfNames))
	for i, name := range cfNames {
		cfs[name] = handles[i]
	}

	s := &Store{
		db:     db,
		cfs:    cfs,
		ro:     gorocksdb.NewDefaultReadOptions(),
		wo:     gorocksdb.NewDefaultWriteOptions(),
		cfg:     cfg,
		log:     cfg.Logger,
		cpuPool: newCPUPool(cfg.CPUWorkers),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if err := s.checkOrMigrateVersion(cfg.Migrations); err != nil {
		return nil, err
	}

	if cfg.EnableMetrics && cfg.Registerer != nil {
		s.metrics = newStoreMetrics(cfg.Registerer)
	}

	s.UpdateSnapshot()

	if cfg.CompactionInterval > 0 {
		go s.compactionLoop()
	} else {
		close(s.doneCh)
	}

	return s, nil
}

// Close stops the background compaction loop and releases the
// underlying RocksDB handles.
func (s *Store) Close() {
	close(s.stopCh)
	<-s.doneCh
	s.releaseSnapshot()
	for _, h := range s.cfs {
		h.Destroy()
	}
	s.ro.Destroy()
	s.wo.Destroy()
	s.db.Close()
}

func (s *Store) cf(name string) *gorocksdb.ColumnFamilyHandle {
	h, ok := s.cfs[name]
	if !ok {
		panic("proofstore: unknown column family " + name)
	}
	return h
}

// compactionLoop fires with a random phase in [0, compaction_interval)
// before settling into its steady repeating interval, so many Store
// instances started around the same time don't all compact in lockstep.
func (s *Store) compactionLoop() {
	defer close(s.doneCh)

	phase := time.NewTimer(time.Duration(rand.Int63n(int64(s.cfg.CompactionInterval))))
	select {
	case <-s.stopCh:
		phase.Stop()
		return
	case <-phase.C:
	}

	ticker := time.NewTicker(s.cfg.CompactionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for _, name := range []string{cfPrunedBlocks, cfPivotBlocks, cfTransactions, cfSignatures} {
				s.db.CompactRangeCF(s.cf(name), gorocksdb.Range{Start: nil, Limit: nil})
			}
		}
	}
}
