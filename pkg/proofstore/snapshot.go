package proofstore

import (
	"sync"

	"github.com/tecbot/gorocksdb"
)

// snapshotRef is a reference-counted handle to a RocksDB snapshot.
// Store.snapshot holds the current one via an atomic.Pointer so
// UpdateSnapshot can swap it without blocking readers already in
// flight — the "Arc-swap of snapshot" primitive described in §9,
// built here on a plain mutex-guarded refcount rather than a
// lock-free structure, since proof builds are not hot enough to need
// one.
type snapshotRef struct {
	mu       sync.Mutex
	snap     *gorocksdb.Snapshot
	refCount int
	db       *gorocksdb.DB
}

func (sr *snapshotRef) retain() *snapshotRef {
	sr.mu.Lock()
	sr.refCount++
	sr.mu.Unlock()
	return sr
}

func (sr *snapshotRef) release() {
	sr.mu.Lock()
	sr.refCount--
	dead := sr.refCount == 0
	sr.mu.Unlock()
	if dead {
		sr.db.ReleaseSnapshot(sr.snap)
	}
}

// UpdateSnapshot acquires a fresh RocksDB snapshot and swaps it in as
// the current one; readers that already called acquireSnapshot keep
// working against their own reference until they release it. Called
// by the block subscriber after every masterchain block is applied.
func (s *Store) UpdateSnapshot() {
	next := &snapshotRef{snap: s.db.NewSnapshot(), db: s.db, refCount: 1}
	old := s.snapshot.Swap(next)
	if old != nil {
		old.release()
	}
}

func (s *Store) releaseSnapshot() {
	if sr := s.snapshot.Load(); sr != nil {
		sr.release()
	}
}

// acquireSnapshot returns read options pinned to the current
// snapshot, plus a release func the caller must defer.
func (s *Store) acquireSnapshot() (*gorocksdb.ReadOptions, func()) {
	sr := s.snapshot.Load().retain()
	ro := gorocksdb.NewDefaultReadOptions()
	ro.SetSnapshot(sr.snap)
	return ro, func() {
		ro.Destroy()
		sr.release()
	}
}
