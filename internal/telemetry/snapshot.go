package telemetry

import (
	"sync"
	"sync/atomic"
)

// Snapshot holds the latest complete batch under a reader/writer lock.
// Replace swaps the whole batch in while holding the write lock for the
// full copy, and ReadCopy copies the batch out while holding the read
// lock for the full copy, so a reader always observes either the old or
// the new batch in its entirety and never a partial mix. Any number of
// readers may copy concurrently.
type Snapshot struct {
	mu    sync.RWMutex
	batch Batch

	committed uint64
	collected atomic.Uint64 // readers share the lock, so counted atomically
}

// NewSnapshot creates an empty snapshot store.
func NewSnapshot() *Snapshot { return &Snapshot{} }

// Replace installs batch as the current snapshot, superseding the previous
// one. The batch is copied in, so the caller may reuse its slice.
func (s *Snapshot) Replace(b Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cap(s.batch) < len(b) {
		s.batch = make(Batch, len(b))
	}
	s.batch = s.batch[:len(b)]
	copy(s.batch, b)
	s.committed += uint64(len(b))
}

// ReadCopy returns a copy of the current snapshot. The result is owned by
// the caller and is never mutated by a later Replace. Returns nil when no
// batch has been committed yet.
func (s *Snapshot) ReadCopy() Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.batch) == 0 {
		return nil
	}
	out := make(Batch, len(s.batch))
	copy(out, s.batch)
	s.collected.Add(uint64(len(out)))
	return out
}

// Commit implements the store contract with whole-batch replacement.
func (s *Snapshot) Commit(b Batch) { s.Replace(b) }

// Collect implements the store contract with a consistent copy of the
// latest batch.
func (s *Snapshot) Collect() Batch { return s.ReadCopy() }

// Stats returns cumulative snapshot counters. Dropped is always zero for
// this strategy: a replace supersedes, it does not reject.
func (s *Snapshot) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStats{Committed: s.committed, Collected: s.collected.Load()}
}
