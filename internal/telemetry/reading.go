// Package telemetry holds the shared reading store that sits between the
// sample producer and the snapshot publisher, plus the payload codec for
// the published snapshots.
//
// Two store strategies are provided. Queue is a bounded single-producer/
// single-consumer ring that accumulates individual readings between drains.
// Snapshot keeps only the latest complete batch under a reader/writer lock.
// Both satisfy Store, and the active strategy is chosen from configuration
// at startup.
package telemetry

// Reading is one scalar measurement from one channel at one point in time.
// CapturedAt is seconds since the Unix epoch; it may be zero for
// streaming-rate telemetry where per-reading timestamps are not kept.
type Reading struct {
	ID         int
	Value      float64
	CapturedAt float64
}

// Batch is the ordered set of readings produced by one sampling pass.
// Channel ids are unique within a batch; order follows the configured
// channel list.
type Batch []Reading

// Store is the synchronization boundary between the producer and the
// publisher. Commit hands over the result of one sampling pass; Collect
// returns whatever the strategy holds for publication (which may span
// several passes for the queue form, or be empty).
type Store interface {
	Commit(Batch)
	Collect() Batch
	Stats() StoreStats
}

// StoreStats counts store traffic. Dropped is nonzero only for the queue
// strategy, when readings were rejected by a full ring.
type StoreStats struct {
	Committed uint64
	Collected uint64
	Dropped   uint64
}
