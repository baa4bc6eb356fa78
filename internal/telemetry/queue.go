package telemetry

import "sync/atomic"

// Queue is a bounded single-producer/single-consumer ring of readings.
// TryPush never blocks: when the ring is full the reading is dropped and
// counted, so a slow publisher can never stall the sampling loop.
//
// The head and tail counters only ever increase; their difference is the
// number of readings currently buffered. The producer goroutine is the only
// writer of tail, the consumer goroutine the only writer of head, and the
// atomic loads/stores order the slot writes against the counter updates.
// It is NOT safe for more than one goroutine on either side.
type Queue struct {
	buf []Reading

	head    atomic.Uint64 // next slot to pop, advanced only by the consumer
	tail    atomic.Uint64 // next slot to fill, advanced only by the producer
	pushed  atomic.Uint64
	popped  atomic.Uint64
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most capacity readings.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{buf: make([]Reading, capacity)}
}

// Capacity returns the fixed size of the ring.
func (q *Queue) Capacity() int { return len(q.buf) }

// TryPush appends one reading. It reports false, and counts a drop, when
// the ring is full. Producer side only.
func (q *Queue) TryPush(r Reading) bool {
	t := q.tail.Load()
	h := q.head.Load()
	if t-h >= uint64(len(q.buf)) {
		q.dropped.Add(1)
		return false
	}
	q.buf[t%uint64(len(q.buf))] = r
	q.tail.Store(t + 1)
	q.pushed.Add(1)
	return true
}

// DrainAll pops every reading currently buffered, oldest first. It never
// blocks and returns nil when the ring is empty. Consumer side only.
func (q *Queue) DrainAll() Batch {
	h := q.head.Load()
	t := q.tail.Load()
	if t == h {
		return nil
	}
	out := make(Batch, 0, t-h)
	for i := h; i < t; i++ {
		out = append(out, q.buf[i%uint64(len(q.buf))])
	}
	q.head.Store(t)
	q.popped.Add(uint64(len(out)))
	return out
}

// Len returns the number of buffered readings. Approximate while the other
// side is active.
func (q *Queue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Dropped returns the number of readings rejected by a full ring.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Commit pushes each reading of the batch individually, implementing the
// queue form of the store contract.
func (q *Queue) Commit(b Batch) {
	for _, r := range b {
		q.TryPush(r)
	}
}

// Collect drains everything buffered since the previous drain.
func (q *Queue) Collect() Batch { return q.DrainAll() }

// Stats returns cumulative queue counters.
func (q *Queue) Stats() StoreStats {
	return StoreStats{
		Committed: q.pushed.Load(),
		Collected: q.popped.Load(),
		Dropped:   q.dropped.Load(),
	}
}
