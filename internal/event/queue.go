package event

import (
	"sync"
	"sync/atomic"
)

// MinQueueCapacity is the floor for queue sizing. The daemon sizes the
// queue at 4x burst_keys so a worst-case injection burst fits without
// backpressure, but never below this.
const MinQueueCapacity = 64

// Queue is a bounded FIFO between the hook callback context (producer)
// and the analysis worker (consumer).
//
// Push never blocks: when the queue is full the oldest event is dropped
// and a counter incremented. Blocking the hook thread risks the OS
// disabling the hook entirely, so overflow favors losing an old event
// over stalling the producer. The critical section is a few ring-index
// operations; the producer never waits on I/O or on the consumer.
type Queue struct {
	mu    sync.Mutex
	buf   []KeyEvent
	head  int // index of oldest element
	count int

	dropped atomic.Uint64

	// notify carries a wakeup token to the single consumer. Buffered at 1
	// so the producer's send never blocks.
	notify chan struct{}
}

// NewQueue creates a queue with the given capacity (raised to
// MinQueueCapacity if below it).
func NewQueue(capacity int) *Queue {
	if capacity < MinQueueCapacity {
		capacity = MinQueueCapacity
	}
	return &Queue{
		buf:    make([]KeyEvent, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns the number of events dropped due to overflow.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Push enqueues an event, dropping the oldest on overflow. Safe to call
// from the hook callback context.
func (q *Queue) Push(ev KeyEvent) {
	q.mu.Lock()
	if q.count == len(q.buf) {
		// Overwrite the oldest slot.
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.dropped.Add(1)
	}
	q.buf[(q.head+q.count)%len(q.buf)] = ev
	q.count++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest event, or false if the queue is empty.
func (q *Queue) Pop() (KeyEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return KeyEvent{}, false
	}
	ev := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return ev, true
}

// Drain discards all buffered events and returns how many were removed.
// Used on session resume: events queued while the workstation was locked
// carry stale timing and must not be replayed into the windows.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.count
	q.head = 0
	q.count = 0
	return n
}

// Wait returns a channel that receives a token when events may be
// available. The consumer blocks on it instead of polling; a received
// token means "check the queue", not "exactly one event".
func (q *Queue) Wait() <-chan struct{} {
	return q.notify
}
