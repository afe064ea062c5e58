package cycle

import (
	"sync"

	"github.com/eapache/queue"
)

// snapshotQueue is a thread-safe unbounded FIFO of boundary snapshots.
//
// The runner enqueues without ever blocking on delivery; the worker waits
// on the signal channel, so shutdown is a matter of closing the queue.
type snapshotQueue struct {
	mu     sync.Mutex
	ring   *queue.Queue
	closed bool
	signal chan struct{} // buffered, size 1
}

func newSnapshotQueue() *snapshotQueue {
	return &snapshotQueue{
		ring:   queue.New(),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a snapshot to the back of the queue.
// Returns false if the queue is closed.
func (q *snapshotQueue) Enqueue(info *ReportsInfo) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.ring.Add(info)

	// Buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front snapshot without blocking.
func (q *snapshotQueue) TryDequeue() (*ReportsInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ring.Length() == 0 {
		return nil, false
	}
	return q.ring.Remove().(*ReportsInfo), true
}

// Wait returns a channel that signals when snapshots may be available.
// The channel is closed by Close.
func (q *snapshotQueue) Wait() <-chan struct{} {
	return q.signal
}

// Drained reports whether the queue is closed and empty.
func (q *snapshotQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && q.ring.Length() == 0
}

// Len returns the current queue length.
func (q *snapshotQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Length()
}

// Close stops accepting snapshots and wakes the waiting worker. Snapshots
// already queued are still handed out by TryDequeue.
func (q *snapshotQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
