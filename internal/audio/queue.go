package audio

import (
	"sync"
	"time"
)

// DefaultQueueBlocks bounds the queue to roughly 95 seconds of audio.
const DefaultQueueBlocks = 4096

// dropLogInterval throttles the overflow warning.
const dropLogInterval = time.Second

// blockQueue is a FIFO of blocks. When bounded and full, Push discards the
// oldest block so the newest audio always survives.
type blockQueue struct {
	mu      sync.Mutex
	items   []Block
	head    int
	limit   int
	dropped uint64
	lastLog time.Time
	now     func() time.Time
}

// newBlockQueue creates a queue holding at most limit blocks; limit <= 0
// leaves it unbounded.
func newBlockQueue(limit int) *blockQueue {
	return &blockQueue{limit: max(limit, 0), now: time.Now}
}

func (q *blockQueue) Push(b Block) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit > 0 && q.lenLocked() >= q.limit {
		q.items[q.head] = Block{}
		q.head++
		q.dropped++
		if now := q.now(); now.Sub(q.lastLog) >= dropLogInterval {
			q.lastLog = now
			log.Warn("audio queue full, dropping oldest blocks",
				"limit", q.limit, "droppedTotal", q.dropped)
		}
	}
	q.items = append(q.items, b)
	q.compactLocked()
}

// Pop removes the oldest block without blocking.
func (q *blockQueue) Pop() (Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lenLocked() == 0 {
		return Block{}, false
	}
	b := q.items[q.head]
	q.items[q.head] = Block{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return b, true
}

func (q *blockQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped returns the number of blocks discarded on overflow.
func (q *blockQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Reset empties the queue and the drop counter.
func (q *blockQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.head = 0
	q.dropped = 0
}

func (q *blockQueue) lenLocked() int {
	return len(q.items) - q.head
}

// compactLocked slides live items to the front once the consumed prefix
// dominates the backing array.
func (q *blockQueue) compactLocked() {
	if q.head > 0 && q.head >= len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}
