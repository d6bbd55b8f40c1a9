package jobs

import (
	"container/heap"
	"sync"

	"paperbase/internal/models"
)

// queueItem is one entry in the priority queue. seq preserves FIFO order
// inside a priority band.
type queueItem struct {
	jobID    string
	priority models.Priority
	seq      uint64
}

type itemHeap []queueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	ri, rj := h[i].priority.Rank(), h[j].priority.Rank()
	if ri != rj {
		return ri < rj
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(queueItem)) }

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a bounded priority queue. Strict priority bands, FIFO within a
// band. Pop blocks until an item is available or the queue is closed.
type Queue struct {
	mu       sync.Mutex
	items    itemHeap
	capacity int
	seq      uint64
	notify   chan struct{}
	closed   bool
}

// NewQueue creates a queue holding at most capacity entries.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, capacity),
	}
}

// Push enqueues a job. A full queue returns a queue_full error and the
// caller rejects the upload.
func (q *Queue) Push(jobID string, priority models.Priority) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return models.Errorf(models.KindInternal, "queue", "queue closed")
	}
	if len(q.items) >= q.capacity {
		return models.Errorf(models.KindQueueFull, "queue",
			"queue is full (%d jobs)", q.capacity)
	}
	q.seq++
	heap.Push(&q.items, queueItem{jobID: jobID, priority: priority, seq: q.seq})
	q.notify <- struct{}{}
	return nil
}

// Pop dequeues the highest-priority job, blocking until one exists. The
// second return is false once the queue is closed and drained.
func (q *Queue) Pop() (string, bool) {
	for range q.notify {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := heap.Pop(&q.items).(queueItem)
			q.mu.Unlock()
			return item.jobID, true
		}
		q.mu.Unlock()
	}
	return "", false
}

// Remove drops a queued job by ID, used by cancellation. Returns whether
// the job was found.
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.jobID == jobID {
			heap.Remove(&q.items, i)
			// Drain one notify token so Pop wakeups stay balanced.
			select {
			case <-q.notify:
			default:
			}
			return true
		}
	}
	return false
}

// Depth returns the number of queued jobs.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the queue bound.
func (q *Queue) Capacity() int {
	return q.capacity
}

// ByPriority counts queued jobs per priority band.
func (q *Queue) ByPriority() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := map[string]int{}
	for _, item := range q.items {
		counts[string(item.priority)]++
	}
	return counts
}

// Close stops Pop from blocking once the queue drains.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.notify)
	}
}
