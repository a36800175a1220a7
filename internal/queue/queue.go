// Package queue implements the orchestrator's priority-ordered pending
// queue: a heap.Interface PriorityQueue wrapped in a condition-variable
// guarded DownloadQueue.
package queue

import (
	"container/heap"
	"sync"

	"vdengine/internal/model"
)

// item wraps a Task for the heap, tracking its own heap index for O(log n)
// removal.
type item struct {
	task  *model.Task
	index int
}

// priorityHeap orders by Priority descending, then CreatedAt ascending
// (oldest first) for ties, exactly as the orchestrator's pending queue
// requires.
type priorityHeap []*item

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].task.Priority == h[j].task.Priority {
		return h[i].task.CreatedAt.Before(h[j].task.CreatedAt)
	}
	return h[i].task.Priority > h[j].task.Priority
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// DownloadQueue is a thread-safe, priority-ordered pending-task queue.
// Pop blocks until a task is available or the queue is closed.
type DownloadQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	heap     priorityHeap
	byID     map[string]*item
	closed   bool
}

func NewDownloadQueue() *DownloadQueue {
	dq := &DownloadQueue{byID: make(map[string]*item)}
	dq.cond = sync.NewCond(&dq.mu)
	heap.Init(&dq.heap)
	return dq
}

// Push enqueues task, waking one blocked Pop call.
func (dq *DownloadQueue) Push(task *model.Task) {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	if dq.closed {
		return
	}

	it := &item{task: task}
	heap.Push(&dq.heap, it)
	dq.byID[task.ID] = it
	dq.cond.Signal()
}

// Pop removes and returns the highest-priority task, blocking until one is
// available or the queue is closed (in which case it returns nil, false).
func (dq *DownloadQueue) Pop() (*model.Task, bool) {
	dq.mu.Lock()
	defer dq.mu.Unlock()

	for dq.heap.Len() == 0 && !dq.closed {
		dq.cond.Wait()
	}
	if dq.heap.Len() == 0 {
		return nil, false
	}

	it := heap.Pop(&dq.heap).(*item)
	delete(dq.byID, it.task.ID)
	return it.task, true
}

// TryPop removes and returns the highest-priority task without blocking,
// reporting false immediately if the queue is empty. Used by bulk-start
// operations that must stop rather than wait once nothing is pending.
func (dq *DownloadQueue) TryPop() (*model.Task, bool) {
	dq.mu.Lock()
	defer dq.mu.Unlock()

	if dq.heap.Len() == 0 {
		return nil, false
	}
	it := heap.Pop(&dq.heap).(*item)
	delete(dq.byID, it.task.ID)
	return it.task, true
}

// Remove drops taskID from the queue before it's popped, e.g. on
// cancellation of a still-pending task. Reports whether it was present.
func (dq *DownloadQueue) Remove(taskID string) bool {
	dq.mu.Lock()
	defer dq.mu.Unlock()

	it, ok := dq.byID[taskID]
	if !ok {
		return false
	}
	heap.Remove(&dq.heap, it.index)
	delete(dq.byID, taskID)
	return true
}

// Len returns the number of pending tasks.
func (dq *DownloadQueue) Len() int {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return dq.heap.Len()
}

// Close unblocks every pending Pop call; they return nil, false.
func (dq *DownloadQueue) Close() {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	dq.closed = true
	dq.cond.Broadcast()
}
