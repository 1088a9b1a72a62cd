package dispatch

import (
	"container/heap"
	"sync"
	"time"

	"fleetsim/pkg/fleet"
)

// CommandQueue is a thread-safe max-priority queue of pending commands,
// ordered by priority descending then enqueue time ascending (FIFO
// within a priority band). It is a generic buffering primitive: it knows
// nothing about strategies, units, or the network.
type CommandQueue struct {
	mu      sync.Mutex
	entries entryHeap

	// nowFunc allows tests to control enqueue timestamps. It must be
	// monotonic so ties within a priority band cannot occur.
	nowFunc func() time.Time
}

// entry pairs a command with its queue ordering keys. It exists only
// inside the queue.
type entry struct {
	cmd      *fleet.Command
	priority int
	enqueued time.Time
	seq      uint64
}

// NewCommandQueue creates an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{nowFunc: time.Now}
}

// Enqueue adds cmd with the given priority. It never fails; no capacity
// bound is enforced.
func (q *CommandQueue) Enqueue(cmd *fleet.Command, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.entries, entry{
		cmd:      cmd,
		priority: priority,
		enqueued: q.nowFunc(),
		seq:      q.entries.nextSeq(),
	})
}

// Dequeue removes and returns the highest-priority command. It returns
// (nil, false) on an empty queue; callers poll or otherwise cope with
// emptiness.
func (q *CommandQueue) Dequeue() (*fleet.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries.Len() == 0 {
		return nil, false
	}
	e := heap.Pop(&q.entries).(entry)
	return e.cmd, true
}

// Len returns the number of pending commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// Empty reports whether the queue holds no commands.
func (q *CommandQueue) Empty() bool {
	return q.Len() == 0
}

// SetNowFunc overrides the queue's clock (for testing).
func (q *CommandQueue) SetNowFunc(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nowFunc = now
}

// entryHeap orders entries by priority descending, then enqueue time
// ascending, with an insertion sequence as the final tiebreak so equal
// clock readings still dequeue FIFO.
type entryHeap struct {
	items []entry
	seq   uint64
}

func (h *entryHeap) nextSeq() uint64 {
	h.seq++
	return h.seq
}

func (h *entryHeap) Len() int { return len(h.items) }

func (h *entryHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if !a.enqueued.Equal(b.enqueued) {
		return a.enqueued.Before(b.enqueued)
	}
	return a.seq < b.seq
}

func (h *entryHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *entryHeap) Push(x any) { h.items = append(h.items, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = entry{}
	h.items = old[:n-1]
	return item
}
