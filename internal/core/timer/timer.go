// Package timer provides the single ordered event queue that drives the
// animation sequencer. Callbacks fire by due time; callbacks due at the same
// instant fire in the order they were scheduled.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Scheduler posts callbacks onto an ordered event queue.
// PRINCIPLES:
// - ISP: Minimal interface, two methods
// - DIP: The sequencer depends on this, not on wall-clock timers
type Scheduler interface {
	// Now returns the scheduler's notion of the current time.
	Now() time.Time
	// After runs fn once d has elapsed. Negative durations fire immediately.
	After(d time.Duration, fn func()) Handle
}

// Handle identifies a scheduled callback.
type Handle interface {
	// Cancel prevents the callback from running. It reports whether the
	// callback was still pending.
	Cancel() bool
}

// entry is one scheduled callback.
type entry struct {
	at    time.Time
	seq   uint64
	fn    func()
	index int
	q     *queue
}

// Cancel removes the entry from its queue.
func (e *entry) Cancel() bool {
	return e.q.remove(e)
}

// entryHeap orders entries by due time, then insertion sequence.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// queue is the shared, mutex protected heap used by both drivers.
type queue struct {
	mu      sync.Mutex
	entries entryHeap
	seq     uint64
	// notify is signalled whenever the head of the queue may have changed.
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(at time.Time, fn func()) *entry {
	q.mu.Lock()
	q.seq++
	e := &entry{at: at, seq: q.seq, fn: fn, q: q}
	heap.Push(&q.entries, e)
	q.mu.Unlock()
	q.signal()
	return e
}

func (q *queue) remove(e *entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.index < 0 || e.index >= len(q.entries) || q.entries[e.index] != e {
		return false
	}
	heap.Remove(&q.entries, e.index)
	return true
}

// popDue removes and returns the head entry if it is due at or before now.
func (q *queue) popDue(now time.Time) *entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 || q.entries[0].at.After(now) {
		return nil
	}
	return heap.Pop(&q.entries).(*entry)
}

// next returns the due time of the head entry.
func (q *queue) next() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return time.Time{}, false
	}
	return q.entries[0].at, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *queue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.entries)
	for _, e := range q.entries {
		e.index = -1
	}
	q.entries = nil
	return n
}

func (q *queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
