package deferloop

import (
	"container/heap"
)

// TimerHandle identifies an enrolled timer, see [Scheduler.Cancel].
// Zero is never issued.
type TimerHandle uint64

// timerEntry is a callback enrolled in the timer tier. A repeating entry
// keeps its handle across re-enrollments, but is given a new seq each time.
type timerEntry struct {
	cb        Callback
	delay     int64
	seq       uint64
	handle    TimerHandle
	index     int // position in timerHeap, -1 when not in the heap
	repeating bool
	cancelled bool
}

// timerHeap is a min-heap of timer entries keyed by (delay, seq).
type timerHeap []*timerEntry

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].delay != h[j].delay {
		return h[i].delay < h[j].delay
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerQueue is the timer tier: the heap of enrolled entries, plus an index
// from handle to entry for cancellation.
type timerQueue struct {
	heap    timerHeap
	handles map[TimerHandle]*timerEntry
}

func (q *timerQueue) enroll(e *timerEntry) {
	if q.handles == nil {
		q.handles = make(map[TimerHandle]*timerEntry)
	}
	q.handles[e.handle] = e
	heap.Push(&q.heap, e)
}

// snapshot removes every enrolled entry, returning them in (delay, seq)
// order. Entries stay registered by handle until they fire, so an earlier
// callback of the same pass can still cancel them.
func (q *timerQueue) snapshot() []*timerEntry {
	if len(q.heap) == 0 {
		return nil
	}
	entries := make([]*timerEntry, 0, len(q.heap))
	for len(q.heap) > 0 {
		entries = append(entries, heap.Pop(&q.heap).(*timerEntry))
	}
	return entries
}

// cancel marks the entry as cancelled, and removes it from the heap if it is
// still there. It reports whether an entry was cancelled.
func (q *timerQueue) cancel(h TimerHandle) (*timerEntry, bool) {
	e, ok := q.handles[h]
	if !ok {
		return nil, false
	}
	delete(q.handles, h)
	e.cancelled = true
	if e.index >= 0 {
		heap.Remove(&q.heap, e.index)
	}
	return e, true
}

// release forgets a one-shot entry after it fired.
func (q *timerQueue) release(e *timerEntry) {
	if q.handles[e.handle] == e {
		delete(q.handles, e.handle)
	}
}

func (q *timerQueue) Len() int {
	return len(q.heap)
}

// pending counts entries that may still fire, including those snapshotted by
// a pass that is in progress.
func (q *timerQueue) pending() int {
	return len(q.handles)
}

func (q *timerQueue) clear() {
	for _, e := range q.heap {
		e.index = -1
	}
	q.heap = nil
	q.handles = nil
}
