package deferloop

import (
	"sync"
)

// chunkSize is the number of tasks per node in a taskQueue's linked list.
const chunkSize = 128

// task is a queued callback, with the sequence number assigned at enqueue.
type task struct {
	cb  Callback
	seq uint64
}

// taskQueue is a chunked linked-list FIFO, used for Tier-A, Tier-B and the
// check tier.
//
// Thread Safety: NOT thread-safe. A Scheduler is only ever driven from the
// goroutine calling it.
type taskQueue struct {
	head   *chunk
	tail   *chunk
	length int
}

// chunkPool recycles exhausted chunks.
var chunkPool = sync.Pool{
	New: func() any {
		return &chunk{}
	},
}

// chunk is a fixed-size node in the chunked linked-list.
// It uses readPos/pos cursors for O(1) push/pop without shifting.
type chunk struct {
	tasks   [chunkSize]task
	next    *chunk
	readPos int // first unread slot
	pos     int // first unused slot
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk clears the chunk's slots, so no callback stays reachable, and
// returns it to the pool.
func returnChunk(c *chunk) {
	for i := 0; i < c.pos; i++ {
		c.tasks[i] = task{}
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

// Push appends t to the tail of the queue.
func (q *taskQueue) Push(t task) {
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	}

	if q.tail.pos == len(q.tail.tasks) {
		newTail := newChunk()
		q.tail.next = newTail
		q.tail = newTail
	}

	q.tail.tasks[q.tail.pos] = t
	q.tail.pos++
	q.length++
}

// Pop removes and returns the head of the queue, or false if it is empty.
// The slot is cleared before returning, so the task is no longer queued by
// the time the caller runs it.
func (q *taskQueue) Pop() (task, bool) {
	if q.length == 0 {
		return task{}, false
	}

	// invariant: a non-empty queue's head chunk has at least one unread slot
	t := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = task{}
	q.head.readPos++
	q.length--

	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
		} else {
			oldHead := q.head
			q.head = q.head.next
			returnChunk(oldHead)
		}
	}

	return t, true
}

// Detach moves every queued task into a new queue, leaving q empty. It is
// used to snapshot the check tier at the start of its phase.
func (q *taskQueue) Detach() taskQueue {
	detached := *q
	*q = taskQueue{}
	return detached
}

// Clear drops every queued task.
func (q *taskQueue) Clear() {
	for c := q.head; c != nil; {
		next := c.next
		returnChunk(c)
		c = next
	}
	*q = taskQueue{}
}

// Len returns the number of queued tasks.
func (q *taskQueue) Len() int {
	return q.length
}
