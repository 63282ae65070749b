package msgrelay

import "sync"

const queueCompactThreshold = 64

// Queue is an unbounded FIFO of pending messages safe for concurrent use.
// Producers Push; the single consumer Peeks the head and Pops it once handled,
// so a message survives a failed attempt.
type Queue struct {
	mu    sync.Mutex
	items []string
	head  int
	limit int
}

// NewQueue creates a queue. A positive limit bounds its length.
func NewQueue(limit int) *Queue {
	if limit < 0 {
		limit = 0
	}

	return &Queue{limit: limit}
}

// Push appends a message. It reports false when a bounded queue is full.
func (q *Queue) Push(message string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit > 0 && len(q.items)-q.head >= q.limit {
		return false
	}
	q.items = append(q.items, message)

	return true
}

// Peek returns the head message without removing it.
func (q *Queue) Peek() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return "", false
	}

	return q.items[q.head], true
}

// Pop removes and returns the head message.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return "", false
	}
	message := q.items[q.head]
	q.items[q.head] = ""
	q.head++
	q.compact()

	return message, true
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items) - q.head
}

// Last returns the most recently queued message without removing it.
func (q *Queue) Last() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return "", false
	}

	return q.items[len(q.items)-1], true
}

// Snapshot returns a copy of the queued messages, head first.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]string, len(q.items)-q.head)
	copy(out, q.items[q.head:])

	return out
}

// compact reclaims the consumed prefix once it dominates the backing slice.
func (q *Queue) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0

		return
	}
	if q.head < queueCompactThreshold || q.head*2 < len(q.items) {
		return
	}
	n := copy(q.items, q.items[q.head:])
	clear(q.items[n:])
	q.items = q.items[:n]
	q.head = 0
}
