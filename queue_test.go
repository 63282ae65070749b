package msgrelay

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestQueuePeekPop(t *testing.T) {
	q := NewQueue(0)
	if _, ok := q.Peek(); ok {
		t.Fatalf("expected empty queue")
	}

	q.Push("a")
	q.Push("b")

	if head, _ := q.Peek(); head != "a" {
		t.Fatalf("expected head a, got %q", head)
	}
	if q.Len() != 2 {
		t.Fatalf("peek must not remove, len %d", q.Len())
	}
	if last, _ := q.Last(); last != "b" {
		t.Fatalf("expected last b, got %q", last)
	}
	if got, _ := q.Pop(); got != "a" {
		t.Fatalf("expected pop a, got %q", got)
	}
	if got, _ := q.Pop(); got != "b" {
		t.Fatalf("expected pop b, got %q", got)
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected empty queue after draining")
	}
	if _, ok := q.Last(); ok {
		t.Fatalf("expected no last message")
	}
}

func TestQueueBounded(t *testing.T) {
	q := NewQueue(2)
	if !q.Push("a") || !q.Push("b") {
		t.Fatalf("expected pushes within limit to succeed")
	}
	if q.Push("c") {
		t.Fatalf("expected push over limit to fail")
	}
	q.Pop()
	if !q.Push("c") {
		t.Fatalf("expected push after pop to succeed")
	}
	if got := q.Snapshot(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("unexpected snapshot: %v", got)
	}
}

func TestQueueCompactionKeepsOrder(t *testing.T) {
	q := NewQueue(0)
	for i := range 200 {
		q.Push(fmt.Sprint(i))
	}
	for i := range 150 {
		got, _ := q.Pop()
		if got != fmt.Sprint(i) {
			t.Fatalf("expected %d, got %s", i, got)
		}
	}
	for i := 200; i < 210; i++ {
		q.Push(fmt.Sprint(i))
	}
	if q.Len() != 60 {
		t.Fatalf("expected 60 queued, got %d", q.Len())
	}
	for i := 150; i < 210; i++ {
		got, _ := q.Pop()
		if got != fmt.Sprint(i) {
			t.Fatalf("expected %d, got %s", i, got)
		}
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue(0)
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				q.Push(fmt.Sprintf("%d-%d", p, i))
			}
		}()
	}
	wg.Wait()

	if q.Len() != producers*perProducer {
		t.Fatalf("expected %d messages, got %d", producers*perProducer, q.Len())
	}

	next := make([]int, producers)
	for {
		msg, ok := q.Pop()
		if !ok {
			break
		}
		var p, i int
		if _, err := fmt.Sscanf(msg, "%d-%d", &p, &i); err != nil {
			t.Fatalf("parse %q: %v", msg, err)
		}
		if i != next[p] {
			t.Fatalf("producer %d out of order: got %d, want %d", p, i, next[p])
		}
		next[p]++
	}
}
