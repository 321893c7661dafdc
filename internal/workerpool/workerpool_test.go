package workerpool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsEveryTask(t *testing.T) {
	p := New(4)
	defer p.Close()

	var n atomic.Int64
	const total = 500
	for i := 0; i < total; i++ {
		p.Submit(func() { n.Add(1) })
	}

	deadline := time.Now().Add(2 * time.Second)
	for n.Load() != total && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := n.Load(); got != total {
		t.Fatalf("expected %d tasks to run, got %d", total, got)
	}
}

func TestSubmitAfterCloseReturnsFalse(t *testing.T) {
	p := New(2)
	p.Close()
	if p.Submit(func() {}) {
		t.Fatalf("expected Submit to report false after Close")
	}
}

func TestCompletionQueueDrainRunsAllPending(t *testing.T) {
	q := NewCompletionQueue()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.Push(func() { order = append(order, i) })
	}
	q.Drain()
	if len(order) != 5 {
		t.Fatalf("expected 5 callbacks run, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestCompletionQueueDrainIsIdempotentWhenEmpty(t *testing.T) {
	q := NewCompletionQueue()
	q.Drain() // must not panic on an empty queue
	q.Push(func() {})
	q.Drain()
	q.Drain() // second drain sees nothing pending
}
