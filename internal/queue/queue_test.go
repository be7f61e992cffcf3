package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEnqueuePerChannelFIFO(t *testing.T) {
	q := New(context.Background(), 4, nil)
	defer q.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		i := i
		q.Enqueue("c1", func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want strictly increasing FIFO order", order)
		}
	}
}

func TestEnqueueDropsPastDepthCap(t *testing.T) {
	q := New(context.Background(), 1, nil)
	defer q.Stop()

	block := make(chan struct{})
	q.Enqueue("c1", func(ctx context.Context) { <-block })

	var ran int32
	for i := 0; i < maxDepth+3; i++ {
		q.Enqueue("c1", func(ctx context.Context) { ran++ })
	}

	if got := q.Size("c1"); got > maxDepth {
		t.Fatalf("Size = %d, want at most %d (cap enforced)", got, maxDepth)
	}

	close(block)
	time.Sleep(20 * time.Millisecond)
}

func TestChannelsRunConcurrently(t *testing.T) {
	q := New(context.Background(), 2, nil)
	defer q.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	start := make(chan struct{})
	done := make(chan string, 2)

	q.Enqueue("a", func(ctx context.Context) {
		<-start
		done <- "a"
		wg.Done()
	})
	q.Enqueue("b", func(ctx context.Context) {
		<-start
		done <- "b"
		wg.Done()
	})

	close(start)
	wg.Wait()
	close(done)

	seen := map[string]bool{}
	for d := range done {
		seen[d] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both channel lanes to run, got %v", seen)
	}
}

func TestStopWaitsForDrain(t *testing.T) {
	q := New(context.Background(), 1, nil)

	ran := false
	q.Enqueue("c1", func(ctx context.Context) { ran = true })
	q.Stop()

	if !ran {
		t.Fatal("expected Stop to wait for already-enqueued work to finish")
	}
}
