package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := New[int](8)
	require.True(t, q.TryEnqueue(1))
	require.True(t, q.TryEnqueue(2))
	require.True(t, q.TryEnqueue(3))

	ctx := context.Background()
	for _, want := range []int{1, 2, 3} {
		got, ok := q.Dequeue(ctx)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestQueueCapacityRejectsWhenFull(t *testing.T) {
	q := New[int](2)
	require.True(t, q.TryEnqueue(1))
	require.True(t, q.TryEnqueue(2))
	require.False(t, q.TryEnqueue(3), "enqueue into a full queue must not block and must fail")
	require.True(t, q.IsFull())
}

func TestQueueTryEnqueueNeverBlocks(t *testing.T) {
	q := New[int](1)
	require.True(t, q.TryEnqueue(1))
	done := make(chan struct{})
	go func() {
		q.TryEnqueue(2) // must return immediately, false
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TryEnqueue blocked on a full queue")
	}
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New[int](4)
	results := make(chan int, 1)
	go func() {
		v, ok := q.Dequeue(context.Background())
		if ok {
			results <- v
		}
	}()
	time.Sleep(20 * time.Millisecond)
	select {
	case <-results:
		t.Fatal("Dequeue returned before any item was enqueued")
	default:
	}
	q.TryEnqueue(42)
	select {
	case v := <-results:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Dequeue never returned the enqueued item")
	}
}

func TestQueuePoisonPillShutdown(t *testing.T) {
	q := New[int](4)
	q.TryEnqueue(1)
	q.TryEnqueue(2)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var drained []int
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			v, ok := q.Dequeue(context.Background())
			if !ok {
				return
			}
			mu.Lock()
			drained = append(drained, v)
			mu.Unlock()
		}
	}()

	var dropped []int
	q.Close(func(v int) { dropped = append(dropped, v) })
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	// Every item enqueued before Close must be observed exactly once, either
	// by the consumer goroutine or by the drop callback — never both, never
	// neither.
	require.Equal(t, 2, len(drained)+len(dropped))
}

func TestQueueDequeueRespectsContextCancel(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, ok := q.Dequeue(ctx)
		require.False(t, ok)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not observe context cancellation")
	}
}
