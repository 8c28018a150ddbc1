package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("transport:queue_test - push %d rejected", i)
		}
	}
	if q.Len() != 5 {
		t.Fatalf("transport:queue_test - expected len 5, got %d", q.Len())
	}
	for i := 0; i < 5; i++ {
		v, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("transport:queue_test - pop: %v", err)
		}
		if v != i {
			t.Errorf("transport:queue_test - expected %d, got %d", i, v)
		}
	}
}

func TestQueue_DrainsBeforeClosed(t *testing.T) {
	q := NewQueue[string]()
	q.Push("a")
	q.Close()

	if q.Push("b") {
		t.Error("transport:queue_test - push after close should be rejected")
	}
	v, err := q.Pop(context.Background())
	if err != nil || v != "a" {
		t.Fatalf("transport:queue_test - expected a, got %q err=%v", v, err)
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("transport:queue_test - expected ErrClosed, got %v", err)
	}
}

func TestQueue_PopHonoursContext(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("transport:queue_test - expected deadline exceeded, got %v", err)
	}
}

func TestQueue_CloseWakesAllWaiters(t *testing.T) {
	q := NewQueue[int]()
	const waiters = 4

	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("transport:queue_test - waiters not woken by Close")
	}
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("transport:queue_test - expected ErrClosed, got %v", err)
		}
	}
}
