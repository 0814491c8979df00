package lane

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnqueueReturnsResult(t *testing.T) {
	q := NewQueue()

	got, err := Enqueue(q, LaneMain, func(ctx context.Context) (int, error) {
		return 42, nil
	}, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
}

func TestLaneSerializesFIFO(t *testing.T) {
	q := NewQueue()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			Enqueue(q, "serial", func(ctx context.Context) (struct{}, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return struct{}{}, nil
			}, nil)
		}()
		// Stagger enqueues so queue order is deterministic.
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("execution order %v not FIFO", order)
		}
	}
}

func TestConcurrencyCap(t *testing.T) {
	q := NewQueue()
	q.SetConcurrency("capped", 2)

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Enqueue(q, "capped", func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return struct{}{}, nil
			}, nil)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestLanesRunIndependently(t *testing.T) {
	q := NewQueue()

	blocker := make(chan struct{})
	go Enqueue(q, "a", func(ctx context.Context) (struct{}, error) {
		<-blocker
		return struct{}{}, nil
	}, nil)

	// Give the blocker time to occupy lane a.
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		Enqueue(q, "b", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, nil
		}, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lane b blocked behind lane a")
	}
	close(blocker)
}

func TestPanicBecomesError(t *testing.T) {
	q := NewQueue()

	_, err := Enqueue(q, LaneMain, func(ctx context.Context) (int, error) {
		panic("boom")
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("panic not surfaced as error: %v", err)
	}

	// The lane still works afterwards.
	got, err := Enqueue(q, LaneMain, func(ctx context.Context) (int, error) {
		return 7, nil
	}, nil)
	if err != nil || got != 7 {
		t.Errorf("lane dead after panic: %v %v", got, err)
	}
}

func TestClearFailsQueuedWaiters(t *testing.T) {
	q := NewQueue()

	blocker := make(chan struct{})
	go Enqueue(q, "clear", func(ctx context.Context) (struct{}, error) {
		<-blocker
		return struct{}{}, nil
	}, nil)
	time.Sleep(20 * time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		_, err := Enqueue(q, "clear", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, nil
		}, nil)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if removed := q.Clear("clear"); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("waiter error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cleared waiter never failed")
	}
	close(blocker)
}

func TestOnWaitFires(t *testing.T) {
	q := NewQueue()

	blocker := make(chan struct{})
	go Enqueue(q, "waity", func(ctx context.Context) (struct{}, error) {
		<-blocker
		return struct{}{}, nil
	}, nil)
	time.Sleep(10 * time.Millisecond)

	warned := make(chan int, 1)
	go Enqueue(q, "waity", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	}, &EnqueueOptions{
		WarnAfterMs: 1,
		OnWait: func(waitMs, queuedAhead int) {
			select {
			case warned <- waitMs:
			default:
			}
		},
	})

	time.Sleep(30 * time.Millisecond)
	close(blocker)

	select {
	case waitMs := <-warned:
		if waitMs < 1 {
			t.Errorf("waitMs = %d", waitMs)
		}
	case <-time.After(time.Second):
		t.Fatal("OnWait never fired")
	}
}

func TestContextBoundsWait(t *testing.T) {
	q := NewQueue()

	blocker := make(chan struct{})
	defer close(blocker)
	go Enqueue(q, "ctx", func(ctx context.Context) (struct{}, error) {
		<-blocker
		return struct{}{}, nil
	}, nil)
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := Enqueue(q, "ctx", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	}, &EnqueueOptions{Context: ctx})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestSessionLane(t *testing.T) {
	if SessionLane("abc") != Lane("session:abc") {
		t.Error("unexpected session lane name")
	}
	if SessionLane("abc") == SessionLane("def") {
		t.Error("distinct sessions share a lane")
	}
}

func TestStats(t *testing.T) {
	q := NewQueue()
	q.SetConcurrency("s", 3)

	stats := q.LaneStats("s")
	if stats.MaxConcurrent != 3 || stats.Pending != 0 || stats.Active != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if q.Size("s") != 0 {
		t.Error("size nonzero for idle lane")
	}
	if len(q.AllStats()) != 1 {
		t.Error("AllStats missing lane")
	}
}
