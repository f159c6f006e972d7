package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipharvest/pkg/logger"
)

func TestPoolBasicFunctionality(t *testing.T) {
	var processed int32
	p := New(context.Background(), 3, func(ctx context.Context, workerID int, job int) int {
		atomic.AddInt32(&processed, 1)
		time.Sleep(5 * time.Millisecond)
		return job * 2
	}, WithLogger(logger.NewNopLogger()))
	p.Start()

	var (
		mu  sync.Mutex
		sum int
		wg  sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := range p.Results() {
			mu.Lock()
			sum += r
			mu.Unlock()
		}
	}()

	for i := 1; i <= 10; i++ {
		if err := p.Submit(i); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}
	p.Stop()
	wg.Wait()

	if got := atomic.LoadInt32(&processed); got != 10 {
		t.Errorf("Expected 10 jobs processed, got %d", got)
	}
	if sum != 110 {
		t.Errorf("Expected result sum 110, got %d", sum)
	}
}

func TestPoolStopIsIdempotent(t *testing.T) {
	p := New(context.Background(), 2, func(ctx context.Context, _ int, job string) string { return job },
		WithLogger(logger.NewNopLogger()))
	p.Start()
	p.Stop()
	p.Stop()
}

func TestSubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(ctx, 1, func(ctx context.Context, _ int, job int) int { return job },
		WithLogger(logger.NewNopLogger()))
	p.Start()
	cancel()

	if err := p.Submit(1); err == nil {
		t.Error("Expected Submit to fail after cancellation")
	}
	go func() {
		for range p.Results() {
		}
	}()
	p.Stop()
}

func TestRunPreservesInputOrder(t *testing.T) {
	jobs := []int{5, 1, 4, 2, 3}
	results := Run(context.Background(), 3, jobs, func(ctx context.Context, n int) int {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10
	}, WithLogger(logger.NewNopLogger()))

	want := []int{50, 10, 40, 20, 30}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %d, want %d", i, results[i], want[i])
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	jobs := make([]int, 20)

	Run(context.Background(), 4, jobs, func(ctx context.Context, _ int) struct{} {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}
	}, WithLogger(logger.NewNopLogger()))

	if peak > 4 {
		t.Errorf("Expected at most 4 concurrent jobs, saw %d", peak)
	}
	if peak < 2 {
		t.Errorf("Expected jobs to overlap, peak was %d", peak)
	}
}

func TestRunEmpty(t *testing.T) {
	results := Run(context.Background(), 4, nil, func(ctx context.Context, n int) int { return n })
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}
