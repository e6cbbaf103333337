package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestImportLimiterAcquireRelease(t *testing.T) {
	limiter := NewImportLimiter(2, time.Second)
	ctx := context.Background()

	steps := []struct {
		name          string
		op            func() error
		wantActive    int
		wantAvailable int
	}{
		{"initial", func() error { return nil }, 0, 2},
		{"acquire", func() error { return limiter.Acquire(ctx) }, 1, 1},
		{"try acquire", func() error {
			if !limiter.TryAcquire() {
				return errors.New("TryAcquire failed")
			}
			return nil
		}, 2, 0},
		{"release", func() error { limiter.Release(); return nil }, 1, 1},
		{"release again", func() error { limiter.Release(); return nil }, 0, 2},
	}
	for _, s := range steps {
		if err := s.op(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if got := limiter.ActiveCount(); got != s.wantActive {
			t.Errorf("%s: ActiveCount = %d, want %d", s.name, got, s.wantActive)
		}
		if got := limiter.Available(); got != s.wantAvailable {
			t.Errorf("%s: Available = %d, want %d", s.name, got, s.wantAvailable)
		}
	}
}

func TestImportLimiterTimesOut(t *testing.T) {
	limiter := NewImportLimiter(1, 100*time.Millisecond)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release()

	start := time.Now()
	err := limiter.Acquire(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTooManyImports) {
		t.Errorf("err = %v, want ErrTooManyImports", err)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("gave up too early: %v", elapsed)
	}
	if got := MapError(err).Code; got != "IMP006" {
		t.Errorf("code = %q, want IMP006", got)
	}
}

func TestImportLimiterTryAcquireDoesNotBlock(t *testing.T) {
	limiter := NewImportLimiter(1, time.Minute)
	if !limiter.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}

	done := make(chan bool, 1)
	go func() { done <- limiter.TryAcquire() }()

	select {
	case ok := <-done:
		if ok {
			t.Error("second TryAcquire should fail")
			limiter.Release()
		}
	case <-time.After(time.Second):
		t.Fatal("TryAcquire blocked")
	}

	limiter.Release()
	if !limiter.TryAcquire() {
		t.Error("TryAcquire after Release should succeed")
	}
	limiter.Release()
}

func TestImportLimiterBoundsConcurrency(t *testing.T) {
	const maxConcurrent = 3
	limiter := NewImportLimiter(maxConcurrent, 5*time.Second)

	var current, peak atomic.Int32
	var g errgroup.Group
	for range 10 {
		g.Go(func() error {
			if err := limiter.Acquire(context.Background()); err != nil {
				return err
			}
			defer limiter.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if got := peak.Load(); got > maxConcurrent {
		t.Errorf("peak concurrency = %d, max %d", got, maxConcurrent)
	}
	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("final ActiveCount = %d, want 0", got)
	}
}

func TestImportLimiterContextCancellation(t *testing.T) {
	limiter := NewImportLimiter(1, 5*time.Second)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- limiter.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Error("Acquire did not return after cancellation")
	}
}

func TestImportLimiterWaitForDrain(t *testing.T) {
	limiter := NewImportLimiter(2, time.Second)
	limiter.Acquire(context.Background())
	limiter.Acquire(context.Background())

	drained := make(chan error, 1)
	go func() { drained <- limiter.WaitForDrain(context.Background()) }()

	limiter.Release()
	select {
	case <-drained:
		t.Fatal("WaitForDrain returned with one import active")
	case <-time.After(150 * time.Millisecond):
	}

	limiter.Release()
	select {
	case err := <-drained:
		if err != nil {
			t.Errorf("WaitForDrain: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("WaitForDrain did not return after all slots were released")
	}
}

func TestImportLimiterWaitForDrainCancelled(t *testing.T) {
	limiter := NewImportLimiter(1, time.Second)
	limiter.Acquire(context.Background())
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestImportLimiterStatus(t *testing.T) {
	limiter := NewImportLimiter(3, time.Second)
	limiter.Acquire(context.Background())
	defer limiter.Release()

	want := ImportLimiterStatus{Active: 1, Available: 2, MaxConcurrent: 3}
	if got := limiter.Status(); got != want {
		t.Errorf("Status = %+v, want %+v", got, want)
	}
}

func TestImportLimiterDefaults(t *testing.T) {
	limiter := NewImportLimiter(0, 0)
	if got := limiter.Status().MaxConcurrent; got != DefaultMaxConcurrentImports {
		t.Errorf("MaxConcurrent = %d, want %d", got, DefaultMaxConcurrentImports)
	}
	if limiter.maxWait != DefaultMaxWaitTime {
		t.Errorf("maxWait = %v, want %v", limiter.maxWait, DefaultMaxWaitTime)
	}
}
