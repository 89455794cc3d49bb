package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitAndShutdown(t *testing.T) {
	p := New(2, 10)
	var count atomic.Int32

	for i := 0; i < 5; i++ {
		err := p.Submit(Job{Name: "count", Run: func(context.Context) error {
			count.Add(1)
			return nil
		}})
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	if got := count.Load(); got != 5 {
		t.Fatalf("count = %d, want 5", got)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New(1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	if err := p.Submit(Job{Name: "late", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Shutdown = %v, want ErrClosed", err)
	}
}

func TestQueueFull(t *testing.T) {
	p := New(1, 1)
	blocker := make(chan struct{})
	started := make(chan struct{})
	_ = p.Submit(Job{Name: "block", Run: func(context.Context) error {
		close(started)
		<-blocker
		return nil
	}})
	<-started
	_ = p.Submit(Job{Name: "fill", Run: func(context.Context) error { return nil }})

	if err := p.Submit(Job{Name: "overflow", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit = %v, want ErrQueueFull", err)
	}

	close(blocker)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)
}

func TestFailedJobsCounted(t *testing.T) {
	p := New(1, 4)
	_ = p.Submit(Job{Name: "err", Run: func(context.Context) error { return errors.New("boom") }})
	_ = p.Submit(Job{Name: "panic", Run: func(context.Context) error { panic("boom") }})
	_ = p.Submit(Job{Name: "ok", Run: func(context.Context) error { return nil }})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	if got := p.Failed(); got != 2 {
		t.Fatalf("Failed = %d, want 2", got)
	}
}

func TestShutdownTimeoutCancelsRunningJob(t *testing.T) {
	p := New(1, 1)
	started := make(chan struct{})
	var cancelled atomic.Bool
	_ = p.Submit(Job{Name: "slow", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Shutdown(ctx)

	if !cancelled.Load() {
		t.Fatal("running job did not observe cancellation")
	}
}
