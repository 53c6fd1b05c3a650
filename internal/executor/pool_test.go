package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
)

func TestPool_RunWithTimeout_Success(t *testing.T) {
	p := NewPool()
	defer p.Close()

	fn := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return args[0].(float64) * 2, nil
	}

	got, err := p.RunWithTimeout(context.Background(), fn, []interface{}{21.0}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42.0 {
		t.Errorf("expected 42, got %v", got)
	}
}

func TestPool_RunWithTimeout_ErrorPassthrough(t *testing.T) {
	p := NewPool()
	defer p.Close()

	sentinel := errors.New("boom")
	fn := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, sentinel
	}

	_, err := p.RunWithTimeout(context.Background(), fn, nil, time.Second)
	if err != sentinel {
		t.Errorf("expected sentinel error unchanged, got %v", err)
	}
}

func TestPool_RunWithTimeout_Timeout(t *testing.T) {
	p := NewPool()
	defer p.Close()

	fn := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	start := time.Now()
	_, err := p.RunWithTimeout(context.Background(), fn, nil, 30*time.Millisecond)
	elapsed := time.Since(start)

	if !dispatch.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed < 30*time.Millisecond {
		t.Errorf("returned before the deadline: %v", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestPool_RunWithTimeout_QueueTimeCounts(t *testing.T) {
	p := NewPool(WithPoolSize(1))
	defer p.Close()

	release := make(chan struct{})
	blocker := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		<-release
		return "done", nil
	}
	quick := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return "quick", nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.RunWithTimeout(context.Background(), blocker, nil, time.Second)
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := p.RunWithTimeout(context.Background(), quick, nil, 40*time.Millisecond)
	if !dispatch.IsTimeout(err) {
		t.Errorf("expected queued call to time out, got %v", err)
	}

	close(release)
	wg.Wait()
}

func TestPool_RunWithTimeout_ParentCancelled(t *testing.T) {
	p := NewPool()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	fn := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := p.RunWithTimeout(ctx, fn, nil, time.Second)
	if !dispatch.HasCode(err, dispatch.ErrCodeCancelled) {
		t.Errorf("expected cancelled error, got %v", err)
	}
}

func TestPool_RunWithTimeout_RecoversPanic(t *testing.T) {
	p := NewPool()
	defer p.Close()

	fn := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		panic("tool exploded")
	}

	_, err := p.RunWithTimeout(context.Background(), fn, nil, time.Second)
	if !dispatch.HasCode(err, dispatch.ErrCodeInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	p := NewPool(WithPoolSize(2))
	defer p.Close()

	var running, peak int32
	fn := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.RunWithTimeout(context.Background(), fn, nil, time.Second); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestPool_RunAfterClose(t *testing.T) {
	p := NewPool()
	p.Close()
	p.Close()

	fn := func(ctx context.Context, args ...interface{}) (interface{}, error) {
		return nil, nil
	}
	if _, err := p.RunWithTimeout(context.Background(), fn, nil, time.Second); err == nil {
		t.Error("expected error after Close, got nil")
	}
}
