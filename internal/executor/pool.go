package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// DefaultPoolSize is the number of tool calls that may run at once.
const DefaultPoolSize = 6

const executorStage = "executor"

// Pool runs tool functions on a bounded set of goroutines and enforces a
// deadline on each call.
//
// Cancellation is best-effort: when a call times out its context is
// cancelled, but a function that ignores its context keeps its worker until
// it returns and its result is discarded.
type Pool struct {
	pool   *pool.Pool
	size   int
	logger *zap.Logger

	mu         sync.Mutex
	closed     bool
	submitters sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolSize sets the maximum number of concurrently running calls.
func WithPoolSize(size int) PoolOption {
	return func(p *Pool) {
		if size > 0 {
			p.size = size
		}
	}
}

// WithPoolLogger sets the logger used to report recovered panics.
func WithPoolLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a Pool. It must be released with Close.
func NewPool(options ...PoolOption) *Pool {
	p := &Pool{
		size:   DefaultPoolSize,
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(p)
	}
	p.pool = pool.New().WithMaxGoroutines(p.size)
	return p
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.size
}

type callResult struct {
	value interface{}
	err   error
}

// RunWithTimeout runs fn with args on the pool and blocks until it returns or
// timeout elapses, whichever comes first. Time spent waiting for a free worker
// counts against the timeout. Errors returned by fn are passed through
// unchanged; an expired deadline yields an ErrCodeTimeout error.
func (p *Pool) RunWithTimeout(ctx context.Context, fn dispatch.ToolFunc, args []interface{}, timeout time.Duration) (interface{}, error) {
	if fn == nil {
		return nil, dispatch.NewInternalError(executorStage, "nil tool function", nil)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, dispatch.NewInternalError(executorStage, "pool is closed", nil)
	}
	p.submitters.Add(1)
	p.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult, 1)

	// pool.Go blocks while every worker is busy, so submit from a separate
	// goroutine to keep the deadline in force while queued.
	go func() {
		defer p.submitters.Done()
		p.pool.Go(func() {
			if callCtx.Err() != nil {
				return
			}
			value, err := p.invoke(callCtx, fn, args)
			done <- callResult{value: value, err: err}
		})
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, dispatch.NewCancelledError(executorStage, ctx.Err())
		}
		return nil, dispatch.NewTimeoutError(executorStage, fmt.Errorf("no result within %v: %w", timeout, callCtx.Err()))
	}
}

func (p *Pool) invoke(ctx context.Context, fn dispatch.ToolFunc, args []interface{}) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("tool function panicked", zap.Any("panic", r))
			err = dispatch.NewInternalError(executorStage, fmt.Sprintf("tool function panicked: %v", r), nil)
		}
	}()
	return fn(ctx, args...)
}

// Close stops accepting calls and waits for running calls to return.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.submitters.Wait()
	p.pool.Wait()
}
