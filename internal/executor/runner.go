// Package executor runs tool calls on a bounded pool with per-call
// timeouts, result caching and linear-backoff retries.
package executor

import (
	"context"
	"strconv"
	"sync"
	"time"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/eventbus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const eventSource = "runner"

// Runner wraps tool calls with a cache lookup, a per-attempt timeout and a
// bounded number of attempts. It implements dispatch.ToolRunner.
type Runner struct {
	pool  *Pool
	cache dispatch.Cache

	maxRetries    int           // Total attempts per call
	timeout       time.Duration // Per-attempt timeout
	backoff       time.Duration // Base delay; attempt n waits n*backoff
	skipPermanent bool
	inflight      singleflight.Group
	flightsMu     sync.Mutex
	flights       map[string]*flight
	flightSeq     uint64
	metrics       runnerCounters
	eventBus      eventbus.EventBus
	logger        *zap.Logger
}

// RunnerOption represents an option for configuring the Runner.
type RunnerOption func(*Runner)

// WithMaxRetries sets the total number of attempts per call.
func WithMaxRetries(retries int) RunnerOption {
	return func(r *Runner) {
		if retries > 0 {
			r.maxRetries = retries
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithBackoff sets the base retry delay.
func WithBackoff(backoff time.Duration) RunnerOption {
	return func(r *Runner) {
		if backoff >= 0 {
			r.backoff = backoff
		}
	}
}

// WithSkipPermanentErrors stops retrying as soon as an attempt fails with a
// validation error.
func WithSkipPermanentErrors(skip bool) RunnerOption {
	return func(r *Runner) {
		r.skipPermanent = skip
	}
}

// WithEventBus publishes tool call events on bus.
func WithEventBus(bus eventbus.EventBus) RunnerOption {
	return func(r *Runner) {
		r.eventBus = bus
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner that executes on pool and caches into cache.
func NewRunner(pool *Pool, cache dispatch.Cache, options ...RunnerOption) *Runner {
	r := &Runner{
		pool:       pool,
		cache:      cache,
		maxRetries: 2,
		timeout:    4 * time.Second,
		backoff:    200 * time.Millisecond,
		flights:    make(map[string]*flight),
		logger:     zap.NewNop(),
	}

	for _, option := range options {
		option(r)
	}

	return r
}

// Metrics returns a snapshot of the runner statistics.
func (r *Runner) Metrics() RunnerMetrics {
	return r.metrics.snapshot()
}

// RunTool returns the cached result for (toolName, args) or runs fn until it
// succeeds or the attempts are used up. Only successful results are cached.
// Concurrent calls with the same fingerprint share a single execution; a
// caller whose ctx is done returns early without failing the others.
func (r *Runner) RunTool(ctx context.Context, toolName dispatch.ToolName, fn dispatch.ToolFunc, args ...interface{}) (*dispatch.ExecutionOutcome, error) {
	r.metrics.recordCall()

	key, err := Fingerprint(toolName, args)
	if err != nil {
		return nil, err
	}

	if outcome, ok, err := r.lookup(ctx, toolName, key); err != nil || ok {
		return outcome, err
	}

	f := r.join(ctx, key)
	defer r.leave(key, f)

	ch := r.inflight.DoChan(f.id, func() (interface{}, error) {
		// A call that finished while this one waited may have filled the cache.
		if outcome, ok, err := r.lookup(f.ctx, toolName, key); err != nil || ok {
			return outcome, err
		}
		return r.attempt(f.ctx, toolName, key, fn, args)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		outcome := *res.Val.(*dispatch.ExecutionOutcome)
		return &outcome, nil
	case <-ctx.Done():
		return nil, dispatch.NewCancelledError(executorStage, ctx.Err())
	}
}

// flight is the shared execution for one fingerprint. It runs detached from
// any single caller and is cancelled once every caller waiting on it has
// returned.
type flight struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (r *Runner) join(ctx context.Context, key string) *flight {
	r.flightsMu.Lock()
	defer r.flightsMu.Unlock()

	f, ok := r.flights[key]
	if !ok {
		r.flightSeq++
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{
			id:     key + "#" + strconv.FormatUint(r.flightSeq, 10),
			ctx:    flightCtx,
			cancel: cancel,
		}
		r.flights[key] = f
	}
	f.waiters++
	return f
}

func (r *Runner) leave(key string, f *flight) {
	r.flightsMu.Lock()
	defer r.flightsMu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if r.flights[key] == f {
		delete(r.flights, key)
	}
}

func (r *Runner) lookup(ctx context.Context, toolName dispatch.ToolName, key string) (*dispatch.ExecutionOutcome, bool, error) {
	value, found, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil, false, dispatch.NewCancelledError(executorStage, err)
	}
	if !found {
		return nil, false, nil
	}

	r.metrics.recordCacheHit()
	r.logger.Debug("cache hit", zap.String("tool", string(toolName)))
	r.publish(ctx, eventbus.EventCacheHit, toolName, 0, nil)
	return &dispatch.ExecutionOutcome{Cached: true, Result: value, Retries: 0}, true, nil
}

func (r *Runner) attempt(ctx context.Context, toolName dispatch.ToolName, key string, fn dispatch.ToolFunc, args []interface{}) (*dispatch.ExecutionOutcome, error) {
	logger := r.logger.With(zap.String("tool", string(toolName)))

	var lastErr error
	attempts := 0
retryLoop:
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		attempts = attempt
		r.publish(ctx, eventbus.EventToolCallStarted, toolName, attempt, nil)

		start := time.Now()
		value, err := r.pool.RunWithTimeout(ctx, fn, args, r.timeout)
		elapsed := time.Since(start)
		r.metrics.recordAttempt(elapsed, dispatch.IsTimeout(err))

		if err == nil {
			if err := r.cache.Set(ctx, key, value); err != nil {
				logger.Warn("result not cached", zap.Error(err))
			}
			r.metrics.recordOutcome(attempt-1, nil)
			r.publish(ctx, eventbus.EventToolCallSucceeded, toolName, attempt, nil)
			logger.Debug("tool call succeeded", zap.Int("attempt", attempt), zap.Duration("duration", elapsed))
			return &dispatch.ExecutionOutcome{
				Cached:     false,
				Result:     value,
				Retries:    attempt - 1,
				DurationMS: float64(elapsed) / float64(time.Millisecond),
			}, nil
		}

		lastErr = err
		logger.Warn("tool call failed", zap.Int("attempt", attempt), zap.Int("max_retries", r.maxRetries), zap.Error(err))

		if ctx.Err() != nil {
			break
		}
		if r.skipPermanent && dispatch.IsPermanent(err) {
			break
		}
		if attempt == r.maxRetries {
			break
		}

		r.publish(ctx, eventbus.EventToolCallRetry, toolName, attempt, err)
		select {
		case <-ctx.Done():
			lastErr = dispatch.NewCancelledError(executorStage, ctx.Err())
			break retryLoop
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}

	r.metrics.recordOutcome(attempts-1, lastErr)
	r.publish(ctx, eventbus.EventToolCallFailed, toolName, attempts, lastErr)
	return nil, lastErr
}

func (r *Runner) publish(ctx context.Context, eventType eventbus.EventType, toolName dispatch.ToolName, attempt int, err error) {
	if r.eventBus == nil {
		return
	}
	metadata := map[string]interface{}{"attempt": attempt}
	if err != nil {
		metadata["error"] = err.Error()
	}
	event := eventbus.NewEvent(eventType, string(toolName), eventSource, metadata)
	if err := r.eventBus.Publish(ctx, event); err != nil {
		r.logger.Debug("event publish failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
