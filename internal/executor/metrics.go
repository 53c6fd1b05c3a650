package executor

import (
	"sync"
	"time"
)

// RunnerMetrics is a snapshot of the statistics about tool calls made
// through a Runner.
type RunnerMetrics struct {
	Invocations   int           `json:"invocations" yaml:"invocations"`
	CacheHits     int           `json:"cache_hits" yaml:"cache_hits"`
	Successes     int           `json:"successes" yaml:"successes"`
	Failures      int           `json:"failures" yaml:"failures"`
	Timeouts      int           `json:"timeouts" yaml:"timeouts"`
	TotalRetries  int           `json:"total_retries" yaml:"total_retries"`
	TotalDuration time.Duration `json:"total_duration" yaml:"total_duration"`
	LongestCall   time.Duration `json:"longest_call" yaml:"longest_call"`
}

// runnerCounters accumulates RunnerMetrics under a lock.
type runnerCounters struct {
	mu sync.Mutex
	m  RunnerMetrics
}

func (c *runnerCounters) snapshot() RunnerMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m
}

func (c *runnerCounters) recordCall() {
	c.mu.Lock()
	c.m.Invocations++
	c.mu.Unlock()
}

func (c *runnerCounters) recordCacheHit() {
	c.mu.Lock()
	c.m.CacheHits++
	c.mu.Unlock()
}

func (c *runnerCounters) recordAttempt(d time.Duration, timedOut bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m.TotalDuration += d
	if d > c.m.LongestCall {
		c.m.LongestCall = d
	}
	if timedOut {
		c.m.Timeouts++
	}
}

func (c *runnerCounters) recordOutcome(retries int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m.TotalRetries += retries
	if err != nil {
		c.m.Failures++
		return
	}
	c.m.Successes++
}
