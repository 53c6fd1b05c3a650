// Package dispatch routes natural-language queries to one of a small set of
// tools and records every stage of each run.
package dispatch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/dispatch-agent/internal/eventbus"
	"go.uber.org/zap"
)

const eventSource = "agent"

// Agent plans a query, runs the selected tools and appends plan, tool_calls,
// critic and final entries to its stage log.
type Agent struct {
	planner  Planner
	runner   ToolRunner
	tools    map[ToolName]Tool
	stageLog StageLog
	eventBus eventbus.EventBus
	ownsBus  bool
	logger   *zap.Logger

	config Config
}

// Config holds the runtime options for the agent and its execution stack.
type Config struct {
	// Maximum number of concurrently running tool calls
	MaxWorkers int `yaml:"max_workers"`

	// Retry configuration
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Per-attempt timeout, including time spent waiting for a worker
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`

	// Fail fast on validation errors instead of retrying them
	SkipPermanentErrors bool `yaml:"skip_permanent_errors"`

	// Record a failed tool as "no result" instead of failing the run
	ContainToolFailures bool `yaml:"contain_tool_failures"`

	RetrieverTopK int `yaml:"retriever_top_k"`

	// Event bus configuration
	EnableEventBus      bool `yaml:"enable_event_bus"`
	EventBusBufferSize  int  `yaml:"event_bus_buffer_size"`
	EventBusWorkerCount int  `yaml:"event_bus_worker_count"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:          6,
		MaxRetries:          2,
		RetryBackoff:        200 * time.Millisecond,
		ExecutionTimeout:    4 * time.Second,
		SkipPermanentErrors: false,
		ContainToolFailures: false,
		RetrieverTopK:       3,
		EnableEventBus:      false,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 2,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.MaxWorkers < 1:
		return NewConfigurationError("max_workers must be at least 1", nil)
	case c.MaxRetries < 1:
		return NewConfigurationError("max_retries must be at least 1", nil)
	case c.RetryBackoff < 0:
		return NewConfigurationError("retry_backoff must not be negative", nil)
	case c.ExecutionTimeout <= 0:
		return NewConfigurationError("execution_timeout must be positive", nil)
	case c.RetrieverTopK < 1:
		return NewConfigurationError("retriever_top_k must be at least 1", nil)
	case c.EnableEventBus && c.EventBusWorkerCount < 1:
		return NewConfigurationError("event_bus_worker_count must be at least 1", nil)
	}
	return nil
}

// Option is a function that configures an Agent.
type Option func(*Agent)

// WithConfig sets the configuration for the agent.
func WithConfig(config Config) Option {
	return func(a *Agent) {
		a.config = config
	}
}

// WithPlanner sets the planner component.
func WithPlanner(planner Planner) Option {
	return func(a *Agent) {
		a.planner = planner
	}
}

// WithRunner sets the component that executes tool calls.
func WithRunner(runner ToolRunner) Option {
	return func(a *Agent) {
		a.runner = runner
	}
}

// WithTools adds tools to the agent.
func WithTools(tools map[ToolName]Tool) Option {
	return func(a *Agent) {
		for name, tool := range tools {
			a.tools[name] = tool
		}
	}
}

// WithStageLog sets the log that receives stage entries.
func WithStageLog(log StageLog) Option {
	return func(a *Agent) {
		a.stageLog = log
	}
}

// WithEventBus sets the event bus component.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(a *Agent) {
		a.eventBus = bus
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates a new Agent with the provided options.
func New(options ...Option) (*Agent, error) {
	a := &Agent{
		config: DefaultConfig(),
		tools:  make(map[ToolName]Tool),
		logger: zap.NewNop(),
	}

	for _, option := range options {
		option(a)
	}

	if err := a.config.Validate(); err != nil {
		return nil, err
	}

	// Validate required components
	if a.planner == nil {
		return nil, NewConfigurationError("planner is required", nil)
	}
	if a.runner == nil {
		return nil, NewConfigurationError("tool runner is required", nil)
	}
	if a.stageLog == nil {
		return nil, NewConfigurationError("stage log is required", nil)
	}
	if len(a.tools) == 0 {
		return nil, NewConfigurationError("at least one tool is required", nil)
	}

	if a.config.EnableEventBus && a.eventBus == nil {
		a.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(a.config.EventBusBufferSize),
			eventbus.WithWorkerCount(a.config.EventBusWorkerCount),
			eventbus.WithLogger(a.logger),
		)
		a.ownsBus = true
		a.logger.Debug("initialized default channel event bus")
	}

	return a, nil
}

// EventBus returns the bus runs are published on, or nil when disabled.
func (a *Agent) EventBus() eventbus.EventBus {
	return a.eventBus
}

// Close releases the event bus if the agent created it.
func (a *Agent) Close() error {
	if a.ownsBus && a.eventBus != nil {
		return a.eventBus.Close()
	}
	return nil
}

// RunID derives the short run identifier for a query.
func RunID(query string) string {
	sum := sha1.Sum([]byte(query))
	return hex.EncodeToString(sum[:])[:8]
}

// Handle plans the query, runs each planned tool and returns the run record.
// A tool that still fails after retries fails the whole call unless
// ContainToolFailures is set.
func (a *Agent) Handle(ctx context.Context, query string) (*RunRecord, error) {
	runID := RunID(query)
	startedAt := time.Now().UTC()
	logger := a.logger.With(zap.String("run_id", runID))
	a.publish(ctx, eventbus.EventRunStarted, query, runID)

	plan := a.planner.Plan(query)
	a.stageLog.Append(LogEntry{ID: runID, Stage: StagePlan, Timestamp: &startedAt, Details: plan})
	a.publish(ctx, eventbus.EventPlanCreated, plan, runID)
	logger.Debug("plan created", zap.Any("plan", plan))

	var final *string
	for _, name := range plan {
		answer, err := a.runStep(ctx, runID, name, query)
		if err != nil {
			if a.config.ContainToolFailures {
				logger.Warn("tool failed, continuing", zap.String("tool", string(name)), zap.Error(err))
				continue
			}
			logger.Error("run failed", zap.String("tool", string(name)), zap.Error(err))
			a.publish(ctx, eventbus.EventRunFailed, err.Error(), runID)
			return nil, err
		}
		if answer != nil {
			final = answer
		}
	}

	a.stageLog.Append(LogEntry{ID: runID, Stage: StageCritic, Details: CriticReport{OK: final != nil}})

	record := &RunRecord{
		ID:          runID,
		Timestamp:   startedAt,
		Query:       query,
		FinalOutput: final,
	}
	a.stageLog.Append(LogEntry{ID: runID, Stage: StageFinal, Timestamp: &startedAt, Details: *record})
	a.publish(ctx, eventbus.EventRunCompleted, *record, runID)
	logger.Info("run completed", zap.Bool("answered", final != nil), zap.Duration("duration", time.Since(startedAt)))

	return record, nil
}

// runStep executes one planned tool, appends its tool_calls entry and
// returns the answer it produced, if any.
func (a *Agent) runStep(ctx context.Context, runID string, name ToolName, query string) (*string, error) {
	call := ToolCall{Tool: name, Input: query}

	tool, ok := a.tools[name]
	if !ok {
		err := NewToolNotFoundError(string(StageToolCalls), name)
		call.Error = err.Error()
		a.stageLog.Append(LogEntry{ID: runID, Stage: StageToolCalls, Details: call})
		return nil, err
	}

	outcome, err := a.runner.RunTool(ctx, name, func(ctx context.Context, args ...interface{}) (interface{}, error) {
		input, ok := args[0].(string)
		if !ok {
			return nil, NewValidationError(string(StageToolCalls), fmt.Sprintf("unexpected input type %T", args[0]), nil)
		}
		return tool.Execute(ctx, input)
	}, query)
	if err != nil {
		if !IsDispatchError(err) {
			err = NewToolExecutionError(string(StageToolCalls), name, err)
		}
		call.Error = err.Error()
		a.stageLog.Append(LogEntry{ID: runID, Stage: StageToolCalls, Details: call})
		return nil, err
	}

	call.Cached = outcome.Cached
	call.Retries = outcome.Retries
	call.DurationMS = outcome.DurationMS

	answer, err := summarize(name, outcome.Result, &call)
	if err != nil {
		call.Error = err.Error()
		a.stageLog.Append(LogEntry{ID: runID, Stage: StageToolCalls, Details: call})
		return nil, err
	}
	a.stageLog.Append(LogEntry{ID: runID, Stage: StageToolCalls, Details: call})
	return answer, nil
}

// summarize fills the tool-specific output summary of call and extracts the
// answer carried by result.
func summarize(name ToolName, result interface{}, call *ToolCall) (*string, error) {
	switch name {
	case ToolCalculator:
		value, ok := result.(float64)
		if !ok {
			return nil, NewInternalError(string(StageToolCalls), fmt.Sprintf("calculator returned %T", result), nil)
		}
		answer := FormatNumber(value)
		call.Output = answer
		return &answer, nil

	case ToolPolicyLookup, ToolRetriever:
		docs, ok := result.([]ScoredDocument)
		if !ok && result != nil {
			return nil, NewInternalError(string(StageToolCalls), fmt.Sprintf("%s returned %T", name, result), nil)
		}
		if name == ToolPolicyLookup {
			titles := make([]string, 0, len(docs))
			for _, doc := range docs {
				titles = append(titles, doc.Title)
			}
			call.Output = titles
		} else {
			count := len(docs)
			call.OutputCount = &count
		}
		if len(docs) == 0 {
			return nil, nil
		}
		answer := docs[0].Text
		return &answer, nil
	}

	// Tools outside the built-in set report their result as text.
	answer := fmt.Sprint(result)
	call.Output = answer
	return &answer, nil
}

// FormatNumber renders a calculator result in its shortest exact form.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (a *Agent) publish(ctx context.Context, eventType eventbus.EventType, payload interface{}, runID string) {
	if a.eventBus == nil {
		return
	}
	event := eventbus.NewEvent(eventType, payload, eventSource, map[string]interface{}{"run_id": runID})
	if err := a.eventBus.Publish(ctx, event); err != nil {
		a.logger.Debug("event publish failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
