// Package di wires the dispatch agent and its execution stack from
// configuration.
package di

import (
	"fmt"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/cache"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/config"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/eventbus"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/executor"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/kb"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/logging"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/planner"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/runlog"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/tools"
	"go.uber.org/zap"
)

// Container owns every long-lived component. The pool and event bus are
// shared by all runs and released by Close.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Documents []dispatch.Document
	Tools     map[dispatch.ToolName]dispatch.Tool
	Planner   *planner.RulePlanner
	Cache     *cache.Store
	Pool      *executor.Pool
	Runner    *executor.Runner
	EventBus  eventbus.EventBus
	StageLog  *runlog.Log
	Agent     *dispatch.Agent
}

// Option customizes container construction.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	documents []dispatch.Document
	haveDocs  bool
}

// WithLogger uses logger instead of building one from the config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDocuments uses docs instead of loading the configured knowledge base.
func WithDocuments(docs []dispatch.Document) Option {
	return func(o *options) {
		o.documents = docs
		o.haveDocs = true
	}
}

// NewContainer builds the agent described by cfg.
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, dispatch.NewConfigurationError("config is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, dispatch.NewConfigurationError("invalid configuration", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		var err error
		log, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, dispatch.NewConfigurationError("failed to create logger", err)
		}
	}

	docs := o.documents
	if !o.haveDocs {
		var err error
		docs, err = kb.Load(cfg.KnowledgeBase)
		if err != nil {
			return nil, dispatch.NewKnowledgeBaseError(fmt.Sprintf("failed to load %s", cfg.KnowledgeBase), err)
		}
	}
	log.Info("knowledge base loaded", zap.Int("documents", len(docs)))

	c := &Container{
		Config:    cfg,
		Logger:    log,
		Documents: docs,
		Cache:     cache.New(),
		StageLog:  runlog.New(),
	}

	c.Tools = tools.SetupTools(docs, tools.Settings{
		PolicyKeywords: cfg.Policy.Keywords,
		TopK:           cfg.Runtime.RetrieverTopK,
	})

	var plannerOpts []planner.Option
	if len(cfg.Policy.PlannerTerms) > 0 {
		plannerOpts = append(plannerOpts, planner.WithPolicyTerms(cfg.Policy.PlannerTerms...))
	}
	c.Planner = planner.New(plannerOpts...)

	if cfg.Runtime.EnableEventBus {
		c.EventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(cfg.Runtime.EventBusBufferSize),
			eventbus.WithWorkerCount(cfg.Runtime.EventBusWorkerCount),
			eventbus.WithLogger(log.Named("eventbus")),
		)
	}

	c.Pool = executor.NewPool(
		executor.WithPoolSize(cfg.Runtime.MaxWorkers),
		executor.WithPoolLogger(log.Named("pool")),
	)

	runnerOpts := []executor.RunnerOption{
		executor.WithMaxRetries(cfg.Runtime.MaxRetries),
		executor.WithTimeout(cfg.Runtime.ExecutionTimeout),
		executor.WithBackoff(cfg.Runtime.RetryBackoff),
		executor.WithSkipPermanentErrors(cfg.Runtime.SkipPermanentErrors),
		executor.WithLogger(log.Named("runner")),
	}
	if c.EventBus != nil {
		runnerOpts = append(runnerOpts, executor.WithEventBus(c.EventBus))
	}
	c.Runner = executor.NewRunner(c.Pool, c.Cache, runnerOpts...)

	agentOpts := []dispatch.Option{
		dispatch.WithConfig(cfg.Runtime),
		dispatch.WithPlanner(c.Planner),
		dispatch.WithRunner(c.Runner),
		dispatch.WithTools(c.Tools),
		dispatch.WithStageLog(c.StageLog),
		dispatch.WithLogger(log.Named("agent")),
	}
	if c.EventBus != nil {
		agentOpts = append(agentOpts, dispatch.WithEventBus(c.EventBus))
	}

	agent, err := dispatch.New(agentOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Agent = agent

	return c, nil
}

// Close stops the event bus and the worker pool.
func (c *Container) Close() {
	if c.Agent != nil {
		if err := c.Agent.Close(); err != nil {
			c.Logger.Warn("failed to close agent", zap.Error(err))
		}
	}
	if c.EventBus != nil {
		if err := c.EventBus.Close(); err != nil {
			c.Logger.Warn("failed to close event bus", zap.Error(err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	_ = c.Logger.Sync()
}
