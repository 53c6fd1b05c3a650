// dispatch runs the tool-dispatching agent.
//
// By default it answers a fixed set of demo queries (or the queries given
// as arguments), prints each run record as JSON and dumps the stage log.
// With --serve it exposes the agent over HTTP instead.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZanzyTHEbar/dispatch-agent/internal/api"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/config"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/di"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/eventbus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var demoQueries = []string{
	"What is LLUMO AI's core value proposition?",
	"What does the LLUMO Debugger show that helps isolate failures?",
	"What are the official working hours and overtime rules?",
	"How do reimbursements work and how long do they take after approval?",
	"Compute: (125 * 6) - 50",
	"15% of 640",
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		kbPath     string
		logsPath   string
		logLevel   string
		listen     string
		serve      bool
		verbose    bool
	)

	flagSet := pflag.NewFlagSet("dispatch", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "path to the YAML config file")
	flagSet.StringVar(&kbPath, "kb", "", "knowledge base file (overrides config)")
	flagSet.StringVar(&logsPath, "logs", "", "stage log output, .json or .yaml (overrides config)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	flagSet.StringVar(&listen, "listen", "", "HTTP listen address for --serve (overrides config)")
	flagSet.BoolVar(&serve, "serve", false, "serve the HTTP API instead of running queries")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "print run events as they happen")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dispatch [flags] [query...]\n\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if kbPath != "" {
		cfg.KnowledgeBase = kbPath
	}
	if logsPath != "" {
		cfg.LogOutput = logsPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if verbose {
		cfg.Runtime.EnableEventBus = true
	}

	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if verbose && container.EventBus != nil {
		if _, err := container.EventBus.SubscribeAll(printEvent); err != nil {
			return err
		}
	}

	if serve {
		server := api.NewServer(container.Agent, container.StageLog,
			api.WithMetrics(container.Runner),
			api.WithLogger(container.Logger.Named("api")),
		)
		return server.ListenAndServe(ctx, cfg.Listen)
	}

	queries := flagSet.Args()
	if len(queries) == 0 {
		queries = demoQueries
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	for _, query := range queries {
		record, err := container.Agent.Handle(ctx, query)
		if err != nil {
			container.Logger.Error("query failed", zap.String("query", query), zap.Error(err))
			continue
		}
		if err := out.Encode(record); err != nil {
			return err
		}
	}

	if err := container.StageLog.Dump(cfg.LogOutput); err != nil {
		return err
	}
	container.Logger.Info("stage log written", zap.String("path", cfg.LogOutput), zap.Int("entries", container.StageLog.Len()))
	return nil
}

func printEvent(ctx context.Context, event eventbus.Event) error {
	fmt.Fprintf(os.Stderr, "[%s] %s %v %v\n", event.Source(), event.Type(), event.Payload(), event.Metadata())
	return nil
}
