// Package config loads the dispatch agent configuration.
//
// Configuration comes from a single YAML file layered over Default(). Values
// from the process environment prefixed with DISPATCH_ are applied last, after
// any .env files have been loaded with LoadDotEnv.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/logging"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DISPATCH_"

// Config is the top-level configuration of the dispatch agent.
type Config struct {
	// KnowledgeBase is the path of the knowledge base text file.
	KnowledgeBase string `yaml:"knowledge_base"`

	// LogOutput is where the stage log is dumped after the demo queries.
	// A .yaml or .yml extension selects YAML, anything else JSON.
	LogOutput string `yaml:"log_output"`

	// Listen is the HTTP address used in serve mode.
	Listen string `yaml:"listen"`

	Logging logging.Config  `yaml:"logging"`
	Runtime dispatch.Config `yaml:"runtime"`
	Policy  PolicyConfig    `yaml:"policy"`
}

// PolicyConfig tunes how policy questions are routed and scored.
type PolicyConfig struct {
	// PlannerTerms send a query to the policy lookup.
	PlannerTerms []string `yaml:"planner_terms"`

	// Keywords are counted in documents by the policy lookup.
	Keywords []string `yaml:"keywords"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		KnowledgeBase: "knowledgeBase.txt",
		LogOutput:     "logs.json",
		Listen:        ":8080",
		Logging:       logging.DefaultConfig(),
		Runtime:       dispatch.DefaultConfig(),
	}
}

// Load reads path over Default() and applies environment overrides. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Variables already set win. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errbuilder.GenericErr(fmt.Sprintf("failed to load env file %s", file), err)
		}
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errbuilder.NotFoundErr(fmt.Errorf("config file %s: %w", path, err))
		}
		return errbuilder.GenericErr(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errbuilder.GenericErr(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnv overrides fields from DISPATCH_* variables. lookup has the shape
// of os.LookupEnv.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"KB":           &c.KnowledgeBase,
		"LOGS":         &c.LogOutput,
		"LISTEN":       &c.Listen,
		"LOG_LEVEL":    &c.Logging.Level,
		"LOG_ENCODING": &c.Logging.Encoding,
	}
	ints := map[string]*int{
		"MAX_WORKERS":     &c.Runtime.MaxWorkers,
		"MAX_RETRIES":     &c.Runtime.MaxRetries,
		"RETRIEVER_TOP_K": &c.Runtime.RetrieverTopK,
	}
	durations := map[string]*time.Duration{
		"RETRY_BACKOFF":     &c.Runtime.RetryBackoff,
		"EXECUTION_TIMEOUT": &c.Runtime.ExecutionTimeout,
	}
	bools := map[string]*bool{
		"SKIP_PERMANENT_ERRORS": &c.Runtime.SkipPermanentErrors,
		"CONTAIN_TOOL_FAILURES": &c.Runtime.ContainToolFailures,
		"ENABLE_EVENT_BUS":      &c.Runtime.EnableEventBus,
	}
	lists := map[string]*[]string{
		"POLICY_KEYWORDS":      &c.Policy.Keywords,
		"PLANNER_POLICY_TERMS": &c.Policy.PlannerTerms,
	}

	var errs []error
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*dst = n
		}
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*dst = d
		}
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*dst = b
		}
	}
	for name, dst := range lists {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}

	if len(errs) > 0 {
		return dispatch.NewConfigurationError("invalid environment override", errors.Join(errs...))
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.KnowledgeBase) == "" {
		errs = append(errs, fmt.Errorf("knowledge_base is required"))
	}
	if strings.TrimSpace(c.LogOutput) == "" {
		errs = append(errs, fmt.Errorf("log_output is required"))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Runtime.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
