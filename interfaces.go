package dispatch

import "context"

// Planner maps a raw query to the tools that should answer it.
type Planner interface {
	Plan(query string) Plan
}

// Tool represents an executable action that can be part of a plan.
type Tool interface {
	// Execute runs the tool against the raw query text.
	Execute(ctx context.Context, input string) (interface{}, error)

	// Schema returns a description of the tool. Standard keys are
	// "name", "description", "parameters", "returns", "examples" and "category".
	Schema() map[string]interface{}

	// Validate checks the input before execution.
	Validate(input string) error

	Name() ToolName
}

// ToolFunc is a unit of work submitted to a ToolRunner. Implementations should
// return promptly once ctx is done.
type ToolFunc func(ctx context.Context, args ...interface{}) (interface{}, error)

// ToolRunner executes tool calls with caching, timeouts and retries.
type ToolRunner interface {
	RunTool(ctx context.Context, toolName ToolName, fn ToolFunc, args ...interface{}) (*ExecutionOutcome, error)
}

// Cache stores tool results by fingerprint. found reports presence, so zero
// values are valid cached results. Errors are reserved for a done context.
type Cache interface {
	Get(ctx context.Context, key string) (value interface{}, found bool, err error)
	Set(ctx context.Context, key string, value interface{}) error
}

// StageLog is the append-only record of run stages.
type StageLog interface {
	Append(entry LogEntry)
	Entries() []LogEntry
}
