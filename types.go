package dispatch

import (
	"time"
)

// ToolName identifies one of the tools a Plan can select.
type ToolName string

const (
	// ToolCalculator evaluates an arithmetic expression.
	ToolCalculator ToolName = "calculator"
	// ToolPolicyLookup searches policy documents by keyword.
	ToolPolicyLookup ToolName = "policylookup"
	// ToolRetriever ranks knowledge base documents by TF-IDF similarity.
	ToolRetriever ToolName = "retriever"
)

// Plan is the ordered list of tools selected for a query.
type Plan []ToolName

// Stage names a step of a run in the stage log.
type Stage string

const (
	StagePlan      Stage = "plan"
	StageToolCalls Stage = "tool_calls"
	StageCritic    Stage = "critic"
	StageFinal     Stage = "final"
)

// Document is a single knowledge base entry.
type Document struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Text  string `json:"text" yaml:"text"`
}

// ScoredDocument is a Document ranked against a query.
type ScoredDocument struct {
	Document `yaml:",inline"`
	Score    float64 `json:"score" yaml:"score"`
}

// ExecutionOutcome wraps a tool result with execution metadata.
type ExecutionOutcome struct {
	Cached     bool        `json:"cached"`
	Result     interface{} `json:"result"`
	Retries    int         `json:"retries"`
	DurationMS float64     `json:"duration_ms,omitempty"`
}

// RunRecord identifies one Agent.Handle invocation and its answer.
// FinalOutput is nil when no tool produced an answer.
type RunRecord struct {
	ID          string    `json:"id" yaml:"id"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Query       string    `json:"query" yaml:"query"`
	FinalOutput *string   `json:"final_output" yaml:"final_output"`
}

// LogEntry is one stage-tagged record in the stage log. Timestamp is only
// set for the plan and final stages. Entries are never modified once appended.
type LogEntry struct {
	ID        string      `json:"id" yaml:"id"`
	Stage     Stage       `json:"stage" yaml:"stage"`
	Timestamp *time.Time  `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Details   interface{} `json:"details" yaml:"details"`
}

// ToolCall is the details payload of a tool_calls entry. Output holds the
// calculator result string or the policy titles; OutputCount is set for the
// retriever.
type ToolCall struct {
	Tool        ToolName    `json:"tool" yaml:"tool"`
	Input       string      `json:"input" yaml:"input"`
	Output      interface{} `json:"output,omitempty" yaml:"output,omitempty"`
	OutputCount *int        `json:"output_count,omitempty" yaml:"output_count,omitempty"`
	Cached      bool        `json:"cached" yaml:"cached"`
	Retries     int         `json:"retries" yaml:"retries"`
	DurationMS  float64     `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
	Error       string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// CriticReport is the details payload of a critic entry.
type CriticReport struct {
	OK bool `json:"ok" yaml:"ok"`
}
