package tools

import (
	"context"
	"fmt"
	"strings"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
)

const (
	maxQueryLength      = 1000
	maxExpressionLength = 200
)

// Settings tune the knowledge base tools.
type Settings struct {
	PolicyKeywords []string
	TopK           int
}

// SetupTools creates the calculator, policy lookup and retriever tools over
// the given knowledge base.
func SetupTools(docs []dispatch.Document, settings Settings) map[dispatch.ToolName]dispatch.Tool {
	policy := NewPolicyLookup(docs, settings.PolicyKeywords...)
	retriever := NewRetriever(docs)
	topK := settings.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	return map[dispatch.ToolName]dispatch.Tool{
		dispatch.ToolCalculator: NewAdapter(
			dispatch.ToolCalculator,
			func(ctx context.Context, input string) (interface{}, error) {
				return Evaluate(input)
			},
			WithDescription("Evaluates an arithmetic expression."),
			WithCategory("Math"),
			WithParameters(map[string]string{
				"input": "Expression using numbers, parentheses and + - * / % ** //; 'N% of M' is accepted",
			}),
			WithReturns("The numeric result as a float."),
			WithExamples([]string{
				"Compute: (125 * 6) - 50",
				"15% of 640",
			}),
			WithValidator(validateExpressionInput),
		),
		dispatch.ToolPolicyLookup: NewAdapter(
			dispatch.ToolPolicyLookup,
			func(ctx context.Context, input string) (interface{}, error) {
				return policy.Lookup(input), nil
			},
			WithDescription("Finds policy documents by keyword."),
			WithCategory("Knowledge"),
			WithParameters(map[string]string{
				"input": "Question mentioning a policy topic such as working hours or reimbursement",
			}),
			WithReturns("Matching documents, best first."),
			WithExamples([]string{
				"What are the official working hours and overtime rules?",
			}),
			WithValidator(validateQueryInput),
		),
		dispatch.ToolRetriever: NewAdapter(
			dispatch.ToolRetriever,
			func(ctx context.Context, input string) (interface{}, error) {
				return retriever.Retrieve(input, topK), nil
			},
			WithDescription("Ranks knowledge base documents by TF-IDF similarity."),
			WithCategory("Knowledge"),
			WithParameters(map[string]string{
				"input": "Free-text question",
			}),
			WithReturns(fmt.Sprintf("Up to %d documents with a positive score, best first.", topK)),
			WithExamples([]string{
				"What does the debugger show that helps isolate failures?",
			}),
			WithValidator(validateQueryInput),
		),
	}
}

// validateQueryInput validates the input for the knowledge base tools.
func validateQueryInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if len(input) > maxQueryLength {
		return fmt.Errorf("query too long (max %d characters)", maxQueryLength)
	}
	return nil
}

// validateExpressionInput validates the input for the calculator.
func validateExpressionInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("expression cannot be empty")
	}
	if len(input) > maxExpressionLength {
		return fmt.Errorf("expression too long (max %d characters)", maxExpressionLength)
	}
	return nil
}
