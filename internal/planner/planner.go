// Package planner selects the tool that should answer a query.
package planner

import (
	"regexp"
	"strings"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
)

var (
	digitPattern    = regexp.MustCompile(`\d`)
	operatorPattern = regexp.MustCompile(`[%+\-*/]`)
)

// DefaultPolicyTerms route a query to the policy lookup.
var DefaultPolicyTerms = []string{"policy", "working hours", "reimbursement"}

// RulePlanner routes queries with fixed rules, first match wins:
// arithmetic goes to the calculator, policy questions to the policy lookup,
// everything else to the retriever.
type RulePlanner struct {
	policyTerms []string
}

// Option configures a RulePlanner.
type Option func(*RulePlanner)

// WithPolicyTerms replaces the phrases that mark a policy question.
func WithPolicyTerms(terms ...string) Option {
	return func(p *RulePlanner) {
		lowered := make([]string, 0, len(terms))
		for _, term := range terms {
			if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
				lowered = append(lowered, term)
			}
		}
		p.policyTerms = lowered
	}
}

// New creates a RulePlanner.
func New(options ...Option) *RulePlanner {
	p := &RulePlanner{policyTerms: DefaultPolicyTerms}
	for _, option := range options {
		option(p)
	}
	return p
}

// Plan returns a single-tool plan for query. It never fails.
func (p *RulePlanner) Plan(query string) dispatch.Plan {
	if digitPattern.MatchString(query) && operatorPattern.MatchString(query) {
		return dispatch.Plan{dispatch.ToolCalculator}
	}

	lowered := strings.ToLower(query)
	for _, term := range p.policyTerms {
		if strings.Contains(lowered, term) {
			return dispatch.Plan{dispatch.ToolPolicyLookup}
		}
	}

	return dispatch.Plan{dispatch.ToolRetriever}
}
