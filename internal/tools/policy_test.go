package tools

import (
	"testing"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func policyDocs() []dispatch.Document {
	return []dispatch.Document{
		{ID: "DOC-1", Title: "Company Policy: Working Hours", Text: "Standard working hours are 9am to 6pm. Overtime must be approved in advance."},
		{ID: "DOC-2", Title: "Reimbursement Policy", Text: "Expenses are reimbursed within 14 days after approval."},
		{ID: "DOC-3", Title: "Team Handbook", Text: "Overtime is tracked in the HR portal."},
		{ID: "DOC-4", Title: "Product Overview", Text: "The debugger shows every step of a run."},
	}
}

func TestPolicyLookup_WorkingHours(t *testing.T) {
	lookup := NewPolicyLookup(policyDocs())

	results := lookup.Lookup("What are the official working hours and overtime rules?")
	require.Len(t, results, 2)

	assert.Equal(t, "DOC-1", results[0].ID)
	// Two "working hours", one "overtime", plus the title bonus.
	assert.EqualValues(t, 5, results[0].Score)
	assert.Equal(t, "DOC-3", results[1].ID)
	assert.EqualValues(t, 1, results[1].Score)
}

func TestPolicyLookup_OverlappingKeywords(t *testing.T) {
	lookup := NewPolicyLookup(policyDocs())

	results := lookup.Lookup("How do reimbursements work?")
	require.Len(t, results, 1)
	assert.Equal(t, "DOC-2", results[0].ID)
	// "reimburse" twice, "reimbursement" once, plus the title bonus.
	assert.EqualValues(t, 5, results[0].Score)
}

func TestPolicyLookup_NoKeywordInQuery(t *testing.T) {
	lookup := NewPolicyLookup(policyDocs())

	results := lookup.Lookup("Tell me about the company policy")
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestPolicyLookup_StableTies(t *testing.T) {
	docs := []dispatch.Document{
		{ID: "DOC-7", Title: "B", Text: "overtime"},
		{ID: "DOC-8", Title: "A", Text: "overtime"},
		{ID: "DOC-9", Title: "C", Text: "overtime"},
	}
	results := NewPolicyLookup(docs).Lookup("overtime?")
	require.Len(t, results, 3)
	assert.Equal(t, []string{"DOC-7", "DOC-8", "DOC-9"}, []string{results[0].ID, results[1].ID, results[2].ID})
}

func TestPolicyLookup_CustomKeywords(t *testing.T) {
	lookup := NewPolicyLookup(policyDocs(), " Debugger ")

	results := lookup.Lookup("what does the debugger do")
	require.Len(t, results, 1)
	assert.Equal(t, "DOC-4", results[0].ID)

	assert.Empty(t, lookup.Lookup("working hours"))
}

func TestPolicyLookup_EmptyKnowledgeBase(t *testing.T) {
	assert.Empty(t, NewPolicyLookup(nil).Lookup("working hours"))
}
