package tools

import (
	"sort"
	"strings"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
)

// DefaultPolicyKeywords are the phrases PolicyLookup scores documents by.
var DefaultPolicyKeywords = []string{"working hours", "overtime", "reimburse", "reimbursements", "reimbursement"}

// titleBonus is added once when any matched keyword appears in the title.
const titleBonus = 2

// PolicyLookup finds policy documents by keyword frequency.
type PolicyLookup struct {
	docs     []dispatch.Document
	keywords []string
}

// NewPolicyLookup creates a PolicyLookup over docs. Without keywords it uses
// DefaultPolicyKeywords.
func NewPolicyLookup(docs []dispatch.Document, keywords ...string) *PolicyLookup {
	if len(keywords) == 0 {
		keywords = DefaultPolicyKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &PolicyLookup{docs: docs, keywords: lowered}
}

// Lookup returns the documents mentioning the keywords found in query, best
// first. Only keywords present in the query count toward a score; a document
// scores the total number of their occurrences in its title and text, plus
// titleBonus if one of them appears in the title. Documents scoring zero are
// dropped and ties keep knowledge base order.
func (p *PolicyLookup) Lookup(query string) []dispatch.ScoredDocument {
	q := strings.ToLower(query)
	var hits []string
	for _, kw := range p.keywords {
		if strings.Contains(q, kw) {
			hits = append(hits, kw)
		}
	}
	if len(hits) == 0 {
		return []dispatch.ScoredDocument{}
	}

	scored := make([]dispatch.ScoredDocument, 0, len(p.docs))
	for _, doc := range p.docs {
		title := strings.ToLower(doc.Title)
		text := title + " " + strings.ToLower(doc.Text)

		score := 0
		inTitle := false
		for _, kw := range hits {
			score += strings.Count(text, kw)
			if strings.Contains(title, kw) {
				inTitle = true
			}
		}
		if inTitle {
			score += titleBonus
		}
		if score > 0 {
			scored = append(scored, dispatch.ScoredDocument{Document: doc, Score: float64(score)})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}
