package tools

import (
	"math"
	"regexp"
	"sort"
	"strings"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
)

// DefaultTopK is the number of documents Retrieve returns by default.
const DefaultTopK = 3

// termPattern matches runs of two or more word characters.
var termPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Retriever ranks documents by TF-IDF cosine similarity to a query. The
// vocabulary and IDF weights come from the document texts at construction.
type Retriever struct {
	docs    []dispatch.Document
	idf     map[string]float64
	vectors []map[string]float64
}

// NewRetriever indexes docs. Term weights are raw counts scaled by the
// smoothed inverse document frequency ln((1+n)/(1+df)) + 1, and every
// document vector is L2-normalized.
func NewRetriever(docs []dispatch.Document) *Retriever {
	r := &Retriever{
		docs:    docs,
		idf:     make(map[string]float64),
		vectors: make([]map[string]float64, len(docs)),
	}

	counts := make([]map[string]int, len(docs))
	df := make(map[string]int)
	for i, doc := range docs {
		counts[i] = termCounts(doc.Text)
		for term := range counts[i] {
			df[term]++
		}
	}

	n := float64(len(docs))
	for term, freq := range df {
		r.idf[term] = math.Log((1+n)/(1+float64(freq))) + 1
	}
	for i := range docs {
		r.vectors[i] = r.weigh(counts[i])
	}
	return r
}

// Retrieve returns up to k documents with a positive similarity to query,
// best first. Ties keep knowledge base order.
func (r *Retriever) Retrieve(query string, k int) []dispatch.ScoredDocument {
	results := []dispatch.ScoredDocument{}
	if len(r.docs) == 0 || k <= 0 {
		return results
	}

	qv := r.weigh(termCounts(query))
	terms := sortedTerms(qv)
	for i, dv := range r.vectors {
		score := 0.0
		for _, term := range terms {
			score += qv[term] * dv[term]
		}
		if score > 0 {
			results = append(results, dispatch.ScoredDocument{Document: r.docs[i], Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// weigh converts term counts to an L2-normalized TF-IDF vector, ignoring
// terms outside the vocabulary.
func (r *Retriever) weigh(counts map[string]int) map[string]float64 {
	vec := make(map[string]float64, len(counts))
	norm := 0.0
	for _, term := range sortedTerms(counts) {
		idf, ok := r.idf[term]
		if !ok {
			continue
		}
		w := float64(counts[term]) * idf
		vec[term] = w
		norm += w * w
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for term := range vec {
		vec[term] /= norm
	}
	return vec
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, term := range termPattern.FindAllString(strings.ToLower(text), -1) {
		counts[term]++
	}
	return counts
}

// sortedTerms fixes the summation order so equal documents get bit-identical
// scores.
func sortedTerms[V int | float64](m map[string]V) []string {
	terms := make([]string, 0, len(m))
	for term := range m {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
