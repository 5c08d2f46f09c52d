// Package retrieval wraps the two semantic-similarity indices that supply
// drafting evidence: company policy snippets and previously resolved
// tickets.
package retrieval

import "context"

// Index names understood by the similarity-search service.
const (
	IndexPolicy         = "policy"
	IndexPreviousRecord = "previous-record"
)

// Snippet is one ranked search result. Distance is non-negative; lower
// means closer.
type Snippet struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

// Confidence derives the display score from the raw distance.
func (s Snippet) Confidence() float64 {
	return 1 / (1 + s.Distance)
}

// Searcher issues one similarity search against a named index. Results are
// a finite snapshot at call time; the index is never mutated.
type Searcher interface {
	Search(ctx context.Context, index, query string, k int) ([]Snippet, error)
}

// Context bundles the evidence retrieved for one issue text.
type Context struct {
	Policy          []Snippet
	PreviousRecords []Snippet
}

// Builder fetches drafting context from both indices.
type Builder struct {
	searcher Searcher
	policyK  int
	recordK  int
}

// NewBuilder constructs the context builder with per-index result counts.
func NewBuilder(searcher Searcher, policyK, recordK int) *Builder {
	if policyK <= 0 {
		policyK = 3
	}
	if recordK <= 0 {
		recordK = 5
	}
	return &Builder{searcher: searcher, policyK: policyK, recordK: recordK}
}

// Build queries both indices for the issue text. An unreachable index
// surfaces as an error; empty results are valid ("no evidence found").
func (b *Builder) Build(ctx context.Context, issue string) (*Context, error) {
	policy, err := b.searcher.Search(ctx, IndexPolicy, issue, b.policyK)
	if err != nil {
		return nil, err
	}
	records, err := b.searcher.Search(ctx, IndexPreviousRecord, issue, b.recordK)
	if err != nil {
		return nil, err
	}
	return &Context{Policy: policy, PreviousRecords: records}, nil
}
