// Package budget estimates token cost for retrieval results handed to a
// downstream language model and trims result sets to fit a context window.
// Embedding and chat backends use different tokenizers, so this package uses
// a conservative character-based heuristic: 1 token ≈ 4 characters.
package budget

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pmrag-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// resultOverhead is the per-result framing cost (header line, separators).
	resultOverhead = 8

	// DefaultMaxContextTokens is the default context budget for retrieved
	// material when a caller does not supply one.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// EstimateResult returns the estimated cost of rendering r as context.
func EstimateResult(r rag.SearchResult) int {
	return resultOverhead + Estimate(r.Title) + Estimate(r.Content)
}

// FitResults returns the longest ranked prefix of results whose estimated
// cost fits within maxTokens. Results are ranked best-first, so the weakest
// hits are dropped first. A non-positive maxTokens disables trimming.
func FitResults(results []rag.SearchResult, maxTokens int) []rag.SearchResult {
	if maxTokens <= 0 {
		return results
	}
	used := 0
	for i, r := range results {
		used += EstimateResult(r)
		if used > maxTokens {
			return results[:i]
		}
	}
	return results
}

// ContextMessage renders results as a single system message suitable for
// prepending to a chat request. Reference sections carry their page so the
// model can cite it; the citations it returns should be checked with
// rag.CheckCitations against the same results.
func ContextMessage(results []rag.SearchResult) *schema.Message {
	var b strings.Builder
	b.WriteString("Retrieved project context. Cite reference pages as [p. N] and only pages listed here.\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s (%s", i+1, r.Title, r.Kind)
		if r.Locator > 0 {
			fmt.Fprintf(&b, ", p. %d", r.Locator)
		}
		if r.OwnerScope != "" {
			fmt.Fprintf(&b, ", scope %s", r.OwnerScope)
		}
		b.WriteString(")\n")
		b.WriteString(r.Content)
		b.WriteString("\n")
	}
	return schema.SystemMessage(b.String())
}
