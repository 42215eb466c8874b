package rag

import (
	"context"
	"log/slog"

	"github.com/54b3r/pmrag-go/internal/logging"
)

// DefaultMinCitations is the number of grounded locators the validator tries
// to return, backfilling from retrieval results when too few claims survive.
const DefaultMinCitations = 2

// CitationReport is the outcome of grounding a set of claimed locators.
type CitationReport struct {
	// Validated is the grounded set: surviving claims in claim order, then backfill.
	Validated []int `json:"validated"`
	// Dropped lists claimed locators no retrieved document carries.
	Dropped []int `json:"dropped,omitempty"`
	// Backfilled lists locators taken from the results to reach the minimum.
	Backfilled []int `json:"backfilled,omitempty"`
}

// RetrievedLocators returns the distinct non-zero locators in results, in
// result order.
func RetrievedLocators(results []SearchResult) []int {
	seen := make(map[int]bool, len(results))
	out := make([]int, 0, len(results))
	for _, r := range results {
		if r.Locator <= 0 || seen[r.Locator] {
			continue
		}
		seen[r.Locator] = true
		out = append(out, r.Locator)
	}
	return out
}

// CheckCitations grounds claimed against the locators present in results.
// Claims not present in results are dropped. When fewer than minimum claims
// survive, locators from results are appended in result order until minimum
// is reached or the results are exhausted. Duplicate claims collapse to
// their first occurrence. It never fails; empty inputs yield an empty set.
func CheckCitations(claimed []int, results []SearchResult, minimum int) CitationReport {
	retrieved := RetrievedLocators(results)
	present := make(map[int]bool, len(retrieved))
	for _, loc := range retrieved {
		present[loc] = true
	}

	report := CitationReport{Validated: make([]int, 0, max(len(claimed), minimum))}
	included := make(map[int]bool, len(claimed))
	for _, loc := range claimed {
		if included[loc] {
			continue
		}
		if !present[loc] {
			report.Dropped = append(report.Dropped, loc)
			continue
		}
		included[loc] = true
		report.Validated = append(report.Validated, loc)
	}

	for _, loc := range retrieved {
		if len(report.Validated) >= minimum {
			break
		}
		if included[loc] {
			continue
		}
		included[loc] = true
		report.Validated = append(report.Validated, loc)
		report.Backfilled = append(report.Backfilled, loc)
	}

	return report
}

// ValidateCitations returns the grounded subset of claimed using the default
// minimum, logging any dropped locators at WARN.
func ValidateCitations(ctx context.Context, claimed []int, results []SearchResult) []int {
	report := CheckCitations(claimed, results, DefaultMinCitations)
	logCitationReport(ctx, report)
	return report.Validated
}

// logCitationReport emits the dropped and backfilled sets.
func logCitationReport(ctx context.Context, report CitationReport) {
	log := logging.FromContext(ctx)
	if len(report.Dropped) > 0 {
		log.Warn("citations: dropped ungrounded locators",
			slog.Any("dropped", report.Dropped),
			slog.Int("kept", len(report.Validated)-len(report.Backfilled)),
		)
	}
	if len(report.Backfilled) > 0 {
		log.Debug("citations: backfilled from retrieval results",
			slog.Any("backfilled", report.Backfilled),
		)
	}
}
