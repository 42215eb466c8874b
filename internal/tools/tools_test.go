package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/54b3r/pmrag-go/internal/rag"
)

// fakeSearcher returns canned results and records the last options.
type fakeSearcher struct {
	results []rag.SearchResult
	err     error
	query   string
	opts    rag.SearchOptions
}

func (f *fakeSearcher) Search(_ context.Context, query string, opts rag.SearchOptions) ([]rag.SearchResult, error) {
	f.query, f.opts = query, opts
	return f.results, f.err
}

func (f *fakeSearcher) ValidateCitations(_ context.Context, claimed []int, results []rag.SearchResult) rag.CitationReport {
	return rag.CheckCitations(claimed, results, rag.DefaultMinCitations)
}

func handbookResults() []rag.SearchResult {
	return []rag.SearchResult{
		{Document: rag.Document{ID: "s11", Title: "Risk Management", Content: "# Risk Management", Kind: rag.KindReferenceSection, Locator: 11}, Score: 0.9},
		{Document: rag.Document{ID: "s1", Title: "Principles", Content: "# Principles", Kind: rag.KindReferenceSection, Locator: 1}, Score: 0.5},
		{Document: rag.Document{ID: "risk_R1", Title: "Vendor delay", Content: "title: Vendor delay", Kind: rag.KindRisk, OwnerScope: "P1"}, Score: 0.4},
	}
}

func TestSearchTool_InvokableRun(t *testing.T) {
	t.Parallel()
	s := &fakeSearcher{results: handbookResults()}
	tool := NewSearchTool(s, 0)

	out, err := tool.InvokableRun(context.Background(), `{"query":"risk mitigation","top_k":3,"kinds":["reference-section"],"owner_scope":"P1"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if s.query != "risk mitigation" || s.opts.TopK != 3 || s.opts.OwnerScope != "P1" ||
		len(s.opts.Kinds) != 1 || s.opts.Kinds[0] != rag.KindReferenceSection {
		t.Errorf("search called with %q %+v", s.query, s.opts)
	}

	var decoded struct {
		Results []searchHit `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(decoded.Results) != 3 || decoded.Results[0].Page != 11 || decoded.Results[2].OwnerScope != "P1" {
		t.Errorf("results = %+v", decoded.Results)
	}
}

func TestSearchTool_TrimsToBudget(t *testing.T) {
	t.Parallel()
	s := &fakeSearcher{results: handbookResults()}
	out, err := NewSearchTool(s, 15).InvokableRun(context.Background(), `{"query":"x"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if strings.Contains(out, "Principles") {
		t.Errorf("lower-ranked result should be trimmed: %s", out)
	}
	if !strings.Contains(out, "Risk Management") {
		t.Errorf("top result missing: %s", out)
	}
}

func TestSearchTool_Errors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		args string
		err  error
	}{
		{"bad json", `{`, nil},
		{"missing query", `{"top_k":2}`, nil},
		{"search failure", `{"query":"q"}`, errors.New("boom")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tool := NewSearchTool(&fakeSearcher{err: tc.err}, 0)
			if _, err := tool.InvokableRun(context.Background(), tc.args); err == nil {
				t.Error("want error")
			}
		})
	}
}

func TestSearchTool_Info(t *testing.T) {
	t.Parallel()
	info, err := NewSearchTool(&fakeSearcher{}, 0).Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "pm_search" || info.ParamsOneOf == nil {
		t.Errorf("info = %+v", info)
	}
}

func TestCitationTool_InvokableRun(t *testing.T) {
	t.Parallel()
	s := &fakeSearcher{results: handbookResults()}
	out, err := NewCitationTool(s).InvokableRun(context.Background(), `{"query":"risk mitigation","claimed":[1,11,999]}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}

	var report rag.CitationReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Validated) != 2 || report.Validated[0] != 1 || report.Validated[1] != 11 {
		t.Errorf("validated = %v, want [1 11]", report.Validated)
	}
	if len(report.Dropped) != 1 || report.Dropped[0] != 999 {
		t.Errorf("dropped = %v, want [999]", report.Dropped)
	}
}

func TestCitationTool_Info(t *testing.T) {
	t.Parallel()
	info, err := NewCitationTool(&fakeSearcher{}).Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "pm_validate_citations" {
		t.Errorf("name = %q", info.Name)
	}
}
