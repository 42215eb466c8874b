package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pmrag-go/internal/rag"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	}
	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

// result builds a search result whose content costs n tokens.
func result(id string, n int) rag.SearchResult {
	return rag.SearchResult{Document: rag.Document{ID: id, Content: strings.Repeat("x", 4*n)}}
}

func Test_FitResults(t *testing.T) {
	t.Parallel()
	results := []rag.SearchResult{result("a", 10), result("b", 10), result("c", 10)}
	// Each result costs resultOverhead + 10 = 18.

	cases := []struct {
		name      string
		maxTokens int
		want      int
	}{
		{"disabled", 0, 3},
		{"all fit", 100, 3},
		{"exact two", 36, 2},
		{"one", 20, 1},
		{"none", 5, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FitResults(results, tc.maxTokens)
			if len(got) != tc.want {
				t.Fatalf("FitResults(%d): got %d results, want %d", tc.maxTokens, len(got), tc.want)
			}
			for i := range got {
				if got[i].ID != results[i].ID {
					t.Errorf("result %d = %s, want ranked prefix", i, got[i].ID)
				}
			}
		})
	}
}

func Test_ContextMessage(t *testing.T) {
	t.Parallel()
	results := []rag.SearchResult{
		{Document: rag.Document{ID: "s", Title: "Risk Management", Content: "# Risk Management\nmitigate", Kind: rag.KindReferenceSection, Locator: 11}},
		{Document: rag.Document{ID: "r", Title: "Vendor delay", Content: "title: Vendor delay", Kind: rag.KindRisk, OwnerScope: "P1"}},
	}
	msg := ContextMessage(results)
	if msg.Role != schema.System {
		t.Errorf("role = %s, want system", msg.Role)
	}
	for _, want := range []string{"[1] Risk Management (reference-section, p. 11)", "[2] Vendor delay (risk, scope P1)", "mitigate"} {
		if !strings.Contains(msg.Content, want) {
			t.Errorf("context message missing %q:\n%s", want, msg.Content)
		}
	}
}
