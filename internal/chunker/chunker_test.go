package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/54b3r/pmrag-go/internal/rag"
)

func Test_ChunkRecord_FormatsFieldsInKindOrder(t *testing.T) {
	t.Parallel()
	c := New(0, nil)

	doc, err := c.ChunkRecord(rag.Record{
		ID:         "7",
		Kind:       rag.KindRisk,
		OwnerScope: "P1",
		Fields: map[string]string{
			"mitigation_plan": "dual-source the part",
			"title":           "Vendor delay",
			"level":           "high",
			"owner":           "alice",
			"created_at":      "2024-01-01",
		},
	})
	if err != nil {
		t.Fatalf("ChunkRecord: %v", err)
	}
	if doc.ID != "risk_7" {
		t.Errorf("ID = %q, want risk_7", doc.ID)
	}
	if doc.Title != "Vendor delay" {
		t.Errorf("Title = %q, want Vendor delay", doc.Title)
	}
	want := "title: Vendor delay\nlevel: high\nowner: alice\nmitigation plan: dual-source the part"
	if doc.Content != want {
		t.Errorf("Content =\n%s\nwant\n%s", doc.Content, want)
	}
	if doc.OwnerScope != "P1" || doc.Kind != rag.KindRisk {
		t.Errorf("scope/kind = %q/%q", doc.OwnerScope, doc.Kind)
	}
	if doc.Attributes["record_id"] != "7" || doc.Attributes["created_at"] != "2024-01-01" {
		t.Errorf("attributes not carried: %v", doc.Attributes)
	}
}

func Test_ChunkRecord_TextWinsOverFields(t *testing.T) {
	t.Parallel()
	doc, err := New(0, nil).ChunkRecord(rag.Record{
		ID:     "1",
		Kind:   rag.KindTask,
		Text:   "  write the report  ",
		Fields: map[string]string{"name": "Report"},
	})
	if err != nil {
		t.Fatalf("ChunkRecord: %v", err)
	}
	if doc.Content != "write the report" {
		t.Errorf("Content = %q", doc.Content)
	}
	if doc.Title != "Report" {
		t.Errorf("Title = %q, want Report", doc.Title)
	}
}

func Test_ChunkRecord_Errors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		rec    rag.Record
		reason string
	}{
		{"missing id", rag.Record{Kind: rag.KindTask, Text: "x"}, "missing id"},
		{"missing kind", rag.Record{ID: "1", Text: "x"}, "missing kind"},
		{"no text", rag.Record{ID: "1", Kind: rag.KindIssue, Fields: map[string]string{"title": "  "}}, "no text to index"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(0, nil).ChunkRecord(tc.rec)
			var ce *rag.ChunkError
			if !errors.As(err, &ce) {
				t.Fatalf("want *rag.ChunkError, got %v", err)
			}
			if ce.Reason != tc.reason {
				t.Errorf("Reason = %q, want %q", ce.Reason, tc.reason)
			}
		})
	}
}

func Test_ChunkRecord_TruncatesContentOnly(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("é", 50)
	doc, err := New(10, nil).ChunkRecord(rag.Record{ID: "9", Kind: rag.KindProject, Title: "Big", Text: long})
	if err != nil {
		t.Fatalf("ChunkRecord: %v", err)
	}
	if n := utf8.RuneCountInString(doc.Content); n != 10 {
		t.Errorf("content runes = %d, want 10", n)
	}
	if doc.ID != "project_9" || doc.Title != "Big" {
		t.Errorf("identity changed by truncation: %q %q", doc.ID, doc.Title)
	}
}

func Test_Truncate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in    string
		limit int
		want  string
		cut   bool
	}{
		{"", 5, "", false},
		{"abc", 5, "abc", false},
		{"abcde", 5, "abcde", false},
		{"abcdef", 5, "abcde", true},
		{"ééé", 2, "éé", true},
		{"ééé", 3, "ééé", false},
		{"abc", 0, "abc", false},
	}
	for _, tc := range cases {
		got, cut := Truncate(tc.in, tc.limit)
		if got != tc.want || cut != tc.cut {
			t.Errorf("Truncate(%q, %d) = %q, %v; want %q, %v", tc.in, tc.limit, got, cut, tc.want, tc.cut)
		}
	}
}

func Test_FormatFields_UnknownKindSortsFields(t *testing.T) {
	t.Parallel()
	got := FormatFields("milestone", map[string]string{"zeta": "z", "alpha": "a", "empty": ""})
	if got != "alpha: a\nzeta: z" {
		t.Errorf("FormatFields = %q", got)
	}
}

func Test_ChunkReferenceDocument_AssignsPagesAndStableIDs(t *testing.T) {
	t.Parallel()
	text := "Handbook v2\n\n# Principles\nDeliver value early\n\n\n# Risk Management\nEvery risk needs an owner\n"
	pages := PageIndex{
		1:  {"Principles", "Deliver value early and often"},
		11: {"Risk Management", "Every risk needs an owner"},
	}

	c := New(0, nil)
	docs := c.ChunkReferenceDocument("handbook", text, pages)
	if len(docs) != 3 {
		t.Fatalf("want 3 sections, got %d", len(docs))
	}

	wantTitles := []string{PreambleTitle, "Principles", "Risk Management"}
	for i, d := range docs {
		if d.Title != wantTitles[i] {
			t.Errorf("docs[%d].Title = %q, want %q", i, d.Title, wantTitles[i])
		}
		if d.Kind != rag.KindReferenceSection {
			t.Errorf("docs[%d].Kind = %q", i, d.Kind)
		}
	}
	if docs[1].Locator != 1 {
		t.Errorf("Principles locator = %d, want 1", docs[1].Locator)
	}
	if docs[2].Locator != 11 {
		t.Errorf("Risk Management locator = %d, want 11", docs[2].Locator)
	}

	again := c.ChunkReferenceDocument("handbook", text, pages)
	for i := range docs {
		if docs[i].ID != again[i].ID {
			t.Errorf("section %d ID not stable: %q vs %q", i, docs[i].ID, again[i].ID)
		}
	}
	if docs[0].ID == docs[1].ID {
		t.Error("sections share an ID")
	}
}

func Test_ChunkReferenceDocument_NoPages(t *testing.T) {
	t.Parallel()
	docs := New(0, nil).ChunkReferenceDocument("doc", "# Only\nbody", nil)
	if len(docs) != 1 {
		t.Fatalf("want 1 section, got %d", len(docs))
	}
	if docs[0].Locator != 0 {
		t.Errorf("Locator = %d, want 0 without a page index", docs[0].Locator)
	}
}
