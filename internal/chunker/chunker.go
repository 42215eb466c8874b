// Package chunker converts raw inputs into rag.Documents: long reference
// documents are split into heading-delimited sections, and structured
// project records are flattened into one "field: value" block each.
// Content longer than the embedding input limit is truncated, never rejected.
package chunker

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/pmrag-go/internal/rag"
)

const (
	// DefaultMaxChars is the embedding provider's input limit in characters.
	DefaultMaxChars = 8192

	// PreambleTitle labels the text that precedes the first heading.
	PreambleTitle = "preamble"
)

// recordFields lists, per record kind, the fields rendered into content and
// their order.
var recordFields = map[rag.Kind][]string{
	rag.KindProject: {"name", "description", "status", "manager"},
	rag.KindTask:    {"name", "description", "status", "assigned_to", "priority"},
	rag.KindRisk:    {"title", "description", "level", "owner", "mitigation_plan"},
	rag.KindIssue:   {"title", "description", "severity", "assigned_to", "resolution"},
}

// Chunker turns records and reference documents into Documents.
// It is stateless apart from its configuration and safe for concurrent use.
type Chunker struct {
	// maxChars bounds Document.Content in runes.
	maxChars int

	// log receives truncation warnings.
	log *slog.Logger
}

var _ rag.RecordChunker = (*Chunker)(nil)

// New constructs a Chunker. maxChars <= 0 selects DefaultMaxChars; a nil
// log selects slog.Default().
func New(maxChars int, log *slog.Logger) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if log == nil {
		log = slog.Default()
	}
	return &Chunker{maxChars: maxChars, log: log}
}

// MaxChars returns the content bound.
func (c *Chunker) MaxChars() int { return c.maxChars }

// ChunkRecord formats rec into a single Document with ID "{kind}_{id}".
// Pre-formatted rec.Text wins over Fields. It returns a *rag.ChunkError
// when the record has no identity or no text can be produced.
func (c *Chunker) ChunkRecord(rec rag.Record) (rag.Document, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return rag.Document{}, &rag.ChunkError{RecordID: rec.ID, Kind: rec.Kind, Reason: "missing id"}
	}
	if rec.Kind == "" {
		return rag.Document{}, &rag.ChunkError{RecordID: rec.ID, Kind: rec.Kind, Reason: "missing kind"}
	}

	content := strings.TrimSpace(rec.Text)
	if content == "" {
		content = FormatFields(rec.Kind, rec.Fields)
	}
	if content == "" {
		return rag.Document{}, &rag.ChunkError{RecordID: rec.ID, Kind: rec.Kind, Reason: "no text to index"}
	}

	id := RecordID(rec.Kind, rec.ID)
	attrs := maps.Clone(rec.Fields)
	if attrs == nil {
		attrs = make(map[string]string, len(rec.Attributes)+1)
	}
	maps.Copy(attrs, rec.Attributes)
	attrs["record_id"] = rec.ID

	return rag.Document{
		ID:         id,
		Title:      recordTitle(rec),
		Content:    c.truncate(id, content),
		Kind:       rec.Kind,
		OwnerScope: rec.OwnerScope,
		Attributes: attrs,
		Locator:    rec.Locator,
	}, nil
}

// ChunkReferenceDocument splits text into sections and returns one Document
// per section, in document order. When pages is non-nil each section is
// assigned the best-matching page as its locator. source names the document
// and seeds the chunk IDs, so re-indexing the same source replaces its
// sections in place.
func (c *Chunker) ChunkReferenceDocument(source, text string, pages PageIndex) []rag.Document {
	sections := SplitSections(text)
	docs := make([]rag.Document, 0, len(sections))
	for i, sec := range sections {
		id := chunkID(source, i)
		docs = append(docs, rag.Document{
			ID:      id,
			Title:   sec.Title,
			Content: c.truncate(id, sec.Content),
			Kind:    rag.KindReferenceSection,
			Attributes: map[string]string{
				"source":        source,
				"section_index": strconv.Itoa(i),
			},
			Locator: pages.Assign(sec.Content),
		})
	}
	return docs
}

// truncate bounds content to maxChars runes, logging when it cuts.
func (c *Chunker) truncate(id, content string) string {
	out, cut := Truncate(content, c.maxChars)
	if cut {
		c.log.Warn("chunker: content truncated",
			slog.String("id", id),
			slog.Int("chars", utf8.RuneCountInString(content)),
			slog.Int("max_chars", c.maxChars),
		)
	}
	return out
}

// Truncate returns s cut to at most limit runes and whether it was cut.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// RecordID returns the stable document ID for a record.
func RecordID(kind rag.Kind, id string) string {
	return string(kind) + "_" + id
}

// FormatFields renders fields as "field: value" lines. Record kinds use
// their fixed field order; other kinds render every field sorted by name.
// Empty values are omitted.
func FormatFields(kind rag.Kind, fields map[string]string) string {
	order, ok := recordFields[kind]
	if !ok {
		order = slices.Sorted(maps.Keys(fields))
	}

	var b strings.Builder
	for _, name := range order {
		v := strings.TrimSpace(fields[name])
		if v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ReplaceAll(name, "_", " "))
		b.WriteString(": ")
		b.WriteString(v)
	}
	return b.String()
}

// recordTitle picks the human label for rec.
func recordTitle(rec rag.Record) string {
	if rec.Title != "" {
		return rec.Title
	}
	for _, key := range []string{"name", "title"} {
		if v := strings.TrimSpace(rec.Fields[key]); v != "" {
			return v
		}
	}
	return RecordID(rec.Kind, rec.ID)
}

// chunkID generates a deterministic ID for a section from its source and index.
func chunkID(source string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, index)))
	return fmt.Sprintf("%x", h[:16])
}
