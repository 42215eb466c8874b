package ingestion

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/54b3r/pmrag-go/internal/rag"
)

// collection describes one array in the records database and how its
// source field names map onto the chunker's normalized fields.
type collection struct {
	// key is the top-level array name.
	key string
	// kind is the record kind produced.
	kind rag.Kind
	// idField holds the record's own ID.
	idField string
	// rename maps source field → normalized field.
	rename map[string]string
}

// collections lists the arrays read from a records database, in index order.
var collections = []collection{
	{key: "projects", kind: rag.KindProject, idField: "project_id", rename: map[string]string{
		"project_name": "name", "project_manager": "manager",
	}},
	{key: "tasks", kind: rag.KindTask, idField: "task_id", rename: map[string]string{
		"task_name": "name",
	}},
	{key: "risks", kind: rag.KindRisk, idField: "risk_id", rename: map[string]string{
		"risk_title": "title", "risk_level": "level",
	}},
	{key: "issues", kind: rag.KindIssue, idField: "issue_id", rename: map[string]string{
		"issue_title": "title",
	}},
}

// ParseRecords reads a records database: a JSON object with optional
// "projects", "tasks", "risks" and "issues" arrays of flat objects.
// Each element becomes one rag.Record whose owner scope is its project_id.
// Scalar fields are kept as strings; nested values are kept as raw JSON.
// Elements without an ID are still returned so the engine can count them
// as failed records.
func ParseRecords(data []byte) ([]rag.Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("ingestion: records database is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("ingestion: records database must be a JSON object")
	}

	var records []rag.Record
	for _, c := range collections {
		arr := root.Get(c.key)
		if !arr.Exists() {
			continue
		}
		if !arr.IsArray() {
			return nil, fmt.Errorf("ingestion: %q must be an array", c.key)
		}
		arr.ForEach(func(_, item gjson.Result) bool {
			records = append(records, c.record(item))
			return true
		})
	}
	return records, nil
}

// record converts one collection element.
func (c collection) record(item gjson.Result) rag.Record {
	rec := rag.Record{
		Kind:   c.kind,
		Fields: make(map[string]string),
	}
	item.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		switch key {
		case c.idField, "id":
			if rec.ID == "" {
				rec.ID = v.String()
			}
			return true
		case "project_id":
			rec.OwnerScope = v.String()
			return true
		}
		if name, ok := c.rename[key]; ok {
			key = name
		}
		switch v.Type {
		case gjson.Null:
		case gjson.JSON:
			rec.Fields[key] = v.Raw
		default:
			rec.Fields[key] = v.String()
		}
		return true
	})
	if c.kind == rag.KindProject && rec.OwnerScope == "" {
		rec.OwnerScope = rec.ID
	}
	return rec
}
