package extractor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/schema"
)

// Table is the displayable/exportable projection of an extraction result.
// A well-formed table has exactly the schema's columns in schema order; a
// parse failure collapses to a single Error column so callers always have
// something to render.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	IsError bool       `json:"is_error"`
}

// ToTable normalizes raw model output against the schema. Missing columns
// become empty strings, extraneous keys are dropped, and key order in the
// output never matters. Invalid JSON yields an error table, never a panic.
func ToTable(raw string, s schema.Schema) Table {
	cleaned := stripFences(raw)

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Table{
			Columns: []string{"Error"},
			Rows:    [][]string{{fmt.Sprintf("extraction output is not a JSON object: %v", err)}},
			IsError: true,
		}
	}

	row := make([]string, s.Len())
	for i, name := range s.Names() {
		v, ok := parsed[name]
		if !ok {
			row[i] = ""
			continue
		}
		row[i] = cellValue(v)
	}

	return Table{
		Columns: s.Names(),
		Rows:    [][]string{row},
	}
}

// cellValue renders a JSON value for a cell: strings verbatim, null as empty,
// everything else as compact JSON.
func cellValue(v json.RawMessage) string {
	var str string
	if err := json.Unmarshal(v, &str); err == nil {
		return str
	}
	trimmed := strings.TrimSpace(string(v))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

// stripFences removes a surrounding markdown code fence if the model wrapped
// its JSON in one.
func stripFences(raw string) string {
	out := strings.TrimSpace(raw)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}
