package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column pairs a spreadsheet column name with its extraction instruction.
// An empty instruction is valid; a missing one is normalized to "".
type Column struct {
	Name        string
	Instruction string
}

// Schema is the ordered column/instruction contract read from the uploaded
// workbook. It is immutable for the lifetime of a session.
type Schema struct {
	columns []Column
}

// New builds a schema from parallel name/instruction slices. Instructions
// shorter than the column list are padded with empty strings.
func New(names, instructions []string) (Schema, error) {
	if len(names) == 0 {
		return Schema{}, fmt.Errorf("schema has no columns")
	}
	seen := make(map[string]bool, len(names))
	cols := make([]Column, 0, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return Schema{}, fmt.Errorf("column %d has a blank name", i+1)
		}
		if seen[name] {
			return Schema{}, fmt.Errorf("duplicate column name %q", name)
		}
		seen[name] = true

		instr := ""
		if i < len(instructions) {
			instr = strings.TrimSpace(instructions[i])
		}
		cols = append(cols, Column{Name: name, Instruction: instr})
	}
	return Schema{columns: cols}, nil
}

// ParseWorkbook reads the column schema from XLSX bytes: row 1 holds column
// names, row 2 holds per-column instructions. Row 2 may be absent or blank.
func ParseWorkbook(b []byte) (Schema, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return Schema{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Schema{}, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Schema{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return Schema{}, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	names := rows[0]
	var instructions []string
	if len(rows) > 1 {
		instructions = rows[1]
	}

	s, err := New(names, instructions)
	if err != nil {
		return Schema{}, fmt.Errorf("sheet %q: %w", sheets[0], err)
	}
	return s, nil
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.columns) }

// Columns returns the columns in schema order.
func (s Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Names returns every column name in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Name
	}
	return out
}

// Instructions returns every instruction in schema order. The slice always
// has the same length as Names.
func (s Schema) Instructions() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Instruction
	}
	return out
}

// Hash fingerprints the schema for change detection across uploads.
func (s Schema) Hash() string {
	h := sha256.New()
	for _, c := range s.columns {
		h.Write([]byte(c.Name))
		h.Write([]byte{0})
		h.Write([]byte(c.Instruction))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
