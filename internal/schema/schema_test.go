package schema

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

func workbookBytes(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	b := workbookBytes(t,
		[]any{"Company Name", "Date", "Total"},
		[]any{"Extract the registered company name", "Format date as YYYY-MM-DD", "Get the invoice's total amount"},
	)

	s, err := ParseWorkbook(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Len() != 3 {
		t.Fatalf("expected 3 columns, got %d", s.Len())
	}

	names := s.Names()
	want := []string{"Company Name", "Date", "Total"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("column %d: expected %q, got %q", i, n, names[i])
		}
	}

	instr := s.Instructions()
	if instr[1] != "Format date as YYYY-MM-DD" {
		t.Errorf("unexpected instruction: %q", instr[1])
	}
}

func TestParseWorkbook_MissingInstructionRow(t *testing.T) {
	b := workbookBytes(t, []any{"Total", "Date"})

	s, err := ParseWorkbook(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	instr := s.Instructions()
	if len(instr) != 2 {
		t.Fatalf("expected instructions padded to column count, got %d", len(instr))
	}
	for i, v := range instr {
		if v != "" {
			t.Errorf("instruction %d: expected empty string, got %q", i, v)
		}
	}
}

func TestParseWorkbook_ShortInstructionRow(t *testing.T) {
	b := workbookBytes(t,
		[]any{"A", "B", "C"},
		[]any{"first only"},
	)

	s, err := ParseWorkbook(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	instr := s.Instructions()
	if len(instr) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(instr))
	}
	if instr[0] != "first only" || instr[1] != "" || instr[2] != "" {
		t.Errorf("unexpected instructions: %v", instr)
	}
}

func TestParseWorkbook_NotAWorkbook(t *testing.T) {
	if _, err := ParseWorkbook([]byte("definitely not xlsx")); err == nil {
		t.Fatal("expected error for invalid workbook bytes")
	}
}

func TestNew_DuplicateColumn(t *testing.T) {
	if _, err := New([]string{"Total", "Total"}, nil); err == nil {
		t.Fatal("expected error for duplicate column name")
	}
}

func TestNew_BlankColumn(t *testing.T) {
	if _, err := New([]string{"Total", "  "}, nil); err == nil {
		t.Fatal("expected error for blank column name")
	}
}

func TestNew_Empty(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for empty schema")
	}
}

func TestHash_ChangesWithInstructions(t *testing.T) {
	a, err := New([]string{"Total"}, []string{"invoice total"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := New([]string{"Total"}, []string{"invoice total excluding tax"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.Hash() == b.Hash() {
		t.Error("expected different hashes for different instructions")
	}
	if a.Hash() != a.Hash() {
		t.Error("expected hash to be deterministic")
	}
}
