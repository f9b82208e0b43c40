package session

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// singleColumnWorkbook builds an XLSX with one column name in row 1 and one
// instruction in row 2.
func singleColumnWorkbook(t *testing.T, name, instruction string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetCellValue(sheet, "A1", name); err != nil {
		t.Fatalf("set name: %v", err)
	}
	if err := f.SetCellValue(sheet, "A2", instruction); err != nil {
		t.Fatalf("set instruction: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}
