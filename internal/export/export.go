package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/extractor"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/ledger"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/schema"
)

const sheetName = "Extraction"

// ResultWorkbook renders a single extraction table as XLSX bytes: one header
// row in schema order and one value row.
func ResultWorkbook(table extractor.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeTable(f, sheetName, 1, table); err != nil {
		return nil, err
	}
	widenColumns(f, sheetName, len(table.Columns))

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// ConsolidatedWorkbook renders the full lineage: one section per version in
// version order, each with a section header, the schema-ordered columns, and
// the version's values. Error versions render their message instead.
func ConsolidatedWorkbook(fileName string, versions []ledger.VersionInfo, s schema.Schema) ([]byte, error) {
	if len(versions) == 0 {
		return nil, fmt.Errorf("no versions to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	row := 1
	setCell(f, sheetName, 1, row, fmt.Sprintf("Extraction history for %s", fileName))
	row += 2

	for _, v := range versions {
		header := fmt.Sprintf("Version %d (%s) — %s", v.Version, v.Type, v.Status)
		setCell(f, sheetName, 1, row, header)
		row++

		if v.Feedback != "" {
			setCell(f, sheetName, 1, row, "Feedback: "+v.Feedback)
			row++
		}

		var table extractor.Table
		if v.Status == ledger.StatusError {
			table = extractor.Table{
				Columns: []string{"Error"},
				Rows:    [][]string{{v.ErrorMessage}},
				IsError: true,
			}
		} else {
			table = extractor.ToTable(v.Output, s)
		}

		if err := writeTable(f, sheetName, row, table); err != nil {
			return nil, err
		}
		row += 1 + len(table.Rows) + 1 // headers, rows, blank separator
	}

	widenColumns(f, sheetName, s.Len())

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet string, startRow int, table extractor.Table) error {
	for i, h := range table.Columns {
		setCell(f, sheet, i+1, startRow, h)
	}
	for r, values := range table.Rows {
		for c, v := range values {
			setCell(f, sheet, c+1, startRow+1+r, v)
		}
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	_ = f.SetCellValue(sheet, cell, value)
}

func widenColumns(f *excelize.File, sheet string, n int) {
	if n == 0 {
		return
	}
	last, _ := excelize.ColumnNumberToName(n)
	_ = f.SetColWidth(sheet, "A", last, 24)
}
