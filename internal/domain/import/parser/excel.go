package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names that usually hold the table, checked before falling back to the
// first sheet.
var preferredSheets = []string{
	"cbhpm", "tabela", "procedimentos", "planilha1", "sheet1",
}

// ParseXLSX reads the table sheet of an XLSX workbook. Cells stored as numbers
// keep their numeric value; everything else is text.
func ParseXLSX(data []byte, opts ...Option) (*Table, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := findTableSheet(f)
	if sheet == "" {
		return nil, ErrNoSheet
	}

	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	rows := make([]Row, len(records))
	for i, record := range records {
		row := make(Row, len(record))
		for j, v := range record {
			row[j] = excelCell(f, sheet, j+1, i+1, v)
		}
		rows[i] = row
	}

	table := buildTable(records, rows, newOptions(opts))
	table.Format = FormatXLSX
	table.Sheet = sheet
	return table, nil
}

// excelCell types a raw cell value. Numeric cells are written either with
// t="n" or without a type attribute.
func excelCell(f *excelize.File, sheet string, col, row int, raw string) Cell {
	if strings.TrimSpace(raw) == "" {
		return TextCell(raw)
	}

	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return TextCell(raw)
	}
	cellType, err := f.GetCellType(sheet, name)
	if err != nil {
		return TextCell(raw)
	}
	if cellType != excelize.CellTypeNumber && cellType != excelize.CellTypeUnset {
		return TextCell(raw)
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return TextCell(raw)
	}
	return Cell{Text: raw, Number: n, IsNumber: true}
}

func findTableSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ""
	}

	for _, preferred := range preferredSheets {
		for _, sheet := range sheets {
			if strings.EqualFold(strings.TrimSpace(sheet), preferred) {
				return sheet
			}
		}
	}

	return sheets[0]
}
