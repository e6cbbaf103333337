package core

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// readXLSX reads the first worksheet of an OOXML workbook.
func readXLSX(ctx context.Context, r io.Reader, progress ProgressFunc) (string, *rawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", &rawTable{}, nil
	}
	sheet := sheets[0]

	records, err := f.GetRows(sheet)
	if err != nil {
		return sheet, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(records) == 0 {
		return sheet, &rawTable{}, nil
	}

	table := &rawTable{header: records[0], width: usedWidth(records[0])}
	table.rows = make([]Row, 0, len(records)-1)

	for i, record := range records[1:] {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return sheet, nil, err
			}
			progress(i, 0)
		}

		if w := usedWidth(record); w > table.width {
			table.width = w
		}

		rowNum := i + 2 // 1-indexed, after header
		row := make(Row, len(record))
		for col, formatted := range record {
			cell, err := xlsxCell(f, sheet, col+1, rowNum, formatted)
			if err != nil {
				return sheet, nil, err
			}
			row[col] = cell
		}
		table.rows = append(table.rows, row)
	}
	progress(len(table.rows), 0)

	return sheet, table, nil
}

// xlsxCell converts one worksheet cell using its native type. Numeric
// cells keep the formatted text the workbook displays.
func xlsxCell(f *excelize.File, sheet string, col, row int, formatted string) (Cell, error) {
	if formatted == "" {
		return Empty(), nil
	}

	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return Cell{}, err
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return Cell{}, fmt.Errorf("cell %s: %w", axis, err)
	}

	switch typ {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		raw, err := f.GetCellValue(sheet, axis, excelize.Options{RawCellValue: true})
		if err != nil {
			return Cell{}, fmt.Errorf("cell %s: %w", axis, err)
		}
		if v, perr := strconv.ParseFloat(strings.TrimSpace(raw), 64); perr == nil {
			return Number(v, formatted), nil
		}
		return Text(formatted), nil
	default:
		return Text(formatted), nil
	}
}
