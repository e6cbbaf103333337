package core

import (
	"fmt"
	"strings"
	"time"
)

// Column is a named position in a Dataset.
type Column struct {
	Name  string
	Index int
}

// Row holds one cell per dataset column, in column order.
type Row []Cell

// DatasetInfo describes where a Dataset came from.
type DatasetInfo struct {
	SourcePath string
	Sheet      string // Worksheet name; empty for CSV sources
	ImportedAt time.Time
}

// Dataset is an imported table. It is never mutated after construction;
// filtering produces a View instead.
type Dataset struct {
	info    DatasetInfo
	columns []Column
	index   map[string]int
	rows    []Row
}

// NewDataset builds a Dataset from header names and raw rows.
//
// Header names are trimmed and must be non-empty and unique. Rows shorter
// than the header are padded with Empty cells; rows wider than the header
// are rejected because their extra cells would have no column.
func NewDataset(info DatasetInfo, header []string, rows []Row) (*Dataset, error) {
	if len(header) == 0 {
		return nil, &ImportError{Kind: ErrEmptyWorkbook, Path: info.SourcePath, Detail: "no header row"}
	}

	columns := make([]Column, len(header))
	index := make(map[string]int, len(header))
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, &ImportError{
				Kind:   ErrMalformedHeader,
				Path:   info.SourcePath,
				Detail: fmt.Sprintf("column %d has an empty name", i+1),
			}
		}
		if prev, dup := index[name]; dup {
			return nil, &ImportError{
				Kind:   ErrMalformedHeader,
				Path:   info.SourcePath,
				Detail: fmt.Sprintf("duplicate column %q at positions %d and %d", name, prev+1, i+1),
			}
		}
		index[name] = i
		columns[i] = Column{Name: name, Index: i}
	}

	normalized := make([]Row, len(rows))
	for i, row := range rows {
		if len(row) > len(columns) {
			return nil, &ImportError{
				Kind:   ErrMalformedHeader,
				Path:   info.SourcePath,
				Detail: fmt.Sprintf("row %d has %d cells but the header has %d columns", i+2, len(row), len(columns)),
			}
		}
		if len(row) == len(columns) {
			normalized[i] = row
			continue
		}
		padded := make(Row, len(columns))
		copy(padded, row)
		normalized[i] = padded
	}

	return &Dataset{
		info:    info,
		columns: columns,
		index:   index,
		rows:    normalized,
	}, nil
}

// Info returns the dataset's source metadata.
func (d *Dataset) Info() DatasetInfo { return d.info }

// Columns returns a copy of the columns in display order.
func (d *Dataset) Columns() []Column {
	out := make([]Column, len(d.columns))
	copy(out, d.columns)
	return out
}

// ColumnNames returns column names in display order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// ColumnCount returns the number of columns.
func (d *Dataset) ColumnCount() int { return len(d.columns) }

// RowCount returns the number of data rows (header excluded).
func (d *Dataset) RowCount() int { return len(d.rows) }

// Column looks up a column by exact name.
func (d *Dataset) Column(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.columns[i], true
}

// HasColumn reports whether name is a column of the dataset.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Row returns the i-th row. Callers must not modify the returned slice.
func (d *Dataset) Row(i int) Row { return d.rows[i] }

// Rows returns the rows in import order. Callers must not modify them.
func (d *Dataset) Rows() []Row { return d.rows }

// Cell returns the value of column name in row i.
func (d *Dataset) Cell(i int, name string) (Cell, bool) {
	col, ok := d.index[name]
	if !ok || i < 0 || i >= len(d.rows) {
		return Cell{}, false
	}
	return d.rows[i][col], true
}
