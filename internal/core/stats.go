package core

import "strings"

// Statistics annotates a whole import. It is computed from the full
// dataset and does not change when filters change.
type Statistics struct {
	// UniqueCount is the number of distinct string values in the first
	// column. Empty counts as "".
	UniqueCount int `json:"uniqueCount"`

	// MarkedCount maps every column name to the number of rows whose cell
	// satisfies IsMarked.
	MarkedCount map[string]int `json:"markedCount"`
}

// Marked returns the marked count for column (0 if unknown).
func (s Statistics) Marked(column string) int {
	return s.MarkedCount[column]
}

// IsMarked reports whether a cell reads as a "1" marker. The test is
// textual: the trimmed string form must be exactly "1" or "1.0". Numeric
// cells are compared by how the source formatted them, so 1.00 is not
// marked.
func IsMarked(c Cell) bool {
	switch c.kind {
	case CellEmpty:
		return false
	default:
		s := strings.TrimSpace(c.text)
		return s == "1" || s == "1.0"
	}
}

// ComputeStatistics counts markers per column and distinct first-column values.
// Values are compared as strings, so "1" and "1.0" are distinct.
func ComputeStatistics(ds *Dataset) Statistics {
	stats := Statistics{MarkedCount: make(map[string]int)}
	if ds == nil {
		return stats
	}

	for _, c := range ds.columns {
		stats.MarkedCount[c.Name] = 0
	}
	if len(ds.columns) == 0 {
		return stats
	}

	distinct := make(map[string]struct{})
	for _, row := range ds.rows {
		distinct[row[0].String()] = struct{}{}
		for _, c := range ds.columns {
			if IsMarked(row[c.Index]) {
				stats.MarkedCount[c.Name]++
			}
		}
	}
	stats.UniqueCount = len(distinct)
	return stats
}
