package core

import (
	"strconv"
	"strings"
)

// CellKind identifies which variant a Cell holds.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
)

// String returns a human-readable name for a cell kind.
func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellText:
		return "text"
	case CellNumber:
		return "number"
	default:
		return "unknown"
	}
}

// Cell is a single imported value: Text, Number or Empty.
//
// Number cells keep the text the source displayed for them, so that
// stringification reflects source formatting ("1" vs "1.0") rather than
// a canonical float rendering.
type Cell struct {
	kind CellKind
	text string
	num  float64
}

// Empty returns the empty cell.
func Empty() Cell {
	return Cell{}
}

// Text returns a text cell.
func Text(s string) Cell {
	return Cell{kind: CellText, text: s}
}

// Number returns a numeric cell. formatted is the value as the source
// displayed it; when blank the shortest float representation is used.
func Number(v float64, formatted string) Cell {
	if formatted == "" {
		formatted = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return Cell{kind: CellNumber, text: formatted, num: v}
}

// Kind reports which variant the cell holds.
func (c Cell) Kind() CellKind { return c.kind }

// IsEmpty reports whether the cell is the Empty variant.
func (c Cell) IsEmpty() bool { return c.kind == CellEmpty }

// Float returns the numeric value and true for Number cells.
func (c Cell) Float() (float64, bool) {
	if c.kind != CellNumber {
		return 0, false
	}
	return c.num, true
}

// String returns the cell's textual form. Empty stringifies to "".
func (c Cell) String() string {
	switch c.kind {
	case CellText, CellNumber:
		return c.text
	default:
		return ""
	}
}

// Equal reports whether two cells hold the same variant and value.
func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case CellNumber:
		return c.num == o.num && c.text == o.text
	case CellText:
		return c.text == o.text
	default:
		return true
	}
}

// isBlank reports whether the cell is Empty or whitespace-only Text.
func (c Cell) isBlank() bool {
	switch c.kind {
	case CellEmpty:
		return true
	case CellText:
		return strings.TrimSpace(c.text) == ""
	default:
		return false
	}
}
