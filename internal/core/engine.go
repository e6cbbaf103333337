package core

// engine.go derives the filtered view of a dataset.
//
// Recompute always starts from the full dataset, never from a previous
// view, so the result depends only on (dataset, filter state) and not on
// the order in which filters were changed.

// View is the subset of a dataset's rows that pass the current filters.
// Columns are shared with the dataset; rows keep their original order.
type View struct {
	dataset *Dataset
	indexes []int
}

// Dataset returns the dataset the view was derived from.
func (v *View) Dataset() *Dataset { return v.dataset }

// Columns returns the view's columns (the dataset's columns).
func (v *View) Columns() []Column {
	if v.dataset == nil {
		return nil
	}
	return v.dataset.Columns()
}

// RowCount returns the number of visible rows.
func (v *View) RowCount() int { return len(v.indexes) }

// RowIndexes returns the original dataset positions of the visible rows.
func (v *View) RowIndexes() []int {
	out := make([]int, len(v.indexes))
	copy(out, v.indexes)
	return out
}

// Row returns the i-th visible row.
func (v *View) Row(i int) Row { return v.dataset.rows[v.indexes[i]] }

// Rows returns the visible rows in dataset order.
func (v *View) Rows() []Row {
	rows := make([]Row, len(v.indexes))
	for i, idx := range v.indexes {
		rows[i] = v.dataset.rows[idx]
	}
	return rows
}

// activeFilter is a filter resolved to a column position.
type activeFilter struct {
	col  int
	mode FilterMode
}

// Recompute returns the rows of ds that pass every non-ShowAll filter in fs.
// Filters on different columns combine with AND. Filter entries naming
// columns ds does not have are ignored.
func Recompute(ds *Dataset, fs FilterState) *View {
	if ds == nil {
		return &View{}
	}

	var filters []activeFilter
	for _, c := range ds.columns {
		if mode := fs.Mode(c.Name); mode != ShowAll {
			filters = append(filters, activeFilter{col: c.Index, mode: mode})
		}
	}

	indexes := make([]int, 0, len(ds.rows))
	for i, row := range ds.rows {
		if rowPasses(row, filters) {
			indexes = append(indexes, i)
		}
	}
	return &View{dataset: ds, indexes: indexes}
}

func rowPasses(row Row, filters []activeFilter) bool {
	for _, f := range filters {
		if !cellPasses(row[f.col], f.mode) {
			return false
		}
	}
	return true
}

func cellPasses(c Cell, mode FilterMode) bool {
	switch mode {
	case OnlyMarked:
		return IsMarked(c)
	case OnlyEmpty:
		return c.isBlank()
	default:
		return true
	}
}
