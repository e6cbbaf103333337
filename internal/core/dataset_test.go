package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewDataset(t *testing.T) {
	info := DatasetInfo{SourcePath: "flags.csv"}

	tests := []struct {
		name     string
		header   []string
		rows     []Row
		wantKind error
		wantCols []string
	}{
		{
			name:     "trims header names",
			header:   []string{" ID ", "Flag"},
			wantCols: []string{"ID", "Flag"},
		},
		{
			name:     "no header",
			header:   nil,
			wantKind: ErrEmptyWorkbook,
		},
		{
			name:     "blank header name",
			header:   []string{"ID", "  "},
			wantKind: ErrMalformedHeader,
		},
		{
			name:     "duplicate header name",
			header:   []string{"ID", "Flag", "ID"},
			wantKind: ErrMalformedHeader,
		},
		{
			name:     "duplicate after trimming",
			header:   []string{"ID", "ID "},
			wantKind: ErrMalformedHeader,
		},
		{
			name:     "row wider than header",
			header:   []string{"ID"},
			rows:     []Row{{Text("1"), Text("2")}},
			wantKind: ErrMalformedHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := NewDataset(info, tt.header, tt.rows)
			if tt.wantKind != nil {
				if !errors.Is(err, tt.wantKind) {
					t.Fatalf("err = %v, want %v", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantCols, ds.ColumnNames()); diff != "" {
				t.Errorf("columns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDatasetPadsShortRows(t *testing.T) {
	ds, err := NewDataset(DatasetInfo{}, []string{"ID", "Flag", "Note"}, []Row{
		{Text("1")},
		{Text("2"), Text("1"), Text("x")},
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := len(ds.Row(0)); got != 3 {
		t.Fatalf("len(Row(0)) = %d, want 3", got)
	}
	c, ok := ds.Cell(0, "Note")
	if !ok || !c.IsEmpty() {
		t.Errorf("Cell(0, Note) = %v, %v; want empty", c, ok)
	}
	c, ok = ds.Cell(1, "Flag")
	if !ok || c.String() != "1" {
		t.Errorf("Cell(1, Flag) = %q, %v", c.String(), ok)
	}
	if _, ok := ds.Cell(5, "ID"); ok {
		t.Error("Cell out of range should report false")
	}
	if _, ok := ds.Cell(0, "Missing"); ok {
		t.Error("Cell with unknown column should report false")
	}
}

func TestDatasetColumnsIsCopy(t *testing.T) {
	ds, err := NewDataset(DatasetInfo{}, []string{"A", "B"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	cols := ds.Columns()
	cols[0].Name = "changed"

	if col, ok := ds.Column("A"); !ok || col.Index != 0 {
		t.Errorf("Column(A) = %+v, %v", col, ok)
	}
	if ds.ColumnNames()[0] != "A" {
		t.Error("mutating Columns() result changed the dataset")
	}
	if ds.HasColumn("changed") {
		t.Error("HasColumn(changed) = true")
	}
}
