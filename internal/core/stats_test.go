package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestComputeStatistics(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		rows   []Row
		want   Statistics
	}{
		{
			name:   "marker counts per column",
			header: []string{"ID", "Flag"},
			rows: []Row{
				{Text("1"), Text("1")},
				{Text("2"), Empty()},
				{Text("3"), Number(1, "1.0")},
			},
			want: Statistics{UniqueCount: 3, MarkedCount: map[string]int{"ID": 1, "Flag": 2}},
		},
		{
			name:   "distinct values compare as text",
			header: []string{"Key"},
			rows:   []Row{{Text("1")}, {Text("1.0")}, {Text("2")}, {Text("1")}},
			want:   Statistics{UniqueCount: 3, MarkedCount: map[string]int{"Key": 3}},
		},
		{
			name:   "empty first column counts once",
			header: []string{"Key", "Flag"},
			rows:   []Row{{Empty(), Text("1")}, {Empty()}, {Text("a")}},
			want:   Statistics{UniqueCount: 2, MarkedCount: map[string]int{"Key": 0, "Flag": 1}},
		},
		{
			name:   "header only",
			header: []string{"ID", "Flag"},
			want:   Statistics{UniqueCount: 0, MarkedCount: map[string]int{"ID": 0, "Flag": 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := NewDataset(DatasetInfo{}, tt.header, tt.rows)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, ComputeStatistics(ds)); diff != "" {
				t.Errorf("statistics mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestComputeStatisticsNil(t *testing.T) {
	got := ComputeStatistics(nil)
	if got.UniqueCount != 0 || len(got.MarkedCount) != 0 {
		t.Errorf("ComputeStatistics(nil) = %+v", got)
	}
	if got.Marked("anything") != 0 {
		t.Error("Marked on empty statistics should be 0")
	}
}

func TestStatisticsIgnoreFilters(t *testing.T) {
	ds := flagsDataset(t)
	stats := ComputeStatistics(ds)

	fs, _ := NewFilterState(ds).With(ds, "Flag", OnlyEmpty)
	Recompute(ds, fs)

	if diff := cmp.Diff(stats, ComputeStatistics(ds)); diff != "" {
		t.Errorf("statistics changed after filtering:\n%s", diff)
	}
	if stats.Marked("Flag") != 2 {
		t.Errorf("Marked(Flag) = %d, want 2", stats.Marked("Flag"))
	}
}
