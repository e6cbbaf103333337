package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/markview/internal/core"
)

func TestParseFilterFlag(t *testing.T) {
	tests := []struct {
		in       string
		wantCol  string
		wantMode core.FilterMode
		wantErr  bool
	}{
		{in: "Flag=marked", wantCol: "Flag", wantMode: core.OnlyMarked},
		{in: "Note=empty", wantCol: "Note", wantMode: core.OnlyEmpty},
		{in: "a=b=all", wantCol: "a=b", wantMode: core.ShowAll},
		{in: "Flag=true", wantCol: "Flag", wantMode: core.OnlyMarked},
		{in: "Flag", wantErr: true},
		{in: "=marked", wantErr: true},
		{in: "Flag=often", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			col, mode, err := parseFilterFlag(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if col != tt.wantCol || mode != tt.wantMode {
				t.Errorf("got (%q, %v), want (%q, %v)", col, mode, tt.wantCol, tt.wantMode)
			}
		})
	}
}

func runInspect(t *testing.T, args ...string) (string, error) {
	t.Helper()
	inspectFilters = nil
	inspectLimit = 20
	inspectJSON = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"inspect"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flags.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInspectJSON(t *testing.T) {
	path := writeCSV(t, "ID,Flag\n1,1\n2,\n3,1.0\n")

	out, err := runInspect(t, path, "--json", "--filter", "Flag=marked")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}

	var got inspectResult
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := inspectResult{
		Source: path,
		Columns: []inspectColumn{
			{Name: "ID", MarkedCount: 1, Filter: core.ShowAll},
			{Name: "Flag", MarkedCount: 2, Filter: core.OnlyMarked},
		},
		TotalRows:   3,
		VisibleRows: 2,
		UniqueCount: 3,
		Rows:        [][]string{{"1", "1"}, {"3", "1.0"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestInspectTable(t *testing.T) {
	path := writeCSV(t, "ID,Note\na,\nb,x\nc,\n")

	out, err := runInspect(t, path, "--limit", "1", "--filter", "Note=empty")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"Rows:   2 of 3", "Note (0) [empty]", "... 1 more rows"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInspectErrors(t *testing.T) {
	path := writeCSV(t, "ID,Flag\n1,1\n")

	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantErr  error
	}{
		{
			name:     "unknown column",
			args:     []string{path, "--filter", "Missing=marked"},
			wantCode: "FLT001",
			wantErr:  core.ErrUnknownColumn,
		},
		{
			name:     "missing file",
			args:     []string{filepath.Join(t.TempDir(), "nope.csv")},
			wantCode: "IMP001",
			wantErr:  core.ErrSourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runInspect(t, tt.args...)
			var ue *core.UserError
			if !errors.As(err, &ue) {
				t.Fatalf("err = %v (%T), want *core.UserError", err, err)
			}
			if ue.User.Code != tt.wantCode || !strings.Contains(err.Error(), tt.wantCode) {
				t.Errorf("err = %q, want code %s", err, tt.wantCode)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, does not wrap %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserErrorPassesThroughUnmapped(t *testing.T) {
	prev := logger
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() { logger = prev })

	raw := errors.New("write stdout: broken pipe")
	if got := userError(raw); got != raw {
		t.Errorf("userError() = %v, want the original error", got)
	}
}
