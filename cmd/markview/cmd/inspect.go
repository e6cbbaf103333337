package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/markview/internal/core"
	"github.com/JonMunkholm/markview/internal/web/templates"
)

var (
	inspectFilters []string
	inspectLimit   int
	inspectJSON    bool
	inspectMaxSize int64
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print a spreadsheet's marker counts and filtered rows",
	Long: `Import a spreadsheet and print, per column, how many cells read as "1",
followed by the rows that pass the given filters.

Filters take the form column=mode, where mode is all, marked or empty.
Repeat --filter to combine them; a row must pass every filter.`,
	Example: `  markview inspect survey.xlsx --filter Flag=marked --filter Note=empty`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := core.NewSession(core.SessionOptions{
			Importer: core.NewImporter(inspectMaxSize),
			Logger:   logger,
		})
		if err := sess.LoadDataset(cmd.Context(), args[0]); err != nil {
			return userError(err)
		}

		for _, f := range inspectFilters {
			column, mode, err := parseFilterFlag(f)
			if err != nil {
				return err
			}
			if err := sess.SetColumnFilter(column, mode); err != nil {
				return userError(err)
			}
		}

		snap := sess.Snapshot()
		if inspectJSON {
			return writeInspectJSON(cmd.OutOrStdout(), snap, inspectLimit)
		}
		return writeInspectTable(cmd.OutOrStdout(), snap, inspectLimit)
	},
}

func init() {
	inspectCmd.Flags().StringArrayVarP(&inspectFilters, "filter", "f", nil, "column filter as column=mode (repeatable)")
	inspectCmd.Flags().IntVarP(&inspectLimit, "limit", "n", 20, "maximum rows to print (0 for all)")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print JSON instead of a table")
	inspectCmd.Flags().Int64Var(&inspectMaxSize, "max-size", core.DefaultMaxFileSize, "largest file accepted, in bytes")
	rootCmd.AddCommand(inspectCmd)
}

// userError logs err in full and returns its user-facing form for cobra
// to print. Errors without a support code are returned as they are.
func userError(err error) error {
	logger.Debug("inspect failed", "error", err)
	if !core.IsUserFacing(err) {
		return err
	}
	return core.NewUserError(err)
}

// parseFilterFlag splits "column=mode" at the last '=' so column names
// may themselves contain '='.
func parseFilterFlag(s string) (string, core.FilterMode, error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 {
		return "", core.ShowAll, fmt.Errorf("invalid filter %q: want column=mode", s)
	}
	mode, err := core.ParseFilterMode(s[i+1:])
	if err != nil {
		return "", core.ShowAll, err
	}
	return s[:i], mode, nil
}

type inspectColumn struct {
	Name        string          `json:"name"`
	MarkedCount int             `json:"markedCount"`
	Filter      core.FilterMode `json:"filter"`
}

type inspectResult struct {
	Source      string          `json:"source"`
	Sheet       string          `json:"sheet,omitempty"`
	Columns     []inspectColumn `json:"columns"`
	TotalRows   int             `json:"totalRows"`
	VisibleRows int             `json:"visibleRows"`
	UniqueCount int             `json:"uniqueCount"`
	Rows        [][]string      `json:"rows"`
}

func buildInspectResult(snap *core.Snapshot, limit int) inspectResult {
	info := snap.Dataset.Info()
	res := inspectResult{
		Source:      info.SourcePath,
		Sheet:       info.Sheet,
		TotalRows:   snap.Dataset.RowCount(),
		VisibleRows: snap.View.RowCount(),
		UniqueCount: snap.Stats.UniqueCount,
		Rows:        [][]string{},
	}
	for _, c := range snap.Dataset.Columns() {
		res.Columns = append(res.Columns, inspectColumn{
			Name:        c.Name,
			MarkedCount: snap.Stats.Marked(c.Name),
			Filter:      snap.Filters.Mode(c.Name),
		})
	}

	n := snap.View.RowCount()
	if limit > 0 && limit < n {
		n = limit
	}
	for i := 0; i < n; i++ {
		row := snap.View.Row(i)
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = c.String()
		}
		res.Rows = append(res.Rows, cells)
	}
	return res
}

func writeInspectJSON(w io.Writer, snap *core.Snapshot, limit int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(buildInspectResult(snap, limit))
}

func writeInspectTable(w io.Writer, snap *core.Snapshot, limit int) error {
	res := buildInspectResult(snap, limit)

	fmt.Fprintf(w, "Source: %s", res.Source)
	if res.Sheet != "" {
		fmt.Fprintf(w, " [%s]", res.Sheet)
	}
	fmt.Fprintf(w, "\nRows:   %d of %d\n", res.VisibleRows, res.TotalRows)
	if len(res.Columns) > 0 {
		fmt.Fprintf(w, "Unique: %d distinct values in %s\n", res.UniqueCount, res.Columns[0].Name)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		h := fmt.Sprintf("%s (%d)", c.Name, c.MarkedCount)
		if c.Filter != core.ShowAll {
			h += " [" + c.Filter.String() + "]"
		}
		headers[i] = h
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = templates.Truncate(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if shown := len(res.Rows); shown < res.VisibleRows {
		fmt.Fprintf(w, "... %d more rows (use --limit 0 to show all)\n", res.VisibleRows-shown)
	}
	return nil
}
