// Package templates renders the HTML views as templ components.
//
// Components live in the .templ files; run `templ generate` after editing
// them and commit the generated *_templ.go files.
package templates

import (
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/a-h/templ"
)

// MaxCellRunes is how many characters of a cell the table shows.
const MaxCellRunes = 50

// HTMXScriptURL is the pinned htmx build the layout loads.
const HTMXScriptURL = "https://unpkg.com/htmx.org@2.0.4/dist/htmx.min.js"

// ColumnHeader describes one table column.
type ColumnHeader struct {
	Name        string
	MarkedCount int
	Filter      string // "all", "marked" or "empty"
}

// SessionPageParams is everything the session page shows.
type SessionPageParams struct {
	SessionID   string
	SourcePath  string
	Columns     []ColumnHeader
	Rows        [][]string
	TotalRows   int
	VisibleRows int
	UniqueCount int
	Truncated   bool // More rows matched than are shown
	Importing   bool
}

// EventItem is one row of the recent activity list.
type EventItem struct {
	Type      string
	Summary   string
	Timestamp time.Time
}

type filterOption struct {
	Value string
	Label string
}

var filterOptions = []filterOption{
	{Value: "all", Label: "All"},
	{Value: "marked", Label: "Only 1"},
	{Value: "empty", Label: "Only empty"},
}

// Truncate shortens s to MaxCellRunes characters.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxCellRunes {
		return s
	}
	r := []rune(s)
	return string(r[:MaxCellRunes])
}

func uploadURL(sessionID string) templ.SafeURL {
	return templ.SafeURL("/api/sessions/" + url.PathEscape(sessionID) + "/dataset?wait=true")
}

func resetURL(sessionID string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + "/filters"
}

// filterURL addresses one column's filter. Column names may contain
// slashes or spaces, so they are path-escaped.
func filterURL(sessionID, column string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + "/filters/" + url.PathEscape(column)
}
