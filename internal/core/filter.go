package core

import (
	"fmt"
	"sort"
	"strings"
)

// FilterMode is the tri-state selection for a single column.
type FilterMode int

const (
	ShowAll    FilterMode = iota // No constraint
	OnlyMarked                   // Cell must satisfy IsMarked
	OnlyEmpty                    // Cell must be Empty or blank Text
)

// String returns the wire name of the mode.
func (m FilterMode) String() string {
	switch m {
	case ShowAll:
		return "all"
	case OnlyMarked:
		return "marked"
	case OnlyEmpty:
		return "empty"
	default:
		return fmt.Sprintf("FilterMode(%d)", int(m))
	}
}

// ParseFilterMode parses a mode name. Besides "all", "marked" and "empty",
// the tri-state encoding "null" / "true" / "false" is accepted.
func ParseFilterMode(s string) (FilterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "show_all", "null":
		return ShowAll, nil
	case "marked", "only_marked", "true", "1":
		return OnlyMarked, nil
	case "empty", "only_empty", "false", "0":
		return OnlyEmpty, nil
	default:
		return ShowAll, fmt.Errorf("invalid filter mode %q (use all, marked or empty)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m FilterMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *FilterMode) UnmarshalText(b []byte) error {
	parsed, err := ParseFilterMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// FilterState maps column names to filter modes. Columns that are absent
// read as ShowAll. A FilterState is treated as immutable; With returns a
// modified copy.
type FilterState struct {
	modes map[string]FilterMode
}

// NewFilterState returns a state with every column of ds set to ShowAll.
func NewFilterState(ds *Dataset) FilterState {
	fs := FilterState{modes: make(map[string]FilterMode)}
	if ds == nil {
		return fs
	}
	for _, c := range ds.columns {
		fs.modes[c.Name] = ShowAll
	}
	return fs
}

// Mode returns the mode for column, ShowAll if unset.
func (fs FilterState) Mode(column string) FilterMode {
	return fs.modes[column]
}

// With returns a copy of fs with column set to mode. The column must exist
// in ds; otherwise a *FilterError is returned and fs is unchanged.
func (fs FilterState) With(ds *Dataset, column string, mode FilterMode) (FilterState, error) {
	if ds == nil || !ds.HasColumn(column) {
		return fs, &FilterError{Column: column}
	}
	if mode < ShowAll || mode > OnlyEmpty {
		return fs, fmt.Errorf("set filter %q: invalid mode %d", column, int(mode))
	}

	next := FilterState{modes: make(map[string]FilterMode, len(fs.modes)+1)}
	for k, v := range fs.modes {
		next.modes[k] = v
	}
	next.modes[column] = mode
	return next, nil
}

// Active returns the columns whose mode is not ShowAll.
func (fs FilterState) Active() map[string]FilterMode {
	out := make(map[string]FilterMode)
	for k, v := range fs.modes {
		if v != ShowAll {
			out[k] = v
		}
	}
	return out
}

// ActiveCount returns how many columns are constrained.
func (fs FilterState) ActiveCount() int {
	n := 0
	for _, v := range fs.modes {
		if v != ShowAll {
			n++
		}
	}
	return n
}

// Modes returns a copy of the explicit column modes.
func (fs FilterState) Modes() map[string]FilterMode {
	out := make(map[string]FilterMode, len(fs.modes))
	for k, v := range fs.modes {
		out[k] = v
	}
	return out
}

// String renders active filters deterministically, for logs.
func (fs FilterState) String() string {
	active := fs.Active()
	if len(active) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(active))
	for k := range active {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", k, active[k])
	}
	b.WriteString("}")
	return b.String()
}
