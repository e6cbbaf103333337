package core

import (
	"errors"
	"fmt"
)

// Import error kinds. Match with errors.Is.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrEmptyWorkbook     = errors.New("empty workbook")
	ErrMalformedHeader   = errors.New("malformed header")
	ErrParseFailure      = errors.New("parse failure")
	ErrImportInProgress  = errors.New("import in progress")
)

// ErrUnknownColumn is returned when a filter names a column the current
// dataset does not have.
var ErrUnknownColumn = errors.New("unknown column")

// ErrFileTooLarge is the cause of a parse failure raised by the import
// size limit.
var ErrFileTooLarge = errors.New("file too large")

// ErrNoDataset is returned by operations that need a loaded dataset.
var ErrNoDataset = errors.New("no dataset loaded")

// ImportError describes a failed import. It matches its Kind sentinel and
// the underlying cause with errors.Is.
type ImportError struct {
	Kind   error  // One of the Err* import sentinels
	Path   string // Source path or file name
	Detail string // Human-readable detail, may be empty
	Err    error  // Underlying cause, may be nil
}

func (e *ImportError) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ImportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// parseFailure wraps err as an ImportError of kind ErrParseFailure.
// Context errors pass through unchanged so cancellation stays recognisable.
func parseFailure(path string, err error) error {
	var ie *ImportError
	if errors.As(err, &ie) {
		return err
	}
	if isContextErr(err) {
		return err
	}
	return &ImportError{Kind: ErrParseFailure, Path: path, Err: err}
}

// FilterError is returned when a filter transition is rejected.
type FilterError struct {
	Column string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownColumn, e.Column)
}

func (e *FilterError) Is(target error) bool {
	return target == ErrUnknownColumn
}
