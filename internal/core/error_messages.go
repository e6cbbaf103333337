// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Users can quote the code to support staff for faster diagnosis.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Source unavailable: The file could not be opened
//	         Action: Check that the file exists and is not open in another program
//	         Matches: ErrSourceUnavailable
//
//	IMP002 - Empty workbook: The file has no header row or no columns
//	         Action: Put column names in the first row of the first sheet
//	         Matches: ErrEmptyWorkbook
//
//	IMP003 - Malformed header: A column name is blank or repeated
//	         Action: Give every column in the first row a unique name
//	         Matches: ErrMalformedHeader
//
//	IMP004 - Parse failure: The file could not be read as a spreadsheet
//	         Action: Save the file as .xlsx or .csv and try again
//	         Matches: ErrParseFailure, ErrFileTooLarge (IMP004 with size hint)
//
//	IMP005 - Import in progress: Another file is still loading
//	         Action: Wait for the current import to finish
//	         Matches: ErrImportInProgress
//
//	IMP006 - System busy: Too many imports are running
//	         Action: Please wait a moment and try again
//	         Matches: ErrTooManyImports
//
// # Filter Errors (FLT001-FLT099)
//
//	FLT001 - Unknown column: The column is not in the loaded dataset
//	         Action: Reload the page to refresh the column list
//	         Matches: ErrUnknownColumn
//
//	FLT002 - No dataset: Nothing has been imported yet
//	         Action: Upload a spreadsheet first
//	         Matches: ErrNoDataset
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found: The session expired or never existed
//	         Action: Reload the page to start a new session
//	         Matches: ErrSessionNotFound
//
//	SES002 - Too many sessions: The server is at its session limit
//	         Action: Please wait a moment and try again
//	         Matches: ErrTooManySessions
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	         Matches: context.Canceled, "context canceled"
//
//	REQ002 - Request timeout
//	         Matches: context.DeadlineExceeded, "context deadline exceeded"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check application logs for the original
// technical error when users report ERR000.
//
// # Matching
//
// Typed matches (errors.Is against the sentinels above) are tried first, in
// table order. Errors that crossed a boundary as plain text are then matched
// case-insensitively by substring. The first match wins.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorKind maps a sentinel to its user message.
type errorKind struct {
	target error
	msg    UserMessage
}

var (
	msgSourceUnavailable = UserMessage{
		Message: "The file could not be opened",
		Action:  "Check that the file exists and is not open in another program",
		Code:    "IMP001",
	}
	msgEmptyWorkbook = UserMessage{
		Message: "The file has no header row or no columns",
		Action:  "Put column names in the first row of the first sheet",
		Code:    "IMP002",
	}
	msgMalformedHeader = UserMessage{
		Message: "A column name is blank or repeated",
		Action:  "Give every column in the first row a unique name",
		Code:    "IMP003",
	}
	msgFileTooLarge = UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the file into smaller files",
		Code:    "IMP004",
	}
	msgParseFailure = UserMessage{
		Message: "The file could not be read as a spreadsheet",
		Action:  "Save the file as .xlsx or .csv and try again",
		Code:    "IMP004",
	}
	msgImportInProgress = UserMessage{
		Message: "Another file is still loading",
		Action:  "Wait for the current import to finish",
		Code:    "IMP005",
	}
	msgTooManyImports = UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP006",
	}
	msgUnknownColumn = UserMessage{
		Message: "The column is not in the loaded dataset",
		Action:  "Reload the page to refresh the column list",
		Code:    "FLT001",
	}
	msgNoDataset = UserMessage{
		Message: "Nothing has been imported yet",
		Action:  "Upload a spreadsheet first",
		Code:    "FLT002",
	}
	msgSessionNotFound = UserMessage{
		Message: "Session not found",
		Action:  "The session may have expired. Reload the page to start a new one",
		Code:    "SES001",
	}
	msgTooManySessions = UserMessage{
		Message: "Too many open sessions",
		Action:  "Please wait a moment and try again",
		Code:    "SES002",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "REQ002",
	}
)

// errorKinds is checked with errors.Is, in order. Import-in-progress comes
// before cancellation so a rejected import never reads as cancelled.
var errorKinds = []errorKind{
	{ErrImportInProgress, msgImportInProgress},
	{ErrTooManyImports, msgTooManyImports},
	{ErrSourceUnavailable, msgSourceUnavailable},
	{ErrEmptyWorkbook, msgEmptyWorkbook},
	{ErrMalformedHeader, msgMalformedHeader},
	{ErrUnknownColumn, msgUnknownColumn},
	{ErrNoDataset, msgNoDataset},
	{ErrSessionNotFound, msgSessionNotFound},
	{ErrTooManySessions, msgTooManySessions},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

// errorPattern defines a substring to match and its user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is the text fallback for errors that lost their type.
var errorPatterns = []errorPattern{
	{"session not found", msgSessionNotFound},
	{"too many sessions", msgTooManySessions},
	{"import in progress", msgImportInProgress},
	{"too many concurrent imports", msgTooManyImports},
	{"source unavailable", msgSourceUnavailable},
	{"empty workbook", msgEmptyWorkbook},
	{"malformed header", msgMalformedHeader},
	{"unknown column", msgUnknownColumn},
	{"parse failure", msgParseFailure},
	{"context canceled", msgCancelled},
	{"context deadline exceeded", msgTimeout},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := core.Import(ctx, "missing.xlsx")
//	msg := MapError(err)
//	// msg.Code == "IMP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	// Size limits are reported as parse failures but deserve their own hint.
	if errors.Is(err, ErrFileTooLarge) {
		return msgFileTooLarge
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}
	if errors.Is(err, ErrParseFailure) {
		return msgParseFailure
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	return NewUserError(err).Error()
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message. Error()
// returns the formatted user message; Unwrap() returns the original for
// logging and errors.Is.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return fmt.Sprintf("%s (Code: %s). %s", e.User.Message, e.User.Code, e.User.Action)
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
