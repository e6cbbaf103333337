// Package core provides the business logic for importing and filtering
// spreadsheet data.
//
// This package is independent of any UI or transport layer. It can be used
// by web handlers, CLI tools, or tests without modification.
//
// # Architecture
//
//   - Ingestion: [Import] reads the first worksheet of an .xlsx workbook (or a
//     delimited text file) into an immutable [Dataset]. Row 1 is the header.
//   - Filtering: each column carries a [FilterMode] (ShowAll, OnlyMarked,
//     OnlyEmpty). [Recompute] rebuilds the visible [View] from the full
//     dataset, combining active filters with AND.
//   - Statistics: [ComputeStatistics] counts distinct first-column values and
//     marked cells per column. A cell is marked when its trimmed text is
//     exactly "1" or "1.0".
//   - Session: [Session] ties the above together and publishes a consistent
//     [Snapshot] after every import or filter change.
//
// # Imports
//
// Imports run on their own goroutine:
//
//  1. Client calls [Session.StartLoad] and receives a result channel
//  2. The source is parsed without touching session state
//  3. On success the new dataset is installed with every filter reset
//  4. An "excel_file_uploaded" event is written to the [ActivityLog]
//
// A session runs at most one import at a time; a second StartLoad fails
// with [ErrImportInProgress], as do filter changes while it runs. A failed
// or cancelled import leaves the previous state untouched.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError]:
//
//   - IMP001-IMP006: Import errors (missing file, header problems, busy)
//   - FLT001-FLT002: Filter errors (unknown column, nothing loaded)
//   - SES001-SES002: Session errors (expired, limit reached)
//   - REQ001-REQ002: Request errors (cancelled, timeout)
package core
