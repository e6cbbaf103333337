package core

// ingest.go turns a spreadsheet-like source into a Dataset.
//
// The first worksheet (or the whole file, for delimited text) is read;
// row 1 is the header and every later row becomes a Row. Parsing never
// touches session state: the caller decides whether and when to install
// the result.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxFileSize is the largest source accepted when no limit is configured (100MB).
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// ContextCheckInterval is how often (in rows) parsing checks for cancellation.
var ContextCheckInterval = 100

// ImportPhase is the stage an import has reached.
type ImportPhase string

const (
	PhaseStarting   ImportPhase = "starting"
	PhaseReading    ImportPhase = "reading"
	PhaseInstalling ImportPhase = "installing"
	PhaseComplete   ImportPhase = "complete"
	PhaseFailed     ImportPhase = "failed"
	PhaseCancelled  ImportPhase = "cancelled"
)

// ImportProgress is a snapshot of an import in flight.
type ImportProgress struct {
	ImportID   string      `json:"importId"`
	FileName   string      `json:"fileName"`
	Phase      ImportPhase `json:"phase"`
	RowsRead   int         `json:"rowsRead"`
	BytesRead  int64       `json:"bytesRead"`
	BytesTotal int64       `json:"bytesTotal"`
	Error      string      `json:"error,omitempty"`
}

// Percent returns byte-based progress (0-100), or 0 when the size is unknown.
func (p ImportProgress) Percent() int {
	if p.Phase == PhaseComplete {
		return 100
	}
	if p.BytesTotal <= 0 {
		return 0
	}
	pct := int(p.BytesRead * 100 / p.BytesTotal)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ProgressFunc receives progress updates while a source is parsed. It is
// called from the parsing goroutine and must not block.
type ProgressFunc func(rowsRead int, bytesRead int64)

// sourceFormat is a supported source file family.
type sourceFormat int

const (
	formatUnknown sourceFormat = iota
	formatXLSX
	formatDelimited
)

// detectFormat picks a reader by file extension.
func detectFormat(name string) sourceFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return formatXLSX
	case ".csv", ".tsv", ".txt":
		return formatDelimited
	default:
		return formatUnknown
	}
}

// Importer parses sources into Datasets.
type Importer struct {
	// MaxFileSize rejects larger sources with a parse failure. Zero uses DefaultMaxFileSize.
	MaxFileSize int64

	now func() time.Time
}

// NewImporter returns an Importer with the given size limit.
func NewImporter(maxFileSize int64) *Importer {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Importer{MaxFileSize: maxFileSize, now: time.Now}
}

// DefaultImporter is used by Import.
var DefaultImporter = NewImporter(DefaultMaxFileSize)

// Import parses the source at path with DefaultImporter.
func Import(ctx context.Context, path string) (*Dataset, error) {
	return DefaultImporter.Import(ctx, path, nil)
}

// Import opens and parses the source at path.
func (im *Importer) Import(ctx context.Context, path string, progress ProgressFunc) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ImportError{Kind: ErrSourceUnavailable, Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &ImportError{Kind: ErrSourceUnavailable, Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &ImportError{Kind: ErrSourceUnavailable, Path: path, Detail: "is a directory"}
	}

	return im.ImportReader(ctx, path, f, info.Size(), progress)
}

// ImportReader parses a source read from r. name selects the format by
// extension and is recorded as the dataset's source path; size may be 0
// when unknown.
func (im *Importer) ImportReader(ctx context.Context, name string, r io.Reader, size int64, progress ProgressFunc) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := im.MaxFileSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	if size > limit {
		return nil, &ImportError{
			Kind:   ErrParseFailure,
			Path:   name,
			Detail: fmt.Sprintf("%d bytes exceeds %dMB limit", size, limit/(1024*1024)),
			Err:    ErrFileTooLarge,
		}
	}
	// Guard against sources that lie about their size.
	r = &limitedReader{r: r, remaining: limit + 1, limit: limit}
	if progress == nil {
		progress = func(int, int64) {}
	}

	var (
		sheet string
		table *rawTable
		err   error
	)
	switch detectFormat(name) {
	case formatXLSX:
		sheet, table, err = readXLSX(ctx, r, progress)
	case formatDelimited:
		table, err = readDelimited(ctx, r, delimiterFor(name), progress)
	default:
		return nil, &ImportError{
			Kind:   ErrParseFailure,
			Path:   name,
			Detail: fmt.Sprintf("unsupported file type %q", filepath.Ext(name)),
		}
	}
	if err != nil {
		return nil, parseFailure(name, err)
	}

	header, rows, err := table.split()
	if err != nil {
		var ie *ImportError
		if errors.As(err, &ie) {
			ie.Path = name
		}
		return nil, err
	}

	now := time.Now
	if im.now != nil {
		now = im.now
	}
	return NewDataset(DatasetInfo{SourcePath: name, Sheet: sheet, ImportedAt: now()}, header, rows)
}

// rawTable is the sheet as read: every record including the header.
type rawTable struct {
	header []string
	rows   []Row
	width  int // Widest record, counting only up to its last non-blank cell
}

// split pads the header to the table width. A missing header row or a
// table without any cells is an empty workbook.
func (t *rawTable) split() ([]string, []Row, error) {
	if t == nil || t.header == nil || t.width == 0 {
		return nil, nil, &ImportError{Kind: ErrEmptyWorkbook, Detail: "no header row"}
	}
	header := make([]string, t.width)
	copy(header, t.header)

	rows := t.rows
	for i, row := range rows {
		if len(row) > t.width {
			rows[i] = row[:t.width]
		}
	}
	return header, rows, nil
}

// usedWidth returns the position after the last non-blank value.
func usedWidth(values []string) int {
	for i := len(values) - 1; i >= 0; i-- {
		if strings.TrimSpace(values[i]) != "" {
			return i + 1
		}
	}
	return 0
}

// limitedReader fails once more than limit bytes have been read.
type limitedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, fmt.Errorf("%w: exceeds %dMB limit", ErrFileTooLarge, l.limit/(1024*1024))
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
