package core

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// delimiterFor returns the field separator implied by the file name.
// Zero means "sniff from the header line".
func delimiterFor(name string) rune {
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		return '\t'
	}
	return 0
}

// readDelimited reads a CSV/TSV source. Delimited text carries no native
// cell types, so every non-empty value is Text.
func readDelimited(ctx context.Context, r io.Reader, delim rune, progress ProgressFunc) (*rawTable, error) {
	counter := newCountingReader(r)
	decoded, _, err := decodeToUTF8(newBOMSkippingReader(counter))
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	br := bufio.NewReader(decoded)
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &rawTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	table := &rawTable{header: header, width: usedWidth(header)}
	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			progress(i, counter.BytesRead())
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", i+2, err)
		}

		if w := usedWidth(record); w > table.width {
			table.width = w
		}
		row := make(Row, len(record))
		for j, v := range record {
			if v != "" {
				row[j] = Text(v)
			}
		}
		table.rows = append(table.rows, row)
	}
	progress(len(table.rows), counter.BytesRead())

	return table, nil
}

// sniffDelimiter picks ',', ';' or tab by counting unquoted occurrences in
// the first line. Excel uses ';' in locales where ',' is the decimal mark.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(br.Size())
	if i := strings.IndexAny(string(line), "\r\n"); i >= 0 {
		line = line[:i]
	}

	counts := map[rune]int{}
	inQuotes := false
	for _, c := range string(line) {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case !inQuotes && (c == ',' || c == ';' || c == '\t'):
			counts[c]++
		}
	}

	best, bestCount := ',', counts[',']
	for _, c := range []rune{';', '\t'} {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}
