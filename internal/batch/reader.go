package batch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrNoRows is returned when the input has a header but no data rows
var ErrNoRows = errors.New("no data rows")

// ParseError reports malformed or empty tabular input
type ParseError struct {
	Path string // Source path, empty for readers
	Line int    // 1-based line, 0 when not tied to a line
	Err  error
}

func (e *ParseError) Error() string {
	src := e.Path
	if src == "" {
		src = "input"
	}
	if e.Line > 0 {
		return fmt.Sprintf("could not parse %s (line %d): %v", src, e.Line, e.Err)
	}
	return fmt.Sprintf("could not parse %s: %v", src, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Options controls how the delimited input is read
type Options struct {
	Delimiter rune // Field delimiter, ',' when zero
}

// DefaultOptions returns options for comma separated input
func DefaultOptions() Options {
	return Options{Delimiter: ','}
}

// Row is one data record. Cells are aligned with Columns, which is shared
// by every row of a table and must not be modified.
type Row struct {
	Line    int
	Columns []string
	Cells   []string
}

// Value returns the cell for a language column
func (r Row) Value(column string) (string, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Cells[i], true
		}
	}
	return "", false
}

// Word returns the source language cell, used to name the output file
func (r Row) Word() string {
	if len(r.Cells) == 0 {
		return ""
	}
	return r.Cells[0]
}

// Table holds the parsed header and rows in input order
type Table struct {
	Columns []string
	Rows    []Row
}

// SourceLanguage returns the first column
func (t *Table) SourceLanguage() string {
	return t.Columns[0]
}

// ReadFile reads and parses a delimited file
func ReadFile(path string, opts Options) (*Table, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	table, err := Parse(bytes.NewReader(content), opts)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}
	return table, nil
}

// Parse reads r to completion and returns its rows. A source with a header
// but no data rows is an error, not an empty table.
func Parse(r io.Reader, opts Options) (*Table, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if err := validateDelimiter(opts.Delimiter); err != nil {
		return nil, &ParseError{Err: err}
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	content = bytes.TrimPrefix(content, []byte("\ufeff"))

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = 0 // every record must match the header width

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ParseError{Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, toParseError(err)
	}

	columns, err := parseHeader(header)
	if err != nil {
		return nil, &ParseError{Line: 1, Err: err}
	}

	table := &Table{Columns: columns}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, toParseError(err)
		}

		line, _ := reader.FieldPos(0)
		cells := make([]string, len(record))
		for i, cell := range record {
			cells[i] = strings.TrimSpace(cell)
		}
		table.Rows = append(table.Rows, Row{
			Line:    line,
			Columns: columns,
			Cells:   cells,
		})
	}

	if len(table.Rows) == 0 {
		return nil, &ParseError{Err: ErrNoRows}
	}

	return table, nil
}

func parseHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate header column %q", name)
		}
		seen[name] = true
		columns[i] = name
	}
	return columns, nil
}

func toParseError(err error) error {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &ParseError{Line: csvErr.Line, Err: csvErr.Err}
	}
	return &ParseError{Err: err}
}

func validateDelimiter(r rune) error {
	if r == '\r' || r == '\n' || r == '"' || r == utf8.RuneError || !utf8.ValidRune(r) {
		return fmt.Errorf("invalid delimiter %q", r)
	}
	return nil
}
