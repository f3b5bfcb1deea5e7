// Package parser turns CSV and XLSX uploads of the CBHPM table into a
// header row plus typed cells. It does not interpret the columns.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/resolver"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/sniffer"
)

var (
	ErrEmptyFile         = errors.New("file is empty")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoSheet           = errors.New("workbook has no sheets")
)

// Format is the container format of an upload.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// DetectFormat chooses the parser for an upload by extension, then by content.
// Legacy binary .xls workbooks are rejected.
func DetectFormat(name string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(data, oleMagic):
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	return FormatCSV, nil
}

// Cell is one value of a parsed table. Spreadsheet cells stored as numbers
// carry IsNumber; everything else is text.
type Cell struct {
	Text     string
	Number   float64
	IsNumber bool
}

// TextCell builds a text cell.
func TextCell(s string) Cell {
	return Cell{Text: s}
}

// NumberCell builds a native numeric cell.
func NumberCell(f float64) Cell {
	return Cell{Text: strconv.FormatFloat(f, 'f', -1, 64), Number: f, IsNumber: true}
}

// String returns the cell as the source wrote it.
func (c Cell) String() string {
	if c.Text == "" && c.IsNumber {
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	}
	return c.Text
}

// Row is one data record. It may be shorter than the header row.
type Row []Cell

// At returns the cell at column i, or an empty text cell when the row is short.
func (r Row) At(i int) Cell {
	if i < 0 || i >= len(r) {
		return Cell{}
	}
	return r[i]
}

func (r Row) blank() bool {
	for _, c := range r {
		if strings.TrimSpace(c.String()) != "" {
			return false
		}
	}
	return true
}

// Table is a parsed upload: the header row and the data rows below it.
type Table struct {
	Format    Format
	Headers   []string
	Rows      []Row
	HeaderRow int // 0-based record index of the header

	// Dialect is set for CSV uploads only.
	Dialect *sniffer.Dialect
	// Sheet is set for XLSX uploads only.
	Sheet string
}

// Option configures how a table is read.
type Option func(*options)

type options struct {
	isHeader func([]string) bool
}

// WithHeaderFunc sets the test a record must pass to be taken as the header.
// By default a record is the header when code and description resolve
// against resolver.DefaultAliases.
func WithHeaderFunc(isHeader func([]string) bool) Option {
	return func(o *options) {
		o.isHeader = isHeader
	}
}

// ResolvesWith accepts records whose mandatory columns resolve against aliases.
func ResolvesWith(aliases resolver.AliasTable) func([]string) bool {
	return func(record []string) bool {
		return !resolver.Resolve(record, aliases).Missing()
	}
}

func newOptions(opts []Option) options {
	o := options{isHeader: ResolvesWith(resolver.DefaultAliases)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Parse reads an upload of either format.
func Parse(name string, data []byte, opts ...Option) (*Table, error) {
	format, err := DetectFormat(name, data)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return ParseXLSX(data, opts...)
	}
	return ParseCSV(data, opts...)
}

// ParseCSV sniffs the encoding and delimiter of data and reads every record.
func ParseCSV(data []byte, opts ...Option) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	dialect := sniffer.Sniff(data)
	text := sniffer.Decode(data, dialect)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = dialect.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	rows := make([]Row, len(records))
	for i, record := range records {
		row := make(Row, len(record))
		for j, v := range record {
			row[j] = TextCell(v)
		}
		rows[i] = row
	}

	table := buildTable(records, rows, newOptions(opts))
	table.Format = FormatCSV
	table.Dialect = &dialect
	return table, nil
}

// buildTable splits records at the detected header row and drops blank rows.
func buildTable(records [][]string, rows []Row, o options) *Table {
	headerIdx := sniffer.HeaderRow(records, o.isHeader)

	table := &Table{
		Headers:   records[headerIdx],
		HeaderRow: headerIdx,
		Rows:      make([]Row, 0, len(rows)-headerIdx-1),
	}
	for _, row := range rows[headerIdx+1:] {
		if row.blank() {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
