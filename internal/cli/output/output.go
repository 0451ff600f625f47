// Package output provides output formatting for gridmesh-cli.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Format selects the output representation.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Formatter renders a table in a chosen representation.
type Formatter interface {
	Format(w io.Writer, t *Table) error
}

// New returns the formatter for the named format.
func New(format string) (Formatter, error) {
	switch Format(format) {
	case FormatTable, "":
		return &TableFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// Table holds tabular results.
type Table struct {
	Headers []string
	Rows    [][]string
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// TableFormatter renders aligned plain-text columns.
type TableFormatter struct {
	NoHeaders bool
}

// Format writes the table through a tabwriter.
func (f *TableFormatter) Format(w io.Writer, t *Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if !f.NoHeaders && len(t.Headers) > 0 {
		writeRow(tw, t.Headers)
	}
	for _, row := range t.Rows {
		writeRow(tw, row)
	}
	return nil
}

func writeRow(w io.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			io.WriteString(w, "\t")
		}
		io.WriteString(w, cell)
	}
	io.WriteString(w, "\n")
}

// JSONFormatter renders rows as an array of objects keyed by the
// lowercased headers.
type JSONFormatter struct{}

// Format writes indented JSON.
func (f *JSONFormatter) Format(w io.Writer, t *Table) error {
	rows := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		obj := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				obj[lower(h)] = row[i]
			}
		}
		rows = append(rows, obj)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
