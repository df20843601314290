// Package formatter renders aligned text tables for the admin commands.
package formatter

import (
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"
)

// Table writes tab-aligned rows under a header and dashed separator.
// Nothing is printed for a table without rows.
type Table struct {
	w        *tabwriter.Writer
	headers  []string
	maxWidth map[int]int
	rows     int
	err      error
}

// NewTable creates a table that writes to w with the given column headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{
		w:        tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		headers:  headers,
		maxWidth: make(map[int]int),
	}
}

// SetMaxWidth caps the display width of column col. Longer values end in "...".
func (t *Table) SetMaxWidth(col, width int) *Table {
	t.maxWidth[col] = width
	return t
}

// AddRow appends a row. Values beyond the header count are dropped and
// missing ones are left blank.
func (t *Table) AddRow(values ...string) {
	if t.rows == 0 {
		t.writeLine(t.headers)
		sep := make([]string, len(t.headers))
		for i, h := range t.headers {
			sep[i] = strings.Repeat("-", utf8.RuneCountInString(h))
		}
		t.writeLine(sep)
	}
	t.rows++

	cells := make([]string, len(t.headers))
	for i := range cells {
		if i < len(values) {
			cells[i] = t.clip(i, sanitize(values[i]))
		}
	}
	t.writeLine(cells)
}

// Len is the number of rows added so far.
func (t *Table) Len() int { return t.rows }

// Render flushes the table and reports the first write error.
func (t *Table) Render() error {
	if t.err != nil {
		return t.err
	}
	return t.w.Flush()
}

func (t *Table) writeLine(cells []string) {
	if t.err != nil {
		return
	}
	_, t.err = io.WriteString(t.w, strings.Join(cells, "\t")+"\n")
}

func (t *Table) clip(col int, s string) string {
	limit, ok := t.maxWidth[col]
	if !ok || limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

// sanitize keeps a cell on one line so columns stay aligned.
func sanitize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
