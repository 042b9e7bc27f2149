package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Table is a parsed CSV source: a trimmed header row and the data rows that
// follow it. Cells are trimmed; blank rows are dropped.
type Table struct {
	Header []string
	Rows   []Row

	index map[string]int
}

// Row is one data row. Line is its 1-based position among data rows,
// counting dropped blank rows, so warnings point at the sheet row.
type Row struct {
	Line   int
	Fields []string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseTable parses a UTF-8 CSV body with a header row.
func ParseTable(body []byte) (*Table, error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty table")
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{
		Header: make([]string, len(header)),
		index:  make(map[string]int, len(header)),
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		t.Header[i] = h
		key := headerKey(h)
		if key == "" {
			continue
		}
		// First occurrence of a duplicated header wins.
		if _, ok := t.index[key]; !ok {
			t.index[key] = i
		}
	}

	line := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line+1, err)
		}
		line++
		blank := true
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
			if rec[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		t.Rows = append(t.Rows, Row{Line: line, Fields: rec})
	}

	return t, nil
}

// Has reports whether the header contains column (trimmed, case-insensitive).
func (t *Table) Has(column string) bool {
	_, ok := t.index[headerKey(column)]
	return ok
}

// Missing returns the columns in want that the header lacks, in order.
func (t *Table) Missing(want ...string) []string {
	var missing []string
	for _, c := range want {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Get returns the trimmed cell of row under column, or "" when the column
// is absent or the row is short.
func (t *Table) Get(row Row, column string) string {
	i, ok := t.index[headerKey(column)]
	if !ok || i >= len(row.Fields) {
		return ""
	}
	return row.Fields[i]
}

func headerKey(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
