package rowsource

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/kgregersen/reweighter/internal/errkind"
)

// CSVCursor implements Cursor over an in-memory table parsed from CSV,
// grounded in the teacher's parseCSV (parse.go): the first row is treated
// as a header naming every column, and every subsequent row must parse as
// float64 in every column.
type CSVCursor struct {
	columns []string
	index   map[string]int
	rows    [][]float64
	current int
}

// ParseCSV reads a header row followed by numeric rows from r.
func ParseCSV(r io.Reader) (*CSVCursor, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("reading header: %w", err))
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	var rows [][]float64
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("reading row %d: %w", len(rows)+1, err))
		}

		row := make([]float64, len(rec))
		for i, val := range rec {
			fv, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("row %d column %d: %w", len(rows)+1, i, err))
			}
			row[i] = fv
		}
		rows = append(rows, row)
	}

	return &CSVCursor{columns: header, index: index, rows: rows}, nil
}

// RowCount implements Cursor.
func (c *CSVCursor) RowCount() int { return len(c.rows) }

// GetRow implements Cursor.
func (c *CSVCursor) GetRow(i int) error {
	if i < 0 || i >= len(c.rows) {
		return errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("row index %d out of range [0,%d)", i, len(c.rows)))
	}
	c.current = i
	return nil
}

// Float implements Cursor.
func (c *CSVCursor) Float(name string) (float64, error) {
	col, ok := c.index[name]
	if !ok {
		return 0, errkind.New(errkind.Data, "rowsource", "no such column %q", name)
	}
	return c.rows[c.current][col], nil
}

// Columns implements Cursor.
func (c *CSVCursor) Columns() []string {
	out := make([]string, len(c.columns))
	copy(out, c.columns)
	return out
}

// Clone returns an independent cursor over the same rows, letting one
// parsed table be read by several goroutines concurrently: each clone has
// its own position but shares the same backing row data read-only.
func (c *CSVCursor) Clone() Cursor {
	return &CSVCursor{columns: c.columns, index: c.index, rows: c.rows, current: c.current}
}
