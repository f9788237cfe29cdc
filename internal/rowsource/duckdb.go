package rowsource

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/kgregersen/reweighter/internal/errkind"
)

// DuckDBCursor implements Cursor by buffering the result of a single query
// against a DuckDB database. It exists so the row-cursor contract (an
// external collaborator per spec.md §1) has a concrete, dependency-backed
// home besides the CSV adapter: source and target samples for a reweighting
// run are frequently columnar extracts already living in a DuckDB file.
type DuckDBCursor struct {
	columns []string
	index   map[string]int
	rows    [][]float64
	current int
}

// OpenDuckDBQuery runs query against the database at path and buffers every
// result row; every selected column must be numeric.
func OpenDuckDBQuery(path, query string) (*DuckDBCursor, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("opening duckdb %s: %w", path, err))
	}
	defer db.Close()

	rs, err := db.Query(query)
	if err != nil {
		return nil, errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("query failed: %w", err))
	}
	defer rs.Close()

	columns, err := rs.Columns()
	if err != nil {
		return nil, errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("reading columns: %w", err))
	}

	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[name] = i
	}

	var rows [][]float64
	scanBuf := make([]interface{}, len(columns))
	valBuf := make([]float64, len(columns))
	for i := range scanBuf {
		scanBuf[i] = &valBuf[i]
	}

	for rs.Next() {
		if err := rs.Scan(scanBuf...); err != nil {
			return nil, errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("scanning row %d: %w", len(rows)+1, err))
		}
		row := make([]float64, len(columns))
		copy(row, valBuf)
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("iterating rows: %w", err))
	}

	return &DuckDBCursor{columns: columns, index: index, rows: rows}, nil
}

// RowCount implements Cursor.
func (c *DuckDBCursor) RowCount() int { return len(c.rows) }

// GetRow implements Cursor.
func (c *DuckDBCursor) GetRow(i int) error {
	if i < 0 || i >= len(c.rows) {
		return errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("row index %d out of range [0,%d)", i, len(c.rows)))
	}
	c.current = i
	return nil
}

// Float implements Cursor.
func (c *DuckDBCursor) Float(name string) (float64, error) {
	col, ok := c.index[name]
	if !ok {
		return 0, errkind.New(errkind.Data, "rowsource", "no such column %q", name)
	}
	return c.rows[c.current][col], nil
}

// Columns implements Cursor.
func (c *DuckDBCursor) Columns() []string {
	out := make([]string, len(c.columns))
	copy(out, c.columns)
	return out
}

// Clone returns an independent cursor over the same buffered rows.
func (c *DuckDBCursor) Clone() Cursor {
	return &DuckDBCursor{columns: c.columns, index: c.index, rows: c.rows, current: c.current}
}
