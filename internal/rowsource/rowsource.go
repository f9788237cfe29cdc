// Package rowsource implements the row-cursor contract consumed by the core
// (spec.md §6) plus two concrete adapters: a CSV-backed cursor grounded in
// the teacher's parse.go, and a DuckDB-backed cursor for querying columnar
// data directly out of a database file.
package rowsource

import (
	"fmt"

	"github.com/kgregersen/reweighter/internal/errkind"
)

// Cursor advances through an ordered dataset one row at a time and exposes
// the current row's columns by name. GetRow must be called before Float is
// valid; reads are only defined for the row most recently positioned.
type Cursor interface {
	// RowCount returns the number of rows in the dataset, known up front.
	RowCount() int
	// GetRow makes row i the current row.
	GetRow(i int) error
	// Float returns the value of the named column on the current row.
	Float(name string) (float64, error)
	// Columns lists the column names available on every row.
	Columns() []string
}

// Cloner is implemented by cursors that can hand out an independent reader
// over the same backing data, so several goroutines can each position their
// own clone without racing on a shared current-row index.
type Cloner interface {
	Clone() Cursor
}

// EventWeight reads the configured weight column off the row currently
// positioned in cur.
func EventWeight(cur Cursor, weightColumn string) (float64, error) {
	w, err := cur.Float(weightColumn)
	if err != nil {
		return 0, errkind.Wrap(errkind.Data, "rowsource", fmt.Errorf("event weight column %q: %w", weightColumn, err))
	}
	return w, nil
}
