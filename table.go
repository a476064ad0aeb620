package density

import "context"

// Cell is a single feature value of a row. The zero value is the number 0.
type Cell struct {
	Value      float64
	Missing    bool
	NonNumeric bool
}

// Float returns a numeric cell.
func Float(v float64) Cell { return Cell{Value: v} }

// MissingCell returns a missing cell.
func MissingCell() Cell { return Cell{Missing: true} }

// Row is a keyed row of feature cells.
type Row struct {
	Key   string
	Cells []Cell
}

// RowIterator streams the rows of a table. Callers must call Close.
//
//	it, err := tbl.Rows(ctx)
//	...
//	defer it.Close()
//	for it.Next() {
//		row := it.Row()
//	}
//	if err := it.Err(); err != nil { ... }
type RowIterator interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// Table is a keyed table of numeric feature columns.
type Table interface {
	// Columns returns the names of the feature columns.
	Columns() []string

	// NumRows returns the number of rows or -1 if it is not known upfront.
	NumRows() int

	// Rows returns an iterator over all rows in table order.
	Rows(ctx context.Context) (RowIterator, error)
}
