// Package table provides density.Table implementations over in-memory rows,
// CSV files and SQLite tables.
package table

import (
	"context"

	density "github.com/knime/knime-activelearning-sub000"
)

// Memory is an in-memory table.
type Memory struct {
	columns []string
	rows    []density.Row
}

// NewMemory returns a table with the given feature columns and rows.
func NewMemory(columns []string, rows ...density.Row) *Memory {
	return &Memory{columns: columns, rows: rows}
}

// Append adds a row of numeric values.
func (t *Memory) Append(key string, values ...float64) {
	cells := make([]density.Cell, len(values))
	for i, v := range values {
		cells[i] = density.Float(v)
	}
	t.rows = append(t.rows, density.Row{Key: key, Cells: cells})
}

// AppendRow adds row as is.
func (t *Memory) AppendRow(row density.Row) {
	t.rows = append(t.rows, row)
}

func (t *Memory) Columns() []string { return t.columns }

func (t *Memory) NumRows() int { return len(t.rows) }

func (t *Memory) Rows(ctx context.Context) (density.RowIterator, error) {
	return &sliceIterator{ctx: ctx, rows: t.rows, pos: -1}, nil
}

type sliceIterator struct {
	ctx  context.Context
	rows []density.Row
	pos  int
	err  error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	it.pos++
	return it.pos < len(it.rows)
}

func (it *sliceIterator) Row() density.Row { return it.rows[it.pos] }

func (it *sliceIterator) Err() error { return it.err }

func (it *sliceIterator) Close() error { return nil }
