package table

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	density "github.com/knime/knime-activelearning-sub000"
)

// CSV is a table backed by a CSV file. The first column holds the row key,
// the header row names the columns. Empty cells and "?" are missing values.
type CSV struct {
	path    string
	columns []string
}

// OpenCSV reads the header of the file at path.
func OpenCSV(path string) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("table: %s has no header row", path)
	}
	if err != nil {
		return nil, fmt.Errorf("table: reading header of %s: %w", path, err)
	}
	columns := make([]string, len(header)-1)
	for i, name := range header[1:] {
		columns[i] = strings.TrimSpace(name)
	}
	return &CSV{path: path, columns: columns}, nil
}

func (t *CSV) Columns() []string { return t.columns }

// NumRows returns -1; the file is streamed.
func (t *CSV) NumRows() int { return -1 }

func (t *CSV) Rows(ctx context.Context) (density.RowIterator, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = len(t.columns) + 1
	if _, err := r.Read(); err != nil {
		f.Close()
		return nil, fmt.Errorf("table: reading header of %s: %w", t.path, err)
	}
	return &csvIterator{ctx: ctx, f: f, r: r}, nil
}

type csvIterator struct {
	ctx context.Context
	f   *os.File
	r   *csv.Reader
	row density.Row
	err error
}

func (it *csvIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	record, err := it.r.Read()
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		it.err = err
		return false
	}
	cells := make([]density.Cell, len(record)-1)
	for i, field := range record[1:] {
		cells[i] = parseCell(field)
	}
	it.row = density.Row{Key: record[0], Cells: cells}
	return true
}

func (it *csvIterator) Row() density.Row { return it.row }

func (it *csvIterator) Err() error { return it.err }

func (it *csvIterator) Close() error { return it.f.Close() }

func parseCell(field string) density.Cell {
	field = strings.TrimSpace(field)
	if field == "" || field == "?" {
		return density.MissingCell()
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return density.Cell{NonNumeric: true}
	}
	return density.Float(v)
}
