package table

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	density "github.com/knime/knime-activelearning-sub000"

	_ "modernc.org/sqlite"
)

// SQLite is a table backed by a SQLite table. One column holds the row key,
// the feature columns are read as numbers and SQL NULL is a missing value.
type SQLite struct {
	db        *sql.DB
	owned     bool
	table     string
	keyColumn string
	columns   []string
	numRows   int
}

// OpenSQLite opens the database file at path and reads table from it. The
// feature columns are all columns except keyColumn. Close releases the
// database.
func OpenSQLite(ctx context.Context, path, table, keyColumn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("table: opening %s: %w", path, err)
	}
	t, err := NewSQLite(ctx, db, table, keyColumn, nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	t.owned = true
	return t, nil
}

// NewSQLite reads table from db. If columns is nil, every column except
// keyColumn is a feature column.
func NewSQLite(ctx context.Context, db *sql.DB, table, keyColumn string, columns []string) (*SQLite, error) {
	if columns == nil {
		var err error
		if columns, err = tableColumns(ctx, db, table, keyColumn); err != nil {
			return nil, err
		}
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
		return nil, fmt.Errorf("table: counting rows of %s: %w", table, err)
	}
	return &SQLite{
		db:        db,
		table:     table,
		keyColumn: keyColumn,
		columns:   columns,
		numRows:   n,
	}, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table, keyColumn string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("table: reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	foundKey := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name == keyColumn {
			foundKey = true
			continue
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !foundKey {
		return nil, fmt.Errorf("table: %s has no column %q", table, keyColumn)
	}
	return columns, nil
}

func (t *SQLite) Columns() []string { return t.columns }

func (t *SQLite) NumRows() int { return t.numRows }

func (t *SQLite) Rows(ctx context.Context) (density.RowIterator, error) {
	selected := make([]string, 0, len(t.columns)+1)
	selected = append(selected, quoteIdent(t.keyColumn))
	for _, c := range t.columns {
		selected = append(selected, quoteIdent(c))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selected, ", "), quoteIdent(t.table))
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("table: querying %s: %w", t.table, err)
	}
	return &sqliteIterator{rows: rows, values: make([]any, len(selected))}, nil
}

// Close closes the database if it was opened by OpenSQLite.
func (t *SQLite) Close() error {
	if t.owned {
		return t.db.Close()
	}
	return nil
}

type sqliteIterator struct {
	rows   *sql.Rows
	values []any
	row    density.Row
	err    error
}

func (it *sqliteIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	ptrs := make([]any, len(it.values))
	for i := range it.values {
		ptrs[i] = &it.values[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		it.err = err
		return false
	}
	if it.values[0] == nil {
		it.err = fmt.Errorf("table: row with NULL key")
		return false
	}
	cells := make([]density.Cell, len(it.values)-1)
	for i, v := range it.values[1:] {
		cells[i] = sqlCell(v)
	}
	it.row = density.Row{Key: sqlKey(it.values[0]), Cells: cells}
	return true
}

func (it *sqliteIterator) Row() density.Row { return it.row }

func (it *sqliteIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *sqliteIterator) Close() error { return it.rows.Close() }

func sqlKey(v any) string {
	switch k := v.(type) {
	case []byte:
		return string(k)
	case string:
		return k
	default:
		return fmt.Sprint(k)
	}
}

func sqlCell(v any) density.Cell {
	switch x := v.(type) {
	case nil:
		return density.MissingCell()
	case int64:
		return density.Float(float64(x))
	case float64:
		return density.Float(x)
	case []byte:
		return parseCell(string(x))
	case string:
		return parseCell(x)
	default:
		return density.Cell{NonNumeric: true}
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
