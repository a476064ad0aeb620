package table_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	density "github.com/knime/knime-activelearning-sub000"
	"github.com/knime/knime-activelearning-sub000/table"
)

func collect(t *testing.T, tbl density.Table) []density.Row {
	t.Helper()
	it, err := tbl.Rows(context.Background())
	require.NoError(t, err)
	defer it.Close()

	var rows []density.Row
	for it.Next() {
		rows = append(rows, it.Row())
	}
	require.NoError(t, it.Err())
	return rows
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMemory(t *testing.T) {
	tbl := table.NewMemory([]string{"a", "b"})
	tbl.Append("r1", 1, 2)
	tbl.AppendRow(density.Row{Key: "r2", Cells: []density.Cell{density.MissingCell(), density.Float(3)}})

	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, []density.Row{
		{Key: "r1", Cells: []density.Cell{density.Float(1), density.Float(2)}},
		{Key: "r2", Cells: []density.Cell{density.MissingCell(), density.Float(3)}},
	}, collect(t, tbl))
}

func TestMemory_Canceled(t *testing.T) {
	tbl := table.NewMemory([]string{"a"})
	tbl.Append("r1", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it, err := tbl.Rows(ctx)
	require.NoError(t, err)
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func TestCSV(t *testing.T) {
	path := writeFile(t, "pool.csv", "id, a ,b\nr1,1,2.5\nr2,?,3\nr3,,x\n")
	tbl, err := table.OpenCSV(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
	assert.Equal(t, -1, tbl.NumRows())
	assert.Equal(t, []density.Row{
		{Key: "r1", Cells: []density.Cell{density.Float(1), density.Float(2.5)}},
		{Key: "r2", Cells: []density.Cell{density.MissingCell(), density.Float(3)}},
		{Key: "r3", Cells: []density.Cell{density.MissingCell(), {NonNumeric: true}}},
	}, collect(t, tbl))
}

func TestCSV_Errors(t *testing.T) {
	_, err := table.OpenCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = table.OpenCSV(writeFile(t, "empty.csv", ""))
	assert.Error(t, err)

	tbl, err := table.OpenCSV(writeFile(t, "ragged.csv", "id,a\nr1,1\nr2,1,2\n"))
	require.NoError(t, err)
	it, err := tbl.Rows(context.Background())
	require.NoError(t, err)
	defer it.Close()
	assert.True(t, it.Next())
	assert.False(t, it.Next())
	assert.Error(t, it.Err())
}

func TestReadKeys(t *testing.T) {
	tbl, err := table.OpenCSV(writeFile(t, "keys.csv", "key\nb\na\nc\n"))
	require.NoError(t, err)
	assert.Empty(t, tbl.Columns())

	keys, err := table.ReadKeys(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, keys)
}

func createSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE "pool rows" (x REAL, id INTEGER, y REAL)`,
		`INSERT INTO "pool rows" VALUES (0, 1, 0), (1, 2, 0), (2, 3, NULL), (10, 4, 0), (11, 5, 0)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func TestSQLite(t *testing.T) {
	tbl, err := table.OpenSQLite(context.Background(), createSQLite(t), "pool rows", "id")
	require.NoError(t, err)
	defer tbl.Close()

	assert.Equal(t, []string{"x", "y"}, tbl.Columns())
	assert.Equal(t, 5, tbl.NumRows())

	rows := collect(t, tbl)
	require.Len(t, rows, 5)
	assert.Equal(t, density.Row{Key: "1", Cells: []density.Cell{density.Float(0), density.Float(0)}}, rows[0])
	assert.Equal(t, density.Row{Key: "3", Cells: []density.Cell{density.Float(2), density.MissingCell()}}, rows[2])
}

func TestSQLite_UnknownKeyColumn(t *testing.T) {
	_, err := table.OpenSQLite(context.Background(), createSQLite(t), "pool rows", "key")
	assert.Error(t, err)
}

func TestInitialize_TableSourcesAgree(t *testing.T) {
	csvTable, err := table.OpenCSV(writeFile(t, "pool.csv", "id,x,y\n1,0,0\n2,1,0\n3,2,0\n4,10,0\n5,11,0\n"))
	require.NoError(t, err)
	sqliteTable, err := table.OpenSQLite(context.Background(), createSQLite(t), "pool rows", "id")
	require.NoError(t, err)
	defer sqliteTable.Close()
	mem := table.NewMemory([]string{"x", "y"})
	for i, x := range []float64{0, 1, 2, 10, 11} {
		mem.Append(string(rune('1'+i)), x, 0)
	}

	cfg := density.DefaultConfig()
	cfg.Kernel = density.PotentialKernel{RadiusAlpha: 1.5}
	cfg.MissingValues = density.Ignore

	fromCSV, _, err := density.Initialize(context.Background(), csvTable, cfg, nil)
	require.NoError(t, err)
	fromMemory, _, err := density.Initialize(context.Background(), mem, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, fromCSV.Potentials(), fromMemory.Potentials())
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, fromCSV.NeighborhoodModel().Keys())

	// Row 3 has a NULL feature in the database and is skipped.
	fromSQLite, advisories, err := density.Initialize(context.Background(), sqliteTable, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "4", "5"}, fromSQLite.NeighborhoodModel().Keys())
	assert.Contains(t, advisories, "1 row is ignored due to missing values.")
	assert.Equal(t, []float64{1, 1, 1, 1}, fromSQLite.Potentials())
}
