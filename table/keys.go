package table

import (
	"context"

	density "github.com/knime/knime-activelearning-sub000"
)

// ReadKeys returns the row keys of tbl in table order.
func ReadKeys(ctx context.Context, tbl density.Table) ([]string, error) {
	it, err := tbl.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var keys []string
	if n := tbl.NumRows(); n > 0 {
		keys = make([]string, 0, n)
	}
	for it.Next() {
		keys = append(keys, it.Row().Key)
	}
	return keys, it.Err()
}
