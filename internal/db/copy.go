package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFromTx bulk-inserts rows into a schema-qualified table with the
// PostgreSQL COPY protocol, inside an existing transaction. The observation
// archive uses this path: a single senate-site report can carry tens of
// thousands of observation rows, and they must commit or roll back together
// with the report's current-state updates.
func CopyFromTx(ctx context.Context, tx pgx.Tx, schema, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ident := pgx.Identifier{table}
	if schema != "" {
		ident = pgx.Identifier{schema, table}
	}

	n, err := tx.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", ident.Sanitize())
	}
	return n, nil
}
