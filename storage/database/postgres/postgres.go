// Package pgrepos implements the storage ports on PostgreSQL via sqlx,
// with goqu building the queries.
package pgrepos

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var pg = goqu.Dialect("postgres")

// inTx runs fn within a transaction, rolling back on error.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Cause(err) == sql.ErrNoRows
}
