package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"rwaledger/pkg/errors"
)

// DBTX is a common interface for *sqlx.DB and *sqlx.Tx.
// Repositories built on it run unchanged inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row

	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

const uniqueViolation = "23505"

// mapInsertErr turns a unique violation into ErrAlreadyExists
func mapInsertErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errors.Wrap(errors.ErrAlreadyExists, what)
	}
	return errors.Wrapf(err, "failed to insert %s", what)
}

// expectOne returns notFound when an update touched no row
func expectOne(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// versionedUpdate runs an update guarded by "AND version = $n". Zero affected rows
// means either a stale version or a missing row; exists tells them apart.
func versionedUpdate(ctx context.Context, db DBTX, table string, id interface{}, result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	if err := db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id); err != nil {
		return errors.Wrap(err, "check row existence")
	}
	if !exists {
		return notFound
	}
	return errors.Wrapf(errors.ErrVersionConflict, "%s %v", table, id)
}
