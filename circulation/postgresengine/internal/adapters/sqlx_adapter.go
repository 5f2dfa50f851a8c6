package adapters

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// SQLXAdapter implements DBAdapter for sqlx.DB.
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter creates a new SQLX adapter.
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

// Query executes a query through the bound transaction if one is present,
// otherwise through the sqlx.DB.
func (s *SQLXAdapter) Query(ctx context.Context, query string) (DBRows, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if tx, ok := ctx.Value(stdTxKey{}).(stdQuerier); ok {
		rows, err = tx.QueryContext(ctx, query)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}

	if err != nil {
		return nil, err
	}

	return &stdRows{rows: rows}, nil
}

// Exec executes a statement through the bound transaction if one is present,
// otherwise through the sqlx.DB.
func (s *SQLXAdapter) Exec(ctx context.Context, query string) (DBResult, error) {
	var (
		result sql.Result
		err    error
	)

	if tx, ok := ctx.Value(stdTxKey{}).(stdQuerier); ok {
		result, err = tx.ExecContext(ctx, query)
	} else {
		result, err = s.db.ExecContext(ctx, query)
	}

	if err != nil {
		return nil, err
	}

	return &stdResult{result: result}, nil
}

// WithinTx runs fn inside a sqlx.Tx bound to fn's context.
func (s *SQLXAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if fnErr := fn(context.WithValue(ctx, stdTxKey{}, stdQuerier(tx))); fnErr != nil {
		_ = tx.Rollback() // the fn error is what matters
		return fnErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = tx.Rollback()
		return ctxErr
	}

	return tx.Commit()
}
