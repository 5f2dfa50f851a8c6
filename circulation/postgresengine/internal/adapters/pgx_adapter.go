package adapters

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxTxKey is the context key a bound pgx transaction travels under.
type pgxTxKey struct{}

// PGXAdapter implements DBAdapter for pgxpool.Pool.
type PGXAdapter struct {
	pool *pgxpool.Pool
}

// NewPGXAdapter creates a new PGX adapter with a connection pool.
func NewPGXAdapter(pool *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool}
}

// Query executes a query through the bound transaction if one is present,
// otherwise through the pool.
func (p *PGXAdapter) Query(ctx context.Context, query string) (DBRows, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if tx, ok := ctx.Value(pgxTxKey{}).(pgx.Tx); ok {
		rows, err = tx.Query(ctx, query)
	} else {
		rows, err = p.pool.Query(ctx, query)
	}

	if err != nil {
		return nil, err
	}

	return &pgxRows{rows: rows}, nil
}

// Exec executes a statement through the bound transaction if one is present,
// otherwise through the pool.
func (p *PGXAdapter) Exec(ctx context.Context, query string) (DBResult, error) {
	var (
		tag pgconn.CommandTag
		err error
	)

	if tx, ok := ctx.Value(pgxTxKey{}).(pgx.Tx); ok {
		tag, err = tx.Exec(ctx, query)
	} else {
		tag, err = p.pool.Exec(ctx, query)
	}

	if err != nil {
		return nil, err
	}

	return &pgxResult{tag: tag}, nil
}

// WithinTx runs fn inside a pgx transaction bound to fn's context.
func (p *PGXAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}

	if fnErr := fn(context.WithValue(ctx, pgxTxKey{}, tx)); fnErr != nil {
		_ = tx.Rollback(ctx) // the fn error is what matters
		return fnErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = tx.Rollback(ctx)
		return ctxErr
	}

	return tx.Commit(ctx)
}

// pgxRows wraps pgx.Rows to implement the DBRows interface.
type pgxRows struct {
	rows pgx.Rows
}

// Next advances to the next row.
func (p *pgxRows) Next() bool {
	return p.rows.Next()
}

// Scan copies row values into provided destinations.
func (p *pgxRows) Scan(dest ...any) error {
	return p.rows.Scan(dest...)
}

// Close closes the rows iterator.
func (p *pgxRows) Close() error {
	p.rows.Close()
	return nil
}

// pgxResult wraps pgconn.CommandTag to implement the DBResult interface.
type pgxResult struct {
	tag pgconn.CommandTag
}

// RowsAffected returns the number of rows affected by the command.
func (p *pgxResult) RowsAffected() (int64, error) {
	return p.tag.RowsAffected(), nil
}
