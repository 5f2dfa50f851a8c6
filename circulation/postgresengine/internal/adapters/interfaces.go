package adapters

import "context"

// DBAdapter defines the interface for database operations needed by the circulation store.
type DBAdapter interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)

	// WithinTx runs fn inside a database transaction bound to the context
	// passed to fn. When fn returns an error, or the outer context was
	// cancelled before commit, the transaction is rolled back.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
