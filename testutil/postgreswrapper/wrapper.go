package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/goldenoaks/circulation-go/circulation/postgresengine"
)

// Engine type constants
const (
	typePGXPool = "pgxpool"
	typeSQLDB   = "sqldb"
	typeSQLX    = "sqlx"
)

// Wrapper interface to abstract over different adapter types
type Wrapper interface {
	GetStore() *postgresengine.CirculationStore
	CleanUp(t testing.TB)
	Close()
}

const truncateStatement = `TRUNCATE TABLE circulation_journal, fines, loans, copies, members`

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	pool  *pgxpool.Pool
	store *postgresengine.CirculationStore
}

func (w *PGXPoolWrapper) GetStore() *postgresengine.CirculationStore {
	return w.store
}

func (w *PGXPoolWrapper) CleanUp(t testing.TB) {
	_, err := w.pool.Exec(context.Background(), truncateStatement)
	assert.NoError(t, err, "error truncating tables in test cleanup")
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	db    *sql.DB
	store *postgresengine.CirculationStore
}

func (w *SQLDBWrapper) GetStore() *postgresengine.CirculationStore {
	return w.store
}

func (w *SQLDBWrapper) CleanUp(t testing.TB) {
	_, err := w.db.ExecContext(context.Background(), truncateStatement)
	assert.NoError(t, err, "error truncating tables in test cleanup")
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx-based testing
type SQLXWrapper struct {
	db    *sqlx.DB
	store *postgresengine.CirculationStore
}

func (w *SQLXWrapper) GetStore() *postgresengine.CirculationStore {
	return w.store
}

func (w *SQLXWrapper) CleanUp(t testing.TB) {
	_, err := w.db.ExecContext(context.Background(), truncateStatement)
	assert.NoError(t, err, "error truncating tables in test cleanup")
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the appropriate wrapper based on the environment variable
func CreateWrapperWithTestConfig(t testing.TB) Wrapper {
	adapterTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch adapterTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), PostgresPGXPoolTestConfig())
		assert.NoError(t, err, "error connecting to DB pool in test setup")
		store, err := postgresengine.NewCirculationStoreFromPGXPool(connPool)
		assert.NoError(t, err, "error creating store in test setup")

		return &PGXPoolWrapper{pool: connPool, store: store}

	case typeSQLDB:
		db := PostgresSQLDBTestConfig()
		store, err := postgresengine.NewCirculationStoreFromSQLDB(db)
		assert.NoError(t, err, "error creating store in test setup")

		return &SQLDBWrapper{db: db, store: store}

	case typeSQLX:
		db := PostgresSQLXTestConfig()
		store, err := postgresengine.NewCirculationStoreFromSQLX(db)
		assert.NoError(t, err, "error creating store in test setup")

		return &SQLXWrapper{db: db, store: store}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterTypeFromEnv))
	}
}
