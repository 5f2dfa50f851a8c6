package postgresengine

import (
	"errors"

	"github.com/goldenoaks/circulation-go/circulation"
)

// ErrEmptyTableNameSupplied is returned when a table name option is empty.
var ErrEmptyTableNameSupplied = errors.New("empty table name supplied")

// TableNames configures the tables the circulation store reads and writes.
type TableNames struct {
	Copies  string
	Loans   string
	Fines   string
	Members string
	Journal string
}

// DefaultTableNames returns the table names the engine uses unless configured
// otherwise.
func DefaultTableNames() TableNames {
	return TableNames{
		Copies:  "copies",
		Loans:   "loans",
		Fines:   "fines",
		Members: "members",
		Journal: "circulation_journal",
	}
}

// Option defines a functional option for configuring CirculationStore.
type Option func(*CirculationStore) error

// WithTableNames sets the table names for the CirculationStore.
func WithTableNames(tables TableNames) Option {
	return func(cs *CirculationStore) error {
		if tables.Copies == "" || tables.Loans == "" || tables.Fines == "" ||
			tables.Members == "" || tables.Journal == "" {
			return ErrEmptyTableNameSupplied
		}

		cs.tables = tables

		return nil
	}
}

// WithLogger sets the logger for the CirculationStore.
//
// Debug level: SQL queries with execution timing (development use)
// Info level: not used by the store
// Warn level: non-critical issues like cleanup failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger circulation.Logger) Option {
	return func(cs *CirculationStore) error {
		cs.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the CirculationStore. Query and
// statement durations are recorded per table.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(cs *CirculationStore) error {
		cs.metricsCollector = collector
		return nil
	}
}
