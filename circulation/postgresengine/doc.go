// Package postgresengine provides the PostgreSQL storage engine for the
// circulation core.
//
// One CirculationStore implements every store interface the coordinator
// consumes: CopyStore, LoanStore, FineStore, MemberLookup, JournalStore, and
// Transactor. It leverages a database adapter and supports customizable
// logging, metrics, and table configuration.
//
// Three constructors cover the supported connection types:
//
//	store, err := postgresengine.NewCirculationStoreFromPGXPool(pool)
//	store, err := postgresengine.NewCirculationStoreFromSQLDB(db)
//	store, err := postgresengine.NewCirculationStoreFromSQLX(db)
//
// The schema the engine expects is shipped in schema.sql. Two partial unique
// indexes back the core invariants at the storage layer: at most one open
// loan per copy, and at most one pending fine per loan. The store checks both
// conditions explicitly inside its transactions; the indexes defend against
// writers racing past those checks.
package postgresengine
