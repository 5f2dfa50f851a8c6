// Package adapters provide database adapter implementations for the PostgreSQL
// circulation store.
//
// This package implements the adapter pattern to support multiple PostgreSQL
// database libraries: pgx.Pool, sql.DB, and sqlx.DB. All adapters provide
// equivalent functionality through a common DBAdapter interface, allowing the
// circulation store to work seamlessly with any supported connection type.
//
// Adapters also supply the transaction bracket the store's atomic operations
// run in: WithinTx opens a transaction, binds it to the context, and commits
// or rolls back depending on the closure's outcome. Query and Exec route
// through the bound transaction when one is present on the context.
package adapters
