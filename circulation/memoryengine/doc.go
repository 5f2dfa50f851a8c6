// Package memoryengine provides a map-backed storage engine for the
// circulation core. It implements every store interface the coordinator
// consumes, plus MemberLookup and JournalStore, on a single Storage type.
//
// Transactions take a coarse lock over the whole state and roll back by
// restoring a snapshot, which is plenty for its intended uses: tests, demos,
// and small embedded deployments. Production deployments should use
// circulation/postgresengine.
package memoryengine
