// Package engine implements an in-process, memory-resident emulation of a
// versioned, transactional, index-backed object store of the kind browsers
// expose for client-side persistence. It exists so storage-backed
// application logic can be exercised in tests without a real browser
// storage backend.
//
// Key Components:
//
//   - Registry: the top-level catalog of named databases. Registries are
//     explicit instances owned by the caller; there is no process-global
//     registry. Open orchestrates schema upgrades, DeleteDatabase and
//     ListDatabases complete the surface.
//
//   - Database / Conn: a database holds its schema version, its object
//     stores and their secondary indices. Callers interact through Conn
//     handles returned by Registry.Open.
//
//   - Transaction: groups operations against a declared set of stores with
//     a declared access mode (readonly, readwrite, versionchange). The
//     state machine is active -> committing -> {committed, aborted}. A
//     transaction auto-commits once a scheduler turn ends with no
//     outstanding request and no new operation issued.
//
//   - Request: every operation returns a Request synchronously in pending
//     state. Side effects apply immediately; success/error notification is
//     deferred to a later scheduler turn (see Scheduler).
//
//   - Cursor: ordered, optionally range-filtered traversal over a store or
//     an index, in four directions (next, nextunique, prev, prevunique).
//
// Completion Ordering:
//
// The scheduler guarantees three things that consumer tests rely on:
// no notification fires before the synchronous caller that created the
// request has returned, notifications for requests of one transaction fire
// in issuance order, and a transaction's completion notification fires
// strictly after all of its request notifications.
//
// Concurrency Model:
//
// Scheduling is single-threaded and cooperative. "Concurrency" means the
// interleaving of deferred completions across turns, never parallel
// execution; callers drive the loop with Scheduler.RunUntilIdle. Exactly
// one versionchange transaction may be active per database. Overlapping
// readwrite transactions are NOT serialized against each other and no
// write-write conflict detection is performed: writes apply immediately,
// matching the emulated platform's test double rather than a real storage
// engine. This is a deliberate simplification, not an oversight.
//
// Durability is out of scope entirely: state lives in process memory and is
// discarded on teardown.
package engine
